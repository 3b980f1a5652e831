package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

// CertificarRequest body para POST /api/v1/dte. El UUID de autorización lo
// propone el emisor; serie y número se derivan de él en el servidor.
type CertificarRequest struct {
	UUID                  string          `json:"uuid"`
	Tipo                  string          `json:"tipo"` // FACT, NCRE, NDEB, ...
	CodigoEstablecimiento string          `json:"codigo_establecimiento"`
	ReceptorID            string          `json:"receptor_id"` // NIT, CUI o "CF"
	ReceptorTipo          string          `json:"receptor_tipo,omitempty"`
	ReceptorNombre        string          `json:"receptor_nombre,omitempty"`
	Moneda                string          `json:"moneda"`
	FechaEmision          time.Time       `json:"fecha_emision"`
	Exportacion           bool            `json:"exportacion,omitempty"`
	Incoterm              string          `json:"incoterm,omitempty"`
	ReferenciaUUID        string          `json:"referencia_uuid,omitempty"` // documento origen (NCRE/NDEB)
	MotivoAjuste          string          `json:"motivo_ajuste,omitempty"`
	Items                 []ItemRequest   `json:"items"`
	GranTotal             decimal.Decimal `json:"gran_total"`
	TotalImpuestos        decimal.Decimal `json:"total_impuestos"`
}

// ItemRequest línea del documento.
type ItemRequest struct {
	NumeroLinea     int               `json:"numero_linea"`
	BienOServicio   string            `json:"bien_o_servicio"` // "B" | "S"
	Cantidad        decimal.Decimal   `json:"cantidad"`
	UnidadMedida    string            `json:"unidad_medida"`
	Descripcion     string            `json:"descripcion"`
	PrecioUnitario  decimal.Decimal   `json:"precio_unitario"`
	Precio          decimal.Decimal   `json:"precio"`
	Descuento       decimal.Decimal   `json:"descuento"`
	OtrosDescuentos decimal.Decimal   `json:"otros_descuentos"`
	Impuestos       []ImpuestoRequest `json:"impuestos"`
	Total           decimal.Decimal   `json:"total"`
}

// ImpuestoRequest impuesto aplicado a una línea.
type ImpuestoRequest struct {
	NombreCorto          string          `json:"nombre_corto"` // "IVA", "PETROLEO", ...
	CodigoUnidadGravable int             `json:"codigo_unidad_gravable"`
	MontoGravable        decimal.Decimal `json:"monto_gravable"`
	MontoImpuesto        decimal.Decimal `json:"monto_impuesto"`
}

// AEntidad convierte la petición en la entidad de dominio.
func (r CertificarRequest) AEntidad(emisorNIT string) *entity.DTE {
	items := make([]entity.ItemDTE, 0, len(r.Items))
	for _, it := range r.Items {
		impuestos := make([]entity.ImpuestoItem, 0, len(it.Impuestos))
		for _, imp := range it.Impuestos {
			impuestos = append(impuestos, entity.ImpuestoItem{
				NombreCorto:          imp.NombreCorto,
				CodigoUnidadGravable: imp.CodigoUnidadGravable,
				MontoGravable:        imp.MontoGravable,
				MontoImpuesto:        imp.MontoImpuesto,
			})
		}
		items = append(items, entity.ItemDTE{
			NumeroLinea:     it.NumeroLinea,
			BienOServicio:   it.BienOServicio,
			Cantidad:        it.Cantidad,
			UnidadMedida:    it.UnidadMedida,
			Descripcion:     it.Descripcion,
			PrecioUnitario:  it.PrecioUnitario,
			Precio:          it.Precio,
			Descuento:       it.Descuento,
			OtrosDescuentos: it.OtrosDescuentos,
			Impuestos:       impuestos,
			Total:           it.Total,
		})
	}
	return &entity.DTE{
		UUID:                  r.UUID,
		Tipo:                  r.Tipo,
		EmisorNIT:             emisorNIT,
		CodigoEstablecimiento: r.CodigoEstablecimiento,
		ReceptorID:            r.ReceptorID,
		ReceptorTipo:          r.ReceptorTipo,
		ReceptorNombre:        r.ReceptorNombre,
		Moneda:                r.Moneda,
		FechaEmision:          r.FechaEmision,
		Exportacion:           r.Exportacion,
		Incoterm:              r.Incoterm,
		ReferenciaUUID:        r.ReferenciaUUID,
		MotivoAjuste:          r.MotivoAjuste,
		Items:                 items,
		GranTotal:             r.GranTotal,
		TotalImpuestos:        r.TotalImpuestos,
	}
}

// DTEResponse resumen del documento en respuestas.
type DTEResponse struct {
	UUID               string          `json:"uuid"`
	Serie              string          `json:"serie"`
	Numero             int64           `json:"numero"`
	Tipo               string          `json:"tipo"`
	EmisorNIT          string          `json:"emisor_nit"`
	ReceptorID         string          `json:"receptor_id"`
	Moneda             string          `json:"moneda"`
	FechaEmision       time.Time       `json:"fecha_emision"`
	GranTotal          decimal.Decimal `json:"gran_total"`
	Estado             string          `json:"estado"`
	NumeroAcuseSAT     string          `json:"numero_acuse_sat,omitempty"`
	FechaCertificacion *time.Time      `json:"fecha_certificacion,omitempty"`
	MotivoRechazo      string          `json:"motivo_rechazo,omitempty"`
}

// DesdeDTE arma la respuesta a partir de la entidad.
func DesdeDTE(d *entity.DTE) DTEResponse {
	out := DTEResponse{
		UUID:           d.UUID,
		Serie:          d.Serie,
		Numero:         d.Numero,
		Tipo:           d.Tipo,
		EmisorNIT:      d.EmisorNIT,
		ReceptorID:     d.ReceptorID,
		Moneda:         d.Moneda,
		FechaEmision:   d.FechaEmision,
		GranTotal:      d.GranTotal,
		Estado:         d.Estado,
		NumeroAcuseSAT: d.NumeroAcuseSAT,
		MotivoRechazo:  d.MotivoRechazo,
	}
	if !d.FechaCertificacion.IsZero() {
		fc := d.FechaCertificacion
		out.FechaCertificacion = &fc
	}
	return out
}

// EnvioResponse avance del documento por la máquina de envío a la SAT.
type EnvioResponse struct {
	Estado         string     `json:"estado"`
	Intentos       int        `json:"intentos"`
	ProximoIntento *time.Time `json:"proximo_intento,omitempty"`
	AcuseSAT       string     `json:"acuse_sat,omitempty"`
	CodigosSAT     []string   `json:"codigos_sat,omitempty"`
	UltimoError    string     `json:"ultimo_error,omitempty"`
}

// DesdeRegistro arma la vista del envío a partir del registro persistido.
func DesdeRegistro(r *entity.RegistroCertificacion) EnvioResponse {
	return EnvioResponse{
		Estado:         r.Estado,
		Intentos:       r.Intentos,
		ProximoIntento: r.ProximoIntento,
		AcuseSAT:       r.AcuseSAT,
		CodigosSAT:     r.CodigosSAT,
		UltimoError:    r.UltimoError,
	}
}

// EstadoDTEResponse respuesta de GET /api/v1/dte/:uuid: documento más el
// detalle del envío a la SAT.
type EstadoDTEResponse struct {
	Documento DTEResponse   `json:"documento"`
	Envio     EnvioResponse `json:"envio"`
}

// ListaDTEResponse respuesta paginada del listado de documentos.
type ListaDTEResponse struct {
	Documentos []DTEResponse `json:"documentos"`
	Pagina     PageResponse  `json:"pagina"`
}

// AnularRequest body para POST /api/v1/dte/:uuid/anular.
type AnularRequest struct {
	Motivo string `json:"motivo"`
}
