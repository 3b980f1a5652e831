package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de un DTE dentro del certificador.
const (
	EstadoBorrador          = "BORRADOR"           // Recibido, pendiente de validar
	EstadoValidado          = "VALIDADO"           // Pasó las reglas de negocio FEL
	EstadoValidacionFallida = "VALIDACION_FALLIDA" // Rechazado antes de firmar
	EstadoFirmado           = "FIRMADO"            // XML canónico firmado (XAdES)
	EstadoEnviado           = "ENVIADO"            // Entregado a la SAT, veredicto pendiente
	EstadoCertificado       = "CERTIFICADO"        // Autorizado por la SAT
	EstadoRechazado         = "RECHAZADO"          // Rechazado por la SAT
	EstadoAnulado           = "ANULADO"            // Anulación solicitada por el emisor
	EstadoError             = "ERROR"              // Desenlace irrecuperable o anómalo
)

// transicionesDTE define las transiciones de estado permitidas. Cualquier
// transición fuera de la tabla es un defecto de programación y se rechaza.
var transicionesDTE = map[string][]string{
	EstadoBorrador:    {EstadoValidado, EstadoValidacionFallida},
	EstadoValidado:    {EstadoFirmado, EstadoError},
	EstadoFirmado:     {EstadoEnviado, EstadoError},
	EstadoEnviado:     {EstadoCertificado, EstadoRechazado, EstadoError, EstadoAnulado},
	EstadoCertificado: {EstadoAnulado},
}

// DTE representa un Documento Tributario Electrónico en proceso de
// certificación. UUID es el número de autorización asignado por el
// certificador; Serie y Numero se derivan de él.
type DTE struct {
	UUID                  string
	Serie                 string
	Numero                int64
	Tipo                  string // FACT, NCRE, NDEB, ... (catálogo FEL)
	EmisorNIT             string
	CodigoEstablecimiento string
	ReceptorID            string // NIT, CUI o "CF"
	ReceptorTipo          string // NIT | CUI | EXT | CF
	ReceptorNombre        string
	Moneda                string // GTQ | USD | EUR
	FechaEmision          time.Time
	Exportacion           bool
	Incoterm              string // término de comercio internacional (solo exportación)
	ReferenciaUUID        string // UUID de autorización del documento origen (NCRE/NDEB)
	MotivoAjuste          string // motivo del ajuste declarado en la nota (NCRE/NDEB)
	Items                 []ItemDTE
	GranTotal             decimal.Decimal
	TotalImpuestos        decimal.Decimal
	Estado                string
	XMLFirmado            string
	NumeroAcuseSAT        string    // acuse de recibo devuelto por la SAT
	FechaCertificacion    time.Time // cero si aún no certificado
	MotivoRechazo         string    // códigos/mensajes del veredicto de rechazo
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Transicionar cambia el estado del documento validando contra la tabla de
// transiciones. Retorna error si el salto no está permitido.
func (d *DTE) Transicionar(destino string) error {
	for _, permitido := range transicionesDTE[d.Estado] {
		if permitido == destino {
			d.Estado = destino
			d.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("transición de estado no permitida: %s -> %s", d.Estado, destino)
}

// EsTerminal indica si el documento ya alcanzó un desenlace definitivo.
func (d *DTE) EsTerminal() bool {
	switch d.Estado {
	case EstadoValidacionFallida, EstadoRechazado, EstadoAnulado, EstadoError:
		return true
	case EstadoCertificado:
		// certificado admite únicamente anulación posterior
		return false
	default:
		return false
	}
}

// ItemDTE es una línea del documento. Los montos se manejan con decimal para
// evitar errores de redondeo binario en las validaciones aritméticas.
type ItemDTE struct {
	NumeroLinea     int
	BienOServicio   string // "B" | "S"
	Cantidad        decimal.Decimal
	UnidadMedida    string
	Descripcion     string
	PrecioUnitario  decimal.Decimal
	Precio          decimal.Decimal // Cantidad * PrecioUnitario
	Descuento       decimal.Decimal
	OtrosDescuentos decimal.Decimal
	Impuestos       []ImpuestoItem
	Total           decimal.Decimal
}

// ImpuestoItem es un impuesto aplicado a una línea.
type ImpuestoItem struct {
	NombreCorto          string // "IVA", "PETROLEO", ...
	CodigoUnidadGravable int
	MontoGravable        decimal.Decimal
	MontoImpuesto        decimal.Decimal
}

// SumaImpuesto devuelve el total de un impuesto por nombre corto en la línea.
func (i ItemDTE) SumaImpuesto(nombreCorto string) decimal.Decimal {
	total := decimal.Zero
	for _, imp := range i.Impuestos {
		if imp.NombreCorto == nombreCorto {
			total = total.Add(imp.MontoImpuesto)
		}
	}
	return total
}
