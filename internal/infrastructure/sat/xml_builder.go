package sat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

// Namespaces oficiales del esquema GT_Documento (régimen FEL, SAT Guatemala).
const (
	// Namespace del esquema principal GT_Documento
	NsDTE = "http://www.sat.gob.gt/dte/fel/0.2.0"
	// Complemento de referencias para notas de crédito y débito
	NsCNO = "http://www.sat.gob.gt/face2/ComplementoReferenciaNota/0.1.0"
	// Complemento de exportaciones
	NsCEX = "http://www.sat.gob.gt/face2/ComplementoExportaciones/0.1.0"
	// XML Digital Signature
	NsDs = "http://www.w3.org/2000/09/xmldsig#"
	// XAdES (para la firma)
	NsXades = "http://uri.etsi.org/01903/v1.3.2#"
	// XML Schema Instance
	nsXsi = "http://www.w3.org/2001/XMLSchema-instance"
)

// DocumentoBuildContext reúne todo lo necesario para construir el GT_Documento
// de un DTE ya validado. Los datos de certificación (serie, número, UUID de
// autorización) van dentro del documento antes de firmar: la firma XAdES
// cubre DatosEmision y Certificacion completos.
type DocumentoBuildContext struct {
	DTE                *entity.DTE
	Emisor             *entity.Emisor
	CorreoEmisor       string
	NITCertificador    string
	NombreCertificador string
	FechaCertificacion time.Time
}

// XMLBuilderService construye el XML GT_Documento del DTE (sin firma XAdES).
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el []byte del documento GTDocumento según el esquema 0.2.0.
// El orden de los elementos es fijo: el esquema lo exige y la firma depende
// de una serialización estable.
func (s *XMLBuilderService) Build(ctx *DocumentoBuildContext) ([]byte, error) {
	if ctx == nil || ctx.DTE == nil || ctx.Emisor == nil {
		return nil, fmt.Errorf("sat: faltan dte o emisor en el contexto")
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	// Root <GTDocumento> con atributos obligatorios. Id para la Reference URI
	// de la firma XAdES.
	root := xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "GTDocumento"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "Id"}, Value: DocumentoElementID},
			{Name: xml.Name{Local: "Version"}, Value: "0.1"},
			{Name: xml.Name{Local: "xmlns:dte"}, Value: NsDTE},
			{Name: xml.Name{Local: "xmlns:ds"}, Value: NsDs},
			{Name: xml.Name{Local: "xmlns:xades"}, Value: NsXades},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: nsXsi},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "SAT"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "ClaseDocumento"}, Value: "dte"}},
	})
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "DTE"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "ID"}, Value: "DatosCertificados"}},
	})

	if err := s.writeDatosEmision(enc, ctx); err != nil {
		return nil, err
	}
	if err := s.writeCertificacion(enc, ctx); err != nil {
		return nil, err
	}

	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "DTE"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "SAT"}})

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *XMLBuilderService) writeDatosEmision(enc *xml.Encoder, ctx *DocumentoBuildContext) error {
	d := ctx.DTE
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "DatosEmision"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "ID"}, Value: "DatosEmision"}},
	})

	// ---- dte:DatosGenerales (todo en atributos, orden fijo)
	generales := []xml.Attr{
		{Name: xml.Name{Local: "Tipo"}, Value: d.Tipo},
		{Name: xml.Name{Local: "FechaHoraEmision"}, Value: d.FechaEmision.Format("2006-01-02T15:04:05-07:00")},
		{Name: xml.Name{Local: "CodigoMoneda"}, Value: d.Moneda},
	}
	if d.Exportacion {
		generales = append(generales, xml.Attr{Name: xml.Name{Local: "Exp"}, Value: "SI"})
	}
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "DatosGenerales"}, Attr: generales})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "DatosGenerales"}})

	// ---- dte:Emisor
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "Emisor"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "AfiliacionIVA"}, Value: ctx.Emisor.AfiliacionIVA},
			{Name: xml.Name{Local: "CodigoEstablecimiento"}, Value: d.CodigoEstablecimiento},
			{Name: xml.Name{Local: "CorreoEmisor"}, Value: ctx.CorreoEmisor},
			{Name: xml.Name{Local: "NITEmisor"}, Value: d.EmisorNIT},
			{Name: xml.Name{Local: "NombreComercial"}, Value: ctx.Emisor.NombreComercial},
			{Name: xml.Name{Local: "NombreEmisor"}, Value: ctx.Emisor.Nombre},
		},
	})
	s.writeDireccion(enc, "DireccionEmisor", ctx.Emisor)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Emisor"}})

	// ---- dte:Receptor
	receptorAttrs := []xml.Attr{
		{Name: xml.Name{Local: "IDReceptor"}, Value: d.ReceptorID},
		{Name: xml.Name{Local: "NombreReceptor"}, Value: d.ReceptorNombre},
	}
	if d.ReceptorTipo == "CUI" || d.ReceptorTipo == "EXT" {
		receptorAttrs = append(receptorAttrs, xml.Attr{Name: xml.Name{Local: "TipoEspecial"}, Value: d.ReceptorTipo})
	}
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "Receptor"}, Attr: receptorAttrs})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Receptor"}})

	// ---- dte:Items
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "Items"}})
	for _, item := range d.Items {
		s.writeItem(enc, item)
	}
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Items"}})

	// ---- dte:Totales
	s.writeTotales(enc, d)

	// ---- dte:Complementos (referencias de notas y exportaciones)
	if d.ReferenciaUUID != "" || d.Exportacion {
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "Complementos"}})
		if d.ReferenciaUUID != "" {
			s.writeComplementoReferencia(enc, d)
		}
		if d.Exportacion {
			s.writeComplementoExportacion(enc, ctx)
		}
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Complementos"}})
	}

	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "DatosEmision"}})
	return nil
}

func (s *XMLBuilderService) writeDireccion(enc *xml.Encoder, local string, e *entity.Emisor) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: local}})
	writeDte(enc, "Direccion", e.Direccion)
	writeDte(enc, "CodigoPostal", e.CodigoPostal)
	writeDte(enc, "Municipio", e.Municipio)
	writeDte(enc, "Departamento", e.Departamento)
	writeDte(enc, "Pais", e.Pais)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: local}})
}

func (s *XMLBuilderService) writeItem(enc *xml.Encoder, item entity.ItemDTE) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "Item"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "BienOServicio"}, Value: item.BienOServicio},
			{Name: xml.Name{Local: "NumeroLinea"}, Value: strconv.Itoa(item.NumeroLinea)},
		},
	})
	writeDte(enc, "Cantidad", formatCantidad(item.Cantidad))
	writeDte(enc, "UnidadMedida", item.UnidadMedida)
	writeDte(enc, "Descripcion", item.Descripcion)
	writeDte(enc, "PrecioUnitario", formatMonto(item.PrecioUnitario))
	writeDte(enc, "Precio", formatMonto(item.Precio))
	writeDte(enc, "Descuento", formatMonto(item.Descuento))

	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "Impuestos"}})
	for _, imp := range item.Impuestos {
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "Impuesto"}})
		writeDte(enc, "NombreCorto", imp.NombreCorto)
		writeDte(enc, "CodigoUnidadGravable", strconv.Itoa(imp.CodigoUnidadGravable))
		writeDte(enc, "MontoGravable", formatMonto(imp.MontoGravable))
		writeDte(enc, "MontoImpuesto", formatMonto(imp.MontoImpuesto))
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Impuesto"}})
	}
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Impuestos"}})

	writeDte(enc, "Total", formatMonto(item.Total))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Item"}})
}

func (s *XMLBuilderService) writeTotales(enc *xml.Encoder, d *entity.DTE) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "Totales"}})

	// Total por impuesto (agregado de todas las líneas)
	porImpuesto := map[string]decimal.Decimal{}
	var orden []string
	for _, item := range d.Items {
		for _, imp := range item.Impuestos {
			if _, ok := porImpuesto[imp.NombreCorto]; !ok {
				orden = append(orden, imp.NombreCorto)
			}
			porImpuesto[imp.NombreCorto] = porImpuesto[imp.NombreCorto].Add(imp.MontoImpuesto)
		}
	}
	if len(orden) > 0 {
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "TotalImpuestos"}})
		for _, nombre := range orden {
			_ = enc.EncodeToken(xml.StartElement{
				Name: xml.Name{Space: NsDTE, Local: "TotalImpuesto"},
				Attr: []xml.Attr{
					{Name: xml.Name{Local: "NombreCorto"}, Value: nombre},
					{Name: xml.Name{Local: "TotalMontoImpuesto"}, Value: formatMonto(porImpuesto[nombre])},
				},
			})
			_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "TotalImpuesto"}})
		}
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "TotalImpuestos"}})
	}

	writeDte(enc, "GranTotal", formatMonto(d.GranTotal))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Totales"}})
}

// writeComplementoReferencia escribe el complemento de referencias exigido
// para notas de crédito y débito.
func (s *XMLBuilderService) writeComplementoReferencia(enc *xml.Encoder, d *entity.DTE) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "Complemento"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "IDComplemento"}, Value: "ReferenciasNota"},
			{Name: xml.Name{Local: "NombreComplemento"}, Value: "Referencias Nota"},
			{Name: xml.Name{Local: "URIComplemento"}, Value: NsCNO},
		},
	})
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsCNO, Local: "ReferenciasNota"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:cno"}, Value: NsCNO},
			{Name: xml.Name{Local: "NumeroAutorizacionDocumentoOrigen"}, Value: d.ReferenciaUUID},
			{Name: xml.Name{Local: "MotivoAjuste"}, Value: d.MotivoAjuste},
			{Name: xml.Name{Local: "Version"}, Value: "0.1"},
		},
	})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCNO, Local: "ReferenciasNota"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Complemento"}})
}

// writeComplementoExportacion escribe el complemento de Exportaciones con el
// INCOTERM y los datos del consignatario y el exportador.
func (s *XMLBuilderService) writeComplementoExportacion(enc *xml.Encoder, ctx *DocumentoBuildContext) {
	d := ctx.DTE
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "Complemento"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "IDComplemento"}, Value: "Exportacion"},
			{Name: xml.Name{Local: "NombreComplemento"}, Value: "Exportacion"},
			{Name: xml.Name{Local: "URIComplemento"}, Value: NsCEX},
		},
	})
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsCEX, Local: "Exportacion"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:cex"}, Value: NsCEX},
			{Name: xml.Name{Local: "Version"}, Value: "1"},
		},
	})
	writeCex(enc, "NombreConsignatarioODestinatario", d.ReceptorNombre)
	writeCex(enc, "INCOTERM", d.Incoterm)
	writeCex(enc, "NombreExportador", ctx.Emisor.Nombre)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCEX, Local: "Exportacion"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Complemento"}})
}

// writeCertificacion escribe el bloque que identifica al certificador y la
// autorización derivada del UUID.
func (s *XMLBuilderService) writeCertificacion(enc *xml.Encoder, ctx *DocumentoBuildContext) error {
	d := ctx.DTE
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: "Certificacion"}})
	writeDte(enc, "NITCertificador", ctx.NITCertificador)
	writeDte(enc, "NombreCertificador", ctx.NombreCertificador)

	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsDTE, Local: "NumeroAutorizacion"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "Serie"}, Value: d.Serie},
			{Name: xml.Name{Local: "Numero"}, Value: strconv.FormatInt(d.Numero, 10)},
		},
	})
	_ = enc.EncodeToken(xml.CharData(d.UUID))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "NumeroAutorizacion"}})

	writeDte(enc, "FechaHoraCertificacion", ctx.FechaCertificacion.Format("2006-01-02T15:04:05-07:00"))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: "Certificacion"}})
	return nil
}

func writeDte(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsDTE, Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsDTE, Local: local}})
}

func writeCex(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCEX, Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCEX, Local: local}})
}

// formatMonto serializa montos con dos decimales fijos, como exige el esquema.
func formatMonto(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// formatCantidad serializa cantidades con hasta cuatro decimales.
func formatCantidad(d decimal.Decimal) string {
	return d.Round(4).String()
}
