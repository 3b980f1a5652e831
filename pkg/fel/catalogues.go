// Package fel contiene catálogos y validaciones alineados al régimen FEL
// (Factura Electrónica en Línea) de la SAT Guatemala, según el Documento
// Técnico Informático para certificadores v1.2 y Reglas y Validaciones v1.7.9.
package fel

import "github.com/shopspring/decimal"

// =============================================================================
// Tipos de DTE (Documento Tributario Electrónico) - Acuerdo de Directorio
// SAT 13-2018. El atributo Tipo del elemento DatosGenerales usa estos códigos.
// =============================================================================

const (
	TipoFACT = "FACT" // Factura
	TipoFCAM = "FCAM" // Factura Cambiaria
	TipoFPEQ = "FPEQ" // Factura Pequeño Contribuyente
	TipoFCAP = "FCAP" // Factura Cambiaria Pequeño Contribuyente
	TipoFESP = "FESP" // Factura Especial
	TipoNABN = "NABN" // Nota de Abono
	TipoRDON = "RDON" // Recibo por Donación
	TipoRECI = "RECI" // Recibo
	TipoNDEB = "NDEB" // Nota de Débito
	TipoNCRE = "NCRE" // Nota de Crédito
	TipoFACA = "FACA" // Factura Contribuyente Agropecuario
	TipoFCCA = "FCCA" // Factura Cambiaria Contribuyente Agropecuario
	TipoFAPE = "FAPE" // Factura Pequeño Contribuyente Régimen Electrónico
	TipoFCPE = "FCPE" // Factura Cambiaria Pequeño Contribuyente Régimen Electrónico
	TipoFAAE = "FAAE" // Factura Contribuyente Agropecuario Régimen Electrónico Especial
	TipoFCAE = "FCAE" // Factura Cambiaria Contribuyente Agropecuario Régimen Electrónico Especial
	TipoCIVA = "CIVA" // Constancia de Exención de IVA
	TipoCAIS = "CAIS" // Constancia de Adquisición de Insumos y Servicios
	TipoNEV  = "NEV"  // Nota de Envío
	TipoRANT = "RANT" // Recibo de Anticipos
)

// ValidDTETypes contiene los tipos de DTE reconocidos por el régimen FEL.
var ValidDTETypes = map[string]bool{
	TipoFACT: true, TipoFCAM: true, TipoFPEQ: true, TipoFCAP: true,
	TipoFESP: true, TipoNABN: true, TipoRDON: true, TipoRECI: true,
	TipoNDEB: true, TipoNCRE: true, TipoFACA: true, TipoFCCA: true,
	TipoFAPE: true, TipoFCPE: true, TipoFAAE: true, TipoFCAE: true,
	TipoCIVA: true, TipoCAIS: true, TipoNEV: true, TipoRANT: true,
}

// TiposConReferencia contiene los tipos que deben referenciar el UUID de
// autorización de un documento de origen (complemento Referencias Nota).
var TiposConReferencia = map[string]bool{
	TipoNCRE: true,
	TipoNDEB: true,
}

// TiposSinExportacion contiene los tipos que no admiten la marca de exportación.
var TiposSinExportacion = map[string]bool{
	TipoFPEQ: true, TipoFCAP: true, TipoFAPE: true, TipoFCPE: true,
	TipoRECI: true, TipoRDON: true, TipoCIVA: true, TipoCAIS: true,
}

// TiposSinVentanaEmision contiene los tipos exentos del límite de cinco días
// entre emisión y certificación (regla 2.2.1.1).
var TiposSinVentanaEmision = map[string]bool{
	TipoCIVA: true,
	TipoCAIS: true,
}

// =============================================================================
// Monedas soportadas (catálogo ISO 4217 restringido al régimen FEL)
// =============================================================================

const (
	MonedaGTQ = "GTQ" // Quetzal guatemalteco
	MonedaUSD = "USD" // Dólar estadounidense
	MonedaEUR = "EUR" // Euro
)

// ValidCurrencies contiene las monedas aceptadas en DatosGenerales@Moneda.
var ValidCurrencies = map[string]bool{
	MonedaGTQ: true,
	MonedaUSD: true,
	MonedaEUR: true,
}

// =============================================================================
// Tipos de identificación del receptor
// =============================================================================

const (
	ReceptorNIT = "NIT" // Número de Identificación Tributaria
	ReceptorCUI = "CUI" // Código Único de Identificación (DPI, RENAP)
	ReceptorEXT = "EXT" // Pasaporte u otro documento extranjero
	ReceptorCF  = "CF"  // Consumidor Final
)

// IDConsumidorFinal es el identificador del receptor genérico sin NIT.
const IDConsumidorFinal = "CF"

// =============================================================================
// IVA - Decreto 27-92. Las unidades gravables del impuesto código 1.
// =============================================================================

const (
	UnidadGravableTasa12 = 1 // Tasa 12.00%
	UnidadGravableTasa0  = 2 // Tasa 0 (cero)
)

// TasaIVA devuelve la tasa porcentual asociada a una unidad gravable del IVA.
// Retorna false si la unidad gravable no existe en el catálogo.
func TasaIVA(unidadGravable int) (decimal.Decimal, bool) {
	switch unidadGravable {
	case UnidadGravableTasa12:
		return decimal.NewFromInt(12), true
	case UnidadGravableTasa0:
		return decimal.Zero, true
	default:
		return decimal.Decimal{}, false
	}
}

// =============================================================================
// Límites y tolerancias (Reglas y Validaciones v1.7.9)
// =============================================================================

var (
	// MaxMontoCF es el monto máximo en GTQ para ventas a Consumidor Final
	// (regla 2.2.4.11).
	MaxMontoCF = decimal.RequireFromString("2500.00")

	// ToleranciaMonetaria es la tolerancia de un centavo admitida en las
	// validaciones aritméticas de montos e impuestos.
	ToleranciaMonetaria = decimal.RequireFromString("0.01")

	// MaxMontoDocumento es el valor monetario máximo representable.
	MaxMontoDocumento = decimal.RequireFromString("999999999999.99")
)

const (
	// VentanaEmisionDias es el máximo de días entre la fecha de emisión y la
	// fecha de certificación (regla 2.2.1.1).
	VentanaEmisionDias = 5

	// Límites de campos de texto del esquema GT_Documento.
	MaxLenDescripcion = 500
	MaxLenNombre      = 256
	MaxLenDireccion   = 256
)

// =============================================================================
// INCOTERMS para el complemento de Exportaciones
// =============================================================================

// Incoterms contiene los términos de comercio internacional admitidos.
var Incoterms = map[string]string{
	"EXW": "En fábrica",
	"FCA": "Libre transportista",
	"FAS": "Libre al costado del buque",
	"FOB": "Libre a bordo",
	"CFR": "Costo y flete",
	"CIF": "Costo, seguro y flete",
	"CPT": "Flete pagado hasta",
	"CIP": "Flete y seguro pagado hasta",
	"DDP": "Entregado en destino con derechos pagados",
	"DAP": "Entregada en lugar",
	"DPU": "Entregada en el lugar de la descarga",
	"ZZZ": "Otros",
}
