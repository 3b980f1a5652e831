// Package fel contiene las reglas de negocio del régimen FEL (SAT Guatemala)
// aplicadas por el certificador antes de firmar un DTE, según el catálogo
// Reglas y Validaciones v1.7.9. Utiliza catálogos y algoritmos de pkg/fel.
package fel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	pkgfel "github.com/dcifuentes/fel-certificador/pkg/fel"
)

// VersionReglas es la versión del catálogo de reglas implementada.
const VersionReglas = "1.7.9"

// Contexto reúne el documento y los datos de consulta que las reglas
// necesitan. Emisor y Establecimiento pueden ser nil si no se resolvieron;
// las reglas que los requieren los rechazan en ese caso.
type Contexto struct {
	DTE                *entity.DTE
	Emisor             *entity.Emisor
	Establecimiento    *entity.Establecimiento
	FechaCertificacion time.Time
	// TipoCambioGTQ es el tipo de cambio a quetzales para documentos en
	// moneda extranjera. Cero = no disponible.
	TipoCambioGTQ decimal.Decimal
}

// Regla es una validación individual identificada por su código de catálogo.
// Evaluar retorna las incumplencias encontradas; vacío significa que pasó.
type Regla struct {
	Codigo  string
	Evaluar func(ctx *Contexto) []domain.ReglaIncumplida
}

// Validador aplica el conjunto ordenado de reglas: estructurales primero,
// luego formato, aritmética y por último las reglas fiscales cruzadas. El
// orden es estable para que los reportes de rechazo sean reproducibles.
type Validador struct {
	version string
	reglas  []Regla
}

// NuevoValidador construye el validador con el catálogo de reglas v1.7.9.
func NuevoValidador() *Validador {
	v := &Validador{version: VersionReglas}
	v.reglas = []Regla{
		// ── Estructurales ────────────────────────────────────────────
		{Codigo: "2.1.1", Evaluar: reglaTipoDTE},
		{Codigo: "2.1.3", Evaluar: reglaSerieNumero},
		{Codigo: "2.3.0", Evaluar: reglaTieneItems},
		// ── Formato ──────────────────────────────────────────────────
		{Codigo: "2.2.1", Evaluar: reglaFechaEmision},
		{Codigo: "2.2.2", Evaluar: reglaEmisor},
		{Codigo: "2.2.3", Evaluar: reglaEstablecimiento},
		{Codigo: "2.2.4", Evaluar: reglaReceptor},
		{Codigo: "2.2.5", Evaluar: reglaExportacion},
		{Codigo: "2.2.6", Evaluar: reglaLongitudes},
		{Codigo: "2.2.7", Evaluar: reglaMoneda},
		// ── Aritméticas ──────────────────────────────────────────────
		{Codigo: "2.3.5", Evaluar: reglaAritmeticaItems},
		{Codigo: "2.3.9", Evaluar: reglaImpuestos},
		{Codigo: "2.4.1", Evaluar: reglaTotales},
		// ── Fiscales cruzadas ────────────────────────────────────────
		{Codigo: "2.2.4.11", Evaluar: reglaLimiteCF},
		{Codigo: "2.10.1", Evaluar: reglaReferenciaNota},
	}
	return v
}

// Version devuelve la versión del catálogo de reglas.
func (v *Validador) Version() string { return v.version }

// Validar aplica todas las reglas y acumula las incumplencias. El documento
// se rechaza completo: un solo error de validación impide la certificación.
func (v *Validador) Validar(ctx *Contexto) error {
	if ctx == nil || ctx.DTE == nil {
		return &domain.ErrorValidacion{Reglas: []domain.ReglaIncumplida{
			{Codigo: "2.0.0", Mensaje: "documento nulo"},
		}}
	}
	var incumplidas []domain.ReglaIncumplida
	for _, r := range v.reglas {
		incumplidas = append(incumplidas, r.Evaluar(ctx)...)
	}
	if len(incumplidas) > 0 {
		return &domain.ErrorValidacion{Reglas: incumplidas}
	}
	return nil
}

// ── Estructurales ────────────────────────────────────────────────────────────

func reglaTipoDTE(ctx *Contexto) []domain.ReglaIncumplida {
	if !pkgfel.ValidDTETypes[ctx.DTE.Tipo] {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.1.1.1",
			Mensaje: fmt.Sprintf("tipo de DTE desconocido: %q", ctx.DTE.Tipo),
		}}
	}
	return nil
}

// reglaSerieNumero exige que serie y número coincidan con los derivados del
// UUID de autorización.
func reglaSerieNumero(ctx *Contexto) []domain.ReglaIncumplida {
	var out []domain.ReglaIncumplida
	serie, err := pkgfel.SerieDesdeUUID(ctx.DTE.UUID)
	if err != nil {
		return []domain.ReglaIncumplida{{Codigo: "2.1.3.0", Mensaje: err.Error()}}
	}
	numero, _ := pkgfel.NumeroDesdeUUID(ctx.DTE.UUID)
	if ctx.DTE.Serie != serie {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.1.3.1",
			Mensaje: fmt.Sprintf("serie %q no corresponde al UUID de autorización (esperada %q)", ctx.DTE.Serie, serie),
		})
	}
	if ctx.DTE.Numero != numero {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.1.3.2",
			Mensaje: fmt.Sprintf("número %d no corresponde al UUID de autorización (esperado %d)", ctx.DTE.Numero, numero),
		})
	}
	return out
}

func reglaTieneItems(ctx *Contexto) []domain.ReglaIncumplida {
	if len(ctx.DTE.Items) == 0 {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.3.0.1",
			Mensaje: "el documento debe tener al menos un ítem",
		}}
	}
	if ctx.DTE.Tipo == pkgfel.TipoCIVA && len(ctx.DTE.Items) > 2 {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.3.1.2",
			Mensaje: "los documentos CIVA no pueden tener más de dos ítems",
		}}
	}
	return nil
}

// ── Formato ──────────────────────────────────────────────────────────────────

func reglaFechaEmision(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	if d.FechaEmision.IsZero() {
		return []domain.ReglaIncumplida{{Codigo: "2.2.1.0", Mensaje: "falta la fecha de emisión"}}
	}
	cert := ctx.FechaCertificacion
	if cert.IsZero() {
		cert = time.Now()
	}
	var out []domain.ReglaIncumplida

	// Regla 2.2.1.1: máximo cinco días entre emisión y certificación
	// (CIVA y CAIS están exentos de la ventana).
	if !pkgfel.TiposSinVentanaEmision[d.Tipo] {
		if cert.Sub(d.FechaEmision) > pkgfel.VentanaEmisionDias*24*time.Hour {
			out = append(out, domain.ReglaIncumplida{
				Codigo:  "2.2.1.1",
				Mensaje: "la diferencia entre la fecha de emisión y de certificación excede los cinco días",
			})
		}
	}

	// Regla 2.2.1.2: la emisión no puede ser posterior al último día del mes
	// de certificación.
	finDeMes := time.Date(cert.Year(), cert.Month()+1, 1, 0, 0, 0, 0, cert.Location())
	if !d.FechaEmision.Before(finDeMes) {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.2.1.2",
			Mensaje: "la fecha de emisión es posterior al último día del mes de certificación",
		})
	}
	return out
}

func reglaEmisor(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	if d.EmisorNIT == "" {
		return []domain.ReglaIncumplida{{Codigo: "2.2.2.0", Mensaje: "falta el NIT del emisor"}}
	}
	if err := pkgfel.ValidarNIT(d.EmisorNIT); err != nil {
		return []domain.ReglaIncumplida{{Codigo: "2.2.2.1", Mensaje: err.Error()}}
	}
	if ctx.Emisor == nil {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.2.2.1",
			Mensaje: fmt.Sprintf("el NIT %s no está registrado ante el certificador", d.EmisorNIT),
		}}
	}
	if !ctx.Emisor.Activo {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.2.2.2",
			Mensaje: fmt.Sprintf("el NIT %s no está activo", d.EmisorNIT),
		}}
	}
	return nil
}

func reglaEstablecimiento(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	if d.CodigoEstablecimiento == "" {
		return []domain.ReglaIncumplida{{Codigo: "2.2.3.0", Mensaje: "falta el código de establecimiento"}}
	}
	if ctx.Establecimiento == nil {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.2.3.1",
			Mensaje: fmt.Sprintf("el establecimiento %s no existe para el emisor", d.CodigoEstablecimiento),
		}}
	}
	if !ctx.Establecimiento.VigenteEn(d.FechaEmision) {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.2.3.1",
			Mensaje: fmt.Sprintf("el establecimiento %s no está vigente en la fecha de emisión", d.CodigoEstablecimiento),
		}}
	}
	return nil
}

func reglaReceptor(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	if d.ReceptorID == "" {
		return []domain.ReglaIncumplida{{Codigo: "2.2.4.0", Mensaje: "falta el identificador del receptor"}}
	}
	switch d.ReceptorTipo {
	case pkgfel.ReceptorCUI:
		// Regla 2.2.4.2: CUI no admitido en exportaciones.
		if d.Exportacion {
			return []domain.ReglaIncumplida{{
				Codigo:  "2.2.4.2",
				Mensaje: "el tipo especial CUI no está permitido en exportaciones",
			}}
		}
		if err := pkgfel.ValidarCUI(d.ReceptorID); err != nil {
			return []domain.ReglaIncumplida{{Codigo: "2.2.4.3", Mensaje: err.Error()}}
		}
	case pkgfel.ReceptorNIT:
		if err := pkgfel.ValidarNIT(d.ReceptorID); err != nil {
			return []domain.ReglaIncumplida{{Codigo: "2.2.4.4", Mensaje: err.Error()}}
		}
	case pkgfel.ReceptorCF:
		if !pkgfel.EsConsumidorFinal(d.ReceptorID) {
			return []domain.ReglaIncumplida{{
				Codigo:  "2.2.4.0",
				Mensaje: "receptor de tipo CF debe identificarse exactamente como \"CF\"",
			}}
		}
	case pkgfel.ReceptorEXT:
		// documento extranjero: sin dígito verificador que validar
	default:
		return []domain.ReglaIncumplida{{
			Codigo:  "2.2.4.0",
			Mensaje: fmt.Sprintf("tipo de identificación del receptor desconocido: %q", d.ReceptorTipo),
		}}
	}
	return nil
}

func reglaExportacion(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	if !d.Exportacion {
		return nil
	}
	var out []domain.ReglaIncumplida
	if pkgfel.TiposSinExportacion[d.Tipo] {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.2.5.1",
			Mensaje: fmt.Sprintf("el tipo de DTE %s no admite la marca de exportación", d.Tipo),
		})
	}
	// El complemento de Exportaciones exige el término de comercio internacional.
	if d.Incoterm == "" {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.2.5.2",
			Mensaje: "los documentos de exportación deben indicar el INCOTERM",
		})
	} else if _, ok := pkgfel.Incoterms[d.Incoterm]; !ok {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.2.5.3",
			Mensaje: fmt.Sprintf("INCOTERM desconocido: %q", d.Incoterm),
		})
	}
	return out
}

// reglaLongitudes aplica los límites de campos de texto del esquema
// GT_Documento. Las longitudes se cuentan en caracteres, no en bytes.
func reglaLongitudes(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	var out []domain.ReglaIncumplida
	if len([]rune(d.ReceptorNombre)) > pkgfel.MaxLenNombre {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.2.6.1",
			Mensaje: fmt.Sprintf("el nombre del receptor excede los %d caracteres", pkgfel.MaxLenNombre),
		})
	}
	if ctx.Emisor != nil && len([]rune(ctx.Emisor.Direccion)) > pkgfel.MaxLenDireccion {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.2.6.2",
			Mensaje: fmt.Sprintf("la dirección del emisor excede los %d caracteres", pkgfel.MaxLenDireccion),
		})
	}
	for _, it := range d.Items {
		if len([]rune(it.Descripcion)) > pkgfel.MaxLenDescripcion {
			out = append(out, domain.ReglaIncumplida{
				Codigo:  "2.2.6.3",
				Mensaje: fmt.Sprintf("la descripción de la línea %d excede los %d caracteres", it.NumeroLinea, pkgfel.MaxLenDescripcion),
			})
		}
	}
	return out
}

func reglaMoneda(ctx *Contexto) []domain.ReglaIncumplida {
	if !pkgfel.ValidCurrencies[ctx.DTE.Moneda] {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.2.7.0",
			Mensaje: fmt.Sprintf("moneda no soportada: %q", ctx.DTE.Moneda),
		}}
	}
	return nil
}

// ── Aritméticas ──────────────────────────────────────────────────────────────

// reglaAritmeticaItems valida precio, descuentos y total por línea con la
// tolerancia monetaria de un centavo.
func reglaAritmeticaItems(ctx *Contexto) []domain.ReglaIncumplida {
	var out []domain.ReglaIncumplida
	for _, it := range ctx.DTE.Items {
		// Regla 2.3.5: Precio = Cantidad * PrecioUnitario
		esperado := it.Cantidad.Mul(it.PrecioUnitario)
		if it.Precio.Sub(esperado).Abs().GreaterThan(pkgfel.ToleranciaMonetaria) {
			out = append(out, domain.ReglaIncumplida{
				Codigo:  "2.3.5.1",
				Mensaje: fmt.Sprintf("precio mal calculado en la línea %d: %s, esperado %s", it.NumeroLinea, it.Precio, esperado.Round(2)),
			})
			continue
		}
		// Regla 2.3.6: el descuento no puede exceder el precio
		if it.Descuento.GreaterThan(it.Precio) {
			out = append(out, domain.ReglaIncumplida{
				Codigo:  "2.3.6.1",
				Mensaje: fmt.Sprintf("el descuento excede el precio en la línea %d", it.NumeroLinea),
			})
			continue
		}
		// Regla 2.3.7: otros descuentos no pueden exceder precio - descuento
		if it.OtrosDescuentos.GreaterThan(it.Precio.Sub(it.Descuento)) {
			out = append(out, domain.ReglaIncumplida{
				Codigo:  "2.3.7.1",
				Mensaje: fmt.Sprintf("otros descuentos exceden el precio menos el descuento en la línea %d", it.NumeroLinea),
			})
			continue
		}
		// Total de línea = Precio - Descuento - OtrosDescuentos
		total := it.Precio.Sub(it.Descuento).Sub(it.OtrosDescuentos)
		if it.Total.Sub(total).Abs().GreaterThan(pkgfel.ToleranciaMonetaria) {
			out = append(out, domain.ReglaIncumplida{
				Codigo:  "2.3.5.2",
				Mensaje: fmt.Sprintf("total mal calculado en la línea %d: %s, esperado %s", it.NumeroLinea, it.Total, total.Round(2)),
			})
		}
	}
	return out
}

// reglaImpuestos valida el cálculo del IVA por línea: el monto del impuesto
// debe corresponder al monto gravable por la tasa de la unidad gravable.
func reglaImpuestos(ctx *Contexto) []domain.ReglaIncumplida {
	var out []domain.ReglaIncumplida
	for _, it := range ctx.DTE.Items {
		for _, imp := range it.Impuestos {
			if imp.NombreCorto != "IVA" {
				continue
			}
			tasa, ok := pkgfel.TasaIVA(imp.CodigoUnidadGravable)
			if !ok {
				out = append(out, domain.ReglaIncumplida{
					Codigo:  "2.3.9.1",
					Mensaje: fmt.Sprintf("unidad gravable del IVA desconocida en la línea %d: %d", it.NumeroLinea, imp.CodigoUnidadGravable),
				})
				continue
			}
			esperado := imp.MontoGravable.Mul(tasa).Div(decimal.NewFromInt(100))
			if imp.MontoImpuesto.Sub(esperado).Abs().GreaterThan(pkgfel.ToleranciaMonetaria) {
				out = append(out, domain.ReglaIncumplida{
					Codigo:  "2.3.9.2",
					Mensaje: fmt.Sprintf("IVA mal calculado en la línea %d: %s, esperado %s", it.NumeroLinea, imp.MontoImpuesto, esperado.Round(2)),
				})
			}
		}
	}
	return out
}

// reglaTotales valida que el gran total y el total de impuestos del documento
// coincidan con la suma de las líneas.
func reglaTotales(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	var out []domain.ReglaIncumplida
	sumaTotal := decimal.Zero
	sumaIVA := decimal.Zero
	for _, it := range d.Items {
		sumaTotal = sumaTotal.Add(it.Total)
		sumaIVA = sumaIVA.Add(it.SumaImpuesto("IVA"))
	}
	if d.GranTotal.Sub(sumaTotal).Abs().GreaterThan(pkgfel.ToleranciaMonetaria) {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.4.1.1",
			Mensaje: fmt.Sprintf("gran total (%s) no coincide con la suma de líneas (%s)", d.GranTotal, sumaTotal.Round(2)),
		})
	}
	if d.TotalImpuestos.Sub(sumaIVA).Abs().GreaterThan(pkgfel.ToleranciaMonetaria) {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.4.1.2",
			Mensaje: fmt.Sprintf("total de impuestos (%s) no coincide con la suma por líneas (%s)", d.TotalImpuestos, sumaIVA.Round(2)),
		})
	}
	if d.GranTotal.GreaterThan(pkgfel.MaxMontoDocumento) {
		out = append(out, domain.ReglaIncumplida{
			Codigo:  "2.4.1.3",
			Mensaje: "el gran total excede el valor monetario máximo representable",
		})
	}
	return out
}

// ── Fiscales cruzadas ────────────────────────────────────────────────────────

// reglaLimiteCF aplica el límite de Q2,500.00 para ventas a Consumidor Final.
// En moneda extranjera se convierte con el tipo de cambio del contexto; sin
// tipo de cambio disponible la regla no puede evaluarse y rechaza.
func reglaLimiteCF(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	if d.ReceptorTipo != pkgfel.ReceptorCF || d.Exportacion {
		return nil
	}
	enGTQ := d.GranTotal
	if d.Moneda != pkgfel.MonedaGTQ {
		if ctx.TipoCambioGTQ.IsZero() {
			return []domain.ReglaIncumplida{{
				Codigo:  "2.2.7.2",
				Mensaje: "no hay tipo de cambio para evaluar el límite de Consumidor Final en moneda extranjera",
			}}
		}
		enGTQ = d.GranTotal.Mul(ctx.TipoCambioGTQ)
	}
	if enGTQ.GreaterThan(pkgfel.MaxMontoCF) {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.2.4.11",
			Mensaje: fmt.Sprintf("el monto %s GTQ excede el límite de %s para Consumidor Final", enGTQ.Round(2), pkgfel.MaxMontoCF),
		}}
	}
	return nil
}

// reglaReferenciaNota exige que las notas de crédito y débito referencien el
// UUID de autorización del documento de origen.
func reglaReferenciaNota(ctx *Contexto) []domain.ReglaIncumplida {
	d := ctx.DTE
	if !pkgfel.TiposConReferencia[d.Tipo] {
		return nil
	}
	if d.ReferenciaUUID == "" {
		return []domain.ReglaIncumplida{{
			Codigo:  "2.10.1.1",
			Mensaje: fmt.Sprintf("el tipo %s debe referenciar el UUID de autorización del documento origen", d.Tipo),
		}}
	}
	if err := pkgfel.ValidarUUIDAutorizacion(d.ReferenciaUUID); err != nil {
		return []domain.ReglaIncumplida{{Codigo: "2.10.1.2", Mensaje: err.Error()}}
	}
	return nil
}
