package sat_test

import (
	"bytes"
	"encoding/xml"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat"
)

func dtePrueba() *entity.DTE {
	fecha, _ := time.Parse(time.RFC3339, "2026-08-20T10:30:00-06:00")
	return &entity.DTE{
		UUID:                  "89ABCDEF-1234-4678-9ABC-DEF012345678",
		Serie:                 "89ABCDEF",
		Numero:                305415800,
		Tipo:                  "FACT",
		EmisorNIT:             "123456789",
		CodigoEstablecimiento: "1",
		ReceptorID:            "CF",
		ReceptorTipo:          "CF",
		ReceptorNombre:        "Consumidor Final",
		Moneda:                "GTQ",
		FechaEmision:          fecha,
		Items: []entity.ItemDTE{
			{
				NumeroLinea:    1,
				BienOServicio:  "B",
				Cantidad:       decimal.NewFromInt(2),
				UnidadMedida:   "UND",
				Descripcion:    "Café molido 500g",
				PrecioUnitario: decimal.RequireFromString("56.00"),
				Precio:         decimal.RequireFromString("112.00"),
				Descuento:      decimal.Zero,
				Impuestos: []entity.ImpuestoItem{
					{
						NombreCorto:          "IVA",
						CodigoUnidadGravable: 1,
						MontoGravable:        decimal.RequireFromString("100.00"),
						MontoImpuesto:        decimal.RequireFromString("12.00"),
					},
				},
				Total: decimal.RequireFromString("112.00"),
			},
		},
		GranTotal:      decimal.RequireFromString("112.00"),
		TotalImpuestos: decimal.RequireFromString("12.00"),
	}
}

func emisorPrueba() *entity.Emisor {
	return &entity.Emisor{
		NIT:             "123456789",
		Nombre:          "Cafetales del Altiplano, S.A.",
		NombreComercial: "Café Altiplano",
		AfiliacionIVA:   "GEN",
		Direccion:       "4a calle 5-20 zona 1",
		CodigoPostal:    "01001",
		Municipio:       "Guatemala",
		Departamento:    "Guatemala",
		Pais:            "GT",
		Activo:          true,
	}
}

func buildContextoPrueba() *sat.DocumentoBuildContext {
	certificada, _ := time.Parse(time.RFC3339, "2026-08-20T10:31:05-06:00")
	return &sat.DocumentoBuildContext{
		DTE:                dtePrueba(),
		Emisor:             emisorPrueba(),
		CorreoEmisor:       "facturacion@altiplano.gt",
		NITCertificador:    "987654321",
		NombreCertificador: "Certificador FEL, S.A.",
		FechaCertificacion: certificada,
	}
}

func TestBuild_DocumentoCompleto(t *testing.T) {
	builder := sat.NewXMLBuilderService()
	out, err := builder.Build(buildContextoPrueba())
	require.NoError(t, err)

	xmlStr := string(out)

	// ───────────────────────────────────────────────
	// Atributos raíz: el Id es la URI de la Reference
	// ───────────────────────────────────────────────
	assert.Contains(t, xmlStr, `Id="`+sat.DocumentoElementID+`"`)
	assert.Contains(t, xmlStr, `Version="0.1"`)
	assert.Contains(t, xmlStr, sat.NsDTE)

	// Datos generales y emisor
	assert.Contains(t, xmlStr, `Tipo="FACT"`)
	assert.Contains(t, xmlStr, `FechaHoraEmision="2026-08-20T10:30:00-06:00"`)
	assert.Contains(t, xmlStr, `CodigoMoneda="GTQ"`)
	assert.Contains(t, xmlStr, `NITEmisor="123456789"`)
	assert.Contains(t, xmlStr, `CodigoEstablecimiento="1"`)

	// Receptor CF sin TipoEspecial
	assert.Contains(t, xmlStr, `IDReceptor="CF"`)
	assert.NotContains(t, xmlStr, `TipoEspecial="CF"`)

	// Montos con dos decimales fijos
	assert.Contains(t, xmlStr, ">112.00<")
	assert.Contains(t, xmlStr, ">12.00<")
	assert.Contains(t, xmlStr, ">56.00<")

	// Total de impuestos agregado
	assert.Contains(t, xmlStr, `NombreCorto="IVA"`)
	assert.Contains(t, xmlStr, `TotalMontoImpuesto="12.00"`)

	// Certificación: número de autorización derivado del UUID
	assert.Contains(t, xmlStr, `Serie="89ABCDEF"`)
	assert.Contains(t, xmlStr, `Numero="305415800"`)
	assert.Contains(t, xmlStr, ">89ABCDEF-1234-4678-9ABC-DEF012345678<")

	// Sin referencia no hay complementos
	assert.NotContains(t, xmlStr, "ReferenciasNota")
}

func TestBuild_XMLBienFormado(t *testing.T) {
	builder := sat.NewXMLBuilderService()
	out, err := builder.Build(buildContextoPrueba())
	require.NoError(t, err)

	dec := xml.NewDecoder(bytes.NewReader(out))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err, "el documento generado debe ser XML bien formado")
	}
}

func TestBuild_ReceptorCUIConTipoEspecial(t *testing.T) {
	ctx := buildContextoPrueba()
	ctx.DTE.ReceptorTipo = "CUI"
	ctx.DTE.ReceptorID = "1234567820101"
	ctx.DTE.ReceptorNombre = "María López"

	builder := sat.NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), `TipoEspecial="CUI"`)
	assert.Contains(t, string(out), `IDReceptor="1234567820101"`)
}

func TestBuild_ExportacionConComplemento(t *testing.T) {
	ctx := buildContextoPrueba()
	ctx.DTE.Exportacion = true
	ctx.DTE.Incoterm = "CIF"
	ctx.DTE.ReceptorNombre = "Importadora del Sur"

	builder := sat.NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)

	xmlStr := string(out)
	assert.Contains(t, xmlStr, `Exp="SI"`)
	assert.Contains(t, xmlStr, sat.NsCEX, "el complemento de Exportaciones lleva su namespace")
	assert.Contains(t, xmlStr, ">CIF<")
	assert.Contains(t, xmlStr, "Importadora del Sur")
	assert.Contains(t, xmlStr, "NombreExportador")
}

func TestBuild_NotaConReferencia(t *testing.T) {
	ctx := buildContextoPrueba()
	ctx.DTE.Tipo = "NCRE"
	ctx.DTE.ReferenciaUUID = "00000000-FFFF-4FFF-8000-000000000000"
	ctx.DTE.MotivoAjuste = "Devolución parcial de mercadería"

	builder := sat.NewXMLBuilderService()
	out, err := builder.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), "ReferenciasNota")
	assert.Contains(t, string(out), `NumeroAutorizacionDocumentoOrigen="00000000-FFFF-4FFF-8000-000000000000"`)
	assert.Contains(t, string(out), `MotivoAjuste="Devolución parcial de mercadería"`, "el motivo del ajuste viene de la petición, no del veredicto")
}

func TestBuild_ContextoIncompleto(t *testing.T) {
	builder := sat.NewXMLBuilderService()

	_, err := builder.Build(nil)
	assert.Error(t, err)

	_, err = builder.Build(&sat.DocumentoBuildContext{DTE: dtePrueba()})
	assert.Error(t, err, "sin emisor no hay documento")
}
