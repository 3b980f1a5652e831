package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

// TestTransicionar_FlujoFeliz recorre el ciclo completo de certificación:
// BORRADOR -> VALIDADO -> FIRMADO -> ENVIADO -> CERTIFICADO.
func TestTransicionar_FlujoFeliz(t *testing.T) {
	d := &entity.DTE{Estado: entity.EstadoBorrador}

	for _, destino := range []string{
		entity.EstadoValidado,
		entity.EstadoFirmado,
		entity.EstadoEnviado,
		entity.EstadoCertificado,
	} {
		require.NoError(t, d.Transicionar(destino), "la transición a %s debe permitirse", destino)
		assert.Equal(t, destino, d.Estado)
	}
}

func TestTransicionar_SaltoProhibido(t *testing.T) {
	d := &entity.DTE{Estado: entity.EstadoBorrador}
	err := d.Transicionar(entity.EstadoCertificado)
	require.Error(t, err, "un borrador no puede certificarse sin validar ni firmar")
	assert.Equal(t, entity.EstadoBorrador, d.Estado, "el estado no debe cambiar en una transición rechazada")
}

func TestTransicionar_EstadosTerminalesNoAvanzan(t *testing.T) {
	terminales := []string{
		entity.EstadoValidacionFallida,
		entity.EstadoRechazado,
		entity.EstadoAnulado,
		entity.EstadoError,
	}
	for _, estado := range terminales {
		d := &entity.DTE{Estado: estado}
		assert.Error(t, d.Transicionar(entity.EstadoEnviado),
			"el estado terminal %s no admite transiciones", estado)
		assert.True(t, d.EsTerminal())
	}
}

// TestTransicionar_CertificadoAdmiteAnulacion comprueba el único salto válido
// desde CERTIFICADO.
func TestTransicionar_CertificadoAdmiteAnulacion(t *testing.T) {
	d := &entity.DTE{Estado: entity.EstadoCertificado}
	assert.False(t, d.EsTerminal())
	require.NoError(t, d.Transicionar(entity.EstadoAnulado))
	assert.True(t, d.EsTerminal())
}

func TestTransicionar_EnviadoPuedeAnularse(t *testing.T) {
	d := &entity.DTE{Estado: entity.EstadoEnviado}
	assert.NoError(t, d.Transicionar(entity.EstadoAnulado))
}
