package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

func TestRegistro_ListoParaReintento(t *testing.T) {
	ahora := time.Now()
	vencido := ahora.Add(-time.Second)
	futuro := ahora.Add(time.Minute)

	casos := []struct {
		nombre   string
		reg      entity.RegistroCertificacion
		esperado bool
	}{
		{"reintento vencido", entity.RegistroCertificacion{Estado: entity.EnvioErrorTransitorio, ProximoIntento: &vencido}, true},
		{"reintento futuro", entity.RegistroCertificacion{Estado: entity.EnvioErrorTransitorio, ProximoIntento: &futuro}, false},
		{"sin reintento programado", entity.RegistroCertificacion{Estado: entity.EnvioErrorTransitorio}, false},
		{"estado terminal", entity.RegistroCertificacion{Estado: entity.EnvioCertificado, ProximoIntento: &vencido}, false},
	}
	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			assert.Equal(t, c.esperado, c.reg.ListoParaReintento(ahora))
		})
	}
}

func TestRegistro_EsTerminal(t *testing.T) {
	terminales := []string{
		entity.EnvioCertificado, entity.EnvioRechazado,
		entity.EnvioErrorFatal, entity.EnvioAnulado, entity.EnvioAnomalia,
	}
	for _, e := range terminales {
		r := entity.RegistroCertificacion{Estado: e}
		assert.True(t, r.EsTerminal(), "el estado %s es terminal", e)
	}
	for _, e := range []string{entity.EnvioPendiente, entity.EnvioEnviando, entity.EnvioEsperandoResultado, entity.EnvioErrorTransitorio} {
		r := entity.RegistroCertificacion{Estado: e}
		assert.False(t, r.EsTerminal(), "el estado %s no es terminal", e)
	}
}
