package fel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcifuentes/fel-certificador/pkg/fel"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestValidarNIT valida el algoritmo módulo 11 de la SAT con vectores
// calculados a mano. Este test es el "canario en la mina" de la validación de
// contribuyentes: si alguien altera los pesos o el manejo del residuo, NITs
// reales dejan de validar y el test falla de inmediato.
//
// Vectores:
//
//	base "12345678": 1·9+2·8+3·7+4·6+5·5+6·4+7·3+8·2 = 156, 156 mod 11 = 2,
//	                 dígito = 11-2 = 9            -> "123456789" válido
//	base "71":       7·3+1·2 = 23, 23 mod 11 = 1, dígito = 'K' -> "71K" válido
//	base "45":       4·3+5·2 = 22, 22 mod 11 = 0, dígito = '0' -> "450" válido
// ──────────────────────────────────────────────────────────────────────────────

func TestValidarNIT_VectoresValidos(t *testing.T) {
	validos := []string{"123456789", "71K", "450", "124"}
	for _, nit := range validos {
		assert.NoError(t, fel.ValidarNIT(nit), "el NIT %s debe ser válido", nit)
	}
}

func TestValidarNIT_DigitoIncorrecto(t *testing.T) {
	err := fel.ValidarNIT("123456788")
	require.Error(t, err, "un dígito verificador incorrecto debe rechazarse")
	assert.Contains(t, err.Error(), "dígito verificador")
}

func TestValidarNIT_FormatoInvalido(t *testing.T) {
	invalidos := []string{"", "CF", "ABC123", "K", "1234567890123X"}
	for _, nit := range invalidos {
		assert.Error(t, fel.ValidarNIT(nit), "el NIT %q no cumple el formato y debe rechazarse", nit)
	}
}

// TestCalcularDigitoNIT_ResiduoUno verifica el caso especial en que el residuo
// es 1 y el dígito verificador es la letra K.
func TestCalcularDigitoNIT_ResiduoUno(t *testing.T) {
	assert.Equal(t, byte('K'), fel.CalcularDigitoNIT("71"))
}

func TestCalcularDigitoNIT_ResiduoCero(t *testing.T) {
	assert.Equal(t, byte('0'), fel.CalcularDigitoNIT("45"))
}

// ── CUI (DPI emitido por RENAP) ───────────────────────────────────────────────

// TestValidarCUI_VectorExacto usa el vector "1234567820101": los primeros ocho
// dígitos ponderados con pesos 2 a 9 suman 240, (240·10) mod 11 = 2, que debe
// coincidir con el noveno dígito.
func TestValidarCUI_VectorExacto(t *testing.T) {
	assert.NoError(t, fel.ValidarCUI("1234567820101"))
	assert.NoError(t, fel.ValidarCUI("2589631410101"))
}

func TestValidarCUI_DigitoIncorrecto(t *testing.T) {
	err := fel.ValidarCUI("1234567830101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dígito verificador")
}

func TestValidarCUI_FormatoInvalido(t *testing.T) {
	invalidos := []string{"", "123456782010", "12345678201011", "123456782010A"}
	for _, cui := range invalidos {
		assert.Error(t, fel.ValidarCUI(cui), "el CUI %q no tiene 13 dígitos y debe rechazarse", cui)
	}
}

func TestEsConsumidorFinal(t *testing.T) {
	assert.True(t, fel.EsConsumidorFinal("CF"))
	assert.False(t, fel.EsConsumidorFinal("cf"), "el identificador CF es sensible a mayúsculas")
	assert.False(t, fel.EsConsumidorFinal("123456789"))
}
