package certify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalcularEspera_Exponencial(t *testing.T) {
	base := 2 * time.Second
	max := time.Minute

	assert.Equal(t, 2*time.Second, CalcularEspera(1, base, max))
	assert.Equal(t, 4*time.Second, CalcularEspera(2, base, max))
	assert.Equal(t, 8*time.Second, CalcularEspera(3, base, max))
	assert.Equal(t, 16*time.Second, CalcularEspera(4, base, max))
}

func TestCalcularEspera_Tope(t *testing.T) {
	assert.Equal(t, time.Minute, CalcularEspera(10, 2*time.Second, time.Minute))
	assert.Equal(t, time.Minute, CalcularEspera(63, 2*time.Second, time.Minute), "números grandes de intento no desbordan")
}

func TestCalcularEspera_EntradasDegeneradas(t *testing.T) {
	assert.Equal(t, 2*time.Second, CalcularEspera(0, 2*time.Second, time.Minute))
	assert.Equal(t, time.Second, CalcularEspera(1, 0, time.Minute))
}

func TestCandados_Exclusividad(t *testing.T) {
	c := nuevosCandados()

	assert.True(t, c.adquirir("doc-1"))
	assert.False(t, c.adquirir("doc-1"), "segundo trabajo no obtiene el candado")
	assert.True(t, c.adquirir("doc-2"), "documentos distintos no compiten")

	c.liberar("doc-1")
	assert.True(t, c.adquirir("doc-1"))
}
