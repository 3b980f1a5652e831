package sat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat"
)

// Dos serializaciones del mismo documento, distinto orden de atributos y
// distinto uso de elementos vacíos, deben canonicalizar a los mismos bytes.
// La verificación de la firma depende de esto.
func TestCanonicalizar_Determinista(t *testing.T) {
	a := []byte(`<doc b="2" a="1"><hijo/></doc>`)
	b := []byte(`<doc a="1" b="2"><hijo></hijo></doc>`)

	canonA, err := sat.Canonicalizar(a)
	require.NoError(t, err)
	canonB, err := sat.Canonicalizar(b)
	require.NoError(t, err)

	assert.Equal(t, canonA, canonB)
}

// La canonicalización es idempotente: canonicalizar la forma canónica no la
// cambia.
func TestCanonicalizar_Idempotente(t *testing.T) {
	doc := []byte(`<doc  z="26"  a="1" ><hijo>texto</hijo></doc>`)

	una, err := sat.Canonicalizar(doc)
	require.NoError(t, err)
	dos, err := sat.Canonicalizar(una)
	require.NoError(t, err)

	assert.Equal(t, una, dos)
}

func TestCanonicalizar_DocumentoGenerado(t *testing.T) {
	builder := sat.NewXMLBuilderService()
	out, err := builder.Build(buildContextoPrueba())
	require.NoError(t, err)

	canon, err := sat.Canonicalizar(out)
	require.NoError(t, err)
	assert.NotEmpty(t, canon)

	// Construir dos veces el mismo DTE produce la misma forma canónica.
	out2, err := builder.Build(buildContextoPrueba())
	require.NoError(t, err)
	canon2, err := sat.Canonicalizar(out2)
	require.NoError(t, err)
	assert.Equal(t, canon, canon2)
}

func TestCanonicalizar_XMLInvalido(t *testing.T) {
	_, err := sat.Canonicalizar([]byte(`<doc><sin-cerrar>`))
	assert.Error(t, err)
}
