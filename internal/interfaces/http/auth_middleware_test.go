package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcifuentes/fel-certificador/internal/application/auth"
	apphttp "github.com/dcifuentes/fel-certificador/internal/interfaces/http"
	pkgjwt "github.com/dcifuentes/fel-certificador/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testEmisorNIT = "1234567K"
	testIssuer    = "fel-certificador-test"
	testExpMin    = 60
)

// buildTestApp construye una aplicación Fiber mínima con:
//   - AuthMiddleware para parsear el JWT y cargar locals
//   - RequireRol para autorizar el acceso
//   - Un handler dummy que devuelve 200 si pasa los middlewares
func buildTestApp(rol string) *fiber.App {
	app := fiber.New(fiber.Config{
		// Silenciar errores internos en los tests
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Get("/protected",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireRol(rol),
		func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"ok":  true,
				"rol": apphttp.GetRol(c),
			})
		},
	)
	return app
}

// tokenConRol genera un JWT con el NIT y rol indicados.
func tokenConRol(t *testing.T, emisorNIT, rol string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, emisorNIT, rol, testIssuer, testExpMin)
	require.NoError(t, err, "debe generarse un token JWT válido")
	return "Bearer " + tok
}

// doRequest lanza una petición GET /protected y devuelve la respuesta.
func doRequest(t *testing.T, app *fiber.App, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests RequireRol
// ──────────────────────────────────────────────────────────────────────────────

// Caso 1: El token porta el rol requerido → debe pasar (HTTP 200).
func TestRequireRol_OperadorAccedeRutaOperador(t *testing.T) {
	app := buildTestApp(auth.RolOperador)
	resp := doRequest(t, app, tokenConRol(t, "", auth.RolOperador))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode,
		"operador debe poder acceder a ruta restringida a operador")

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"], "la respuesta debe incluir ok:true")
	assert.Equal(t, auth.RolOperador, body["rol"], "el rol debe ser operador")
}

// Caso 2: El token porta un rol distinto al requerido → HTTP 403 Forbidden.
func TestRequireRol_EmisorBloqueadoEnRutaOperador(t *testing.T) {
	app := buildTestApp(auth.RolOperador)
	resp := doRequest(t, app, tokenConRol(t, testEmisorNIT, auth.RolEmisor))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode,
		"emisor no debe poder acceder a ruta restringida a operador")

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "FORBIDDEN",
		"la respuesta de error debe incluir el código FORBIDDEN")
}

// Caso 3: Sin header Authorization → HTTP 401 MISSING_TOKEN.
func TestRequireRol_SinAuthHeader_Retorna401(t *testing.T) {
	app := buildTestApp(auth.RolOperador)
	resp := doRequest(t, app, "") // sin header
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Caso 4: Token inválido / malformado → HTTP 401 INVALID_TOKEN.
func TestRequireRol_TokenInvalido_Retorna401(t *testing.T) {
	app := buildTestApp(auth.RolOperador)
	resp := doRequest(t, app, "Bearer token.invalido.aqui")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests RequireEmisor
// ──────────────────────────────────────────────────────────────────────────────

func buildTestAppEmisor() *fiber.App {
	app := fiber.New()
	app.Get("/protected",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireEmisor(),
		func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"emisor_nit": apphttp.GetEmisorNIT(c)})
		},
	)
	return app
}

func TestRequireEmisor_EmisorConNITAccede(t *testing.T) {
	app := buildTestAppEmisor()
	resp := doRequest(t, app, tokenConRol(t, testEmisorNIT, auth.RolEmisor))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testEmisorNIT, body["emisor_nit"],
		"el NIT del token debe quedar disponible en el contexto")
}

// Un token de operador no identifica a un emisor: no puede certificar.
func TestRequireEmisor_OperadorBloqueado(t *testing.T) {
	app := buildTestAppEmisor()
	resp := doRequest(t, app, tokenConRol(t, "", auth.RolOperador))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// Un token de rol emisor sin NIT es un token malformado: se rechaza.
func TestRequireEmisor_EmisorSinNITBloqueado(t *testing.T) {
	app := buildTestAppEmisor()
	resp := doRequest(t, app, tokenConRol(t, "", auth.RolEmisor))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests AuthMiddleware — extracción de claims del token
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware_ExtractaClaims(t *testing.T) {
	app := fiber.New()
	app.Get("/me", apphttp.AuthMiddleware(testJWTSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"emisor_nit": apphttp.GetEmisorNIT(c),
			"rol":        apphttp.GetRol(c),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", tokenConRol(t, testEmisorNIT, auth.RolEmisor))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testEmisorNIT, body["emisor_nit"])
	assert.Equal(t, auth.RolEmisor, body["rol"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests JWT pkg — integridad del generate/parse
// ──────────────────────────────────────────────────────────────────────────────

func TestJWT_GenerateAndParse(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testEmisorNIT, auth.RolEmisor, testIssuer, testExpMin)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	emisorNIT, rol, err := pkgjwt.Parse(testJWTSecret, tok)
	require.NoError(t, err)

	assert.Equal(t, testEmisorNIT, emisorNIT)
	assert.Equal(t, auth.RolEmisor, rol)
}

func TestJWT_TokenExpirado_RetornaError(t *testing.T) {
	// Token con expiración -1 minuto (ya expirado)
	tok, err := pkgjwt.Generate(testJWTSecret, testEmisorNIT, auth.RolEmisor, testIssuer, -1)
	require.NoError(t, err)

	_, _, err = pkgjwt.Parse(testJWTSecret, tok)
	assert.Error(t, err, "token expirado debe retornar error")
}

func TestJWT_SecretIncorrecto_RetornaError(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testEmisorNIT, auth.RolEmisor, testIssuer, testExpMin)
	require.NoError(t, err)

	_, _, err = pkgjwt.Parse("otro-secret-completamente-distinto", tok)
	assert.Error(t, err, "secret incorrecto debe invalidar el token")
}
