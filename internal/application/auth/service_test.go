package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dcifuentes/fel-certificador/internal/application/dto"
	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Mock en memoria del repositorio de emisores
// ──────────────────────────────────────────────────────────────────────────────

type emisoresMem struct {
	emisores         map[string]*entity.Emisor
	establecimientos map[string]*entity.Establecimiento
}

func nuevoEmisoresMem() *emisoresMem {
	return &emisoresMem{
		emisores:         make(map[string]*entity.Emisor),
		establecimientos: make(map[string]*entity.Establecimiento),
	}
}

func (r *emisoresMem) Create(_ context.Context, e *entity.Emisor) error {
	if _, ok := r.emisores[e.NIT]; ok {
		return domain.ErrDuplicate
	}
	r.emisores[e.NIT] = e
	return nil
}

func (r *emisoresMem) GetByNIT(_ context.Context, nit string) (*entity.Emisor, error) {
	e, ok := r.emisores[nit]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (r *emisoresMem) CreateEstablecimiento(_ context.Context, est *entity.Establecimiento) error {
	clave := est.EmisorNIT + "|" + est.Codigo
	if _, ok := r.establecimientos[clave]; ok {
		return domain.ErrDuplicate
	}
	r.establecimientos[clave] = est
	return nil
}

func (r *emisoresMem) GetEstablecimiento(_ context.Context, emisorNIT, codigo string) (*entity.Establecimiento, error) {
	est, ok := r.establecimientos[emisorNIT+"|"+codigo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return est, nil
}

// NIT con dígito verificador correcto para las altas.
const nitValido = "123456789"

func cfgPrueba() Config {
	return Config{
		Secret:        "secreto-de-prueba",
		ExpMinutes:    30,
		Issuer:        "certificador-test",
		ClaveOperador: "clave-operador-larga",
	}
}

func registroPrueba() dto.RegistrarEmisorRequest {
	return dto.RegistrarEmisorRequest{
		NIT:           nitValido,
		Nombre:        "Comercial La Ceiba, S.A.",
		AfiliacionIVA: "GEN",
		ClaveAPI:      "clave-api-muy-larga",
		Establecimientos: []dto.EstablecimientoRequest{
			{Codigo: "1", Nombre: "Casa matriz", VigenteDesde: time.Now().AddDate(-1, 0, 0)},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// RegistrarEmisor
// ──────────────────────────────────────────────────────────────────────────────

func TestRegistrarEmisor_GuardaHashYEstablecimientos(t *testing.T) {
	repo := nuevoEmisoresMem()
	svc := NewService(repo, cfgPrueba())

	out, err := svc.RegistrarEmisor(context.Background(), registroPrueba())
	require.NoError(t, err)
	assert.Equal(t, nitValido, out.NIT)
	assert.True(t, out.Activo)

	guardado := repo.emisores[nitValido]
	require.NotNil(t, guardado)
	assert.NotEmpty(t, guardado.ClaveAPIHash, "la clave de API debe guardarse hasheada")
	assert.NotEqual(t, "clave-api-muy-larga", guardado.ClaveAPIHash,
		"la clave nunca se guarda en claro")
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(guardado.ClaveAPIHash), []byte("clave-api-muy-larga")))

	_, err = repo.GetEstablecimiento(context.Background(), nitValido, "1")
	assert.NoError(t, err, "el establecimiento debe quedar registrado")
}

func TestRegistrarEmisor_NITConDigitoIncorrecto(t *testing.T) {
	svc := NewService(nuevoEmisoresMem(), cfgPrueba())
	in := registroPrueba()
	in.NIT = "123456788"

	_, err := svc.RegistrarEmisor(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistrarEmisor_ClaveCorta(t *testing.T) {
	svc := NewService(nuevoEmisoresMem(), cfgPrueba())
	in := registroPrueba()
	in.ClaveAPI = "corta"

	_, err := svc.RegistrarEmisor(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistrarEmisor_SinEstablecimientos(t *testing.T) {
	svc := NewService(nuevoEmisoresMem(), cfgPrueba())
	in := registroPrueba()
	in.Establecimientos = nil

	_, err := svc.RegistrarEmisor(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistrarEmisor_NITDuplicado(t *testing.T) {
	repo := nuevoEmisoresMem()
	svc := NewService(repo, cfgPrueba())

	_, err := svc.RegistrarEmisor(context.Background(), registroPrueba())
	require.NoError(t, err)

	_, err = svc.RegistrarEmisor(context.Background(), registroPrueba())
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

// ──────────────────────────────────────────────────────────────────────────────
// EmitirToken
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitirToken_EmisorRegistrado(t *testing.T) {
	repo := nuevoEmisoresMem()
	svc := NewService(repo, cfgPrueba())
	_, err := svc.RegistrarEmisor(context.Background(), registroPrueba())
	require.NoError(t, err)

	out, err := svc.EmitirToken(context.Background(), dto.TokenRequest{
		EmisorNIT: nitValido,
		ClaveAPI:  "clave-api-muy-larga",
	})
	require.NoError(t, err)
	assert.Equal(t, RolEmisor, out.Rol)

	nit, rol, err := jwt.Parse("secreto-de-prueba", out.Token)
	require.NoError(t, err)
	assert.Equal(t, nitValido, nit, "el token debe portar el NIT del emisor")
	assert.Equal(t, RolEmisor, rol)
}

func TestEmitirToken_ClaveIncorrecta(t *testing.T) {
	repo := nuevoEmisoresMem()
	svc := NewService(repo, cfgPrueba())
	_, err := svc.RegistrarEmisor(context.Background(), registroPrueba())
	require.NoError(t, err)

	_, err = svc.EmitirToken(context.Background(), dto.TokenRequest{
		EmisorNIT: nitValido,
		ClaveAPI:  "clave-equivocada",
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// Un NIT desconocido responde igual que una clave incorrecta: no se revela
// qué emisores existen.
func TestEmitirToken_EmisorDesconocido(t *testing.T) {
	svc := NewService(nuevoEmisoresMem(), cfgPrueba())

	_, err := svc.EmitirToken(context.Background(), dto.TokenRequest{
		EmisorNIT: "999999994",
		ClaveAPI:  "cualquier-clave",
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestEmitirToken_EmisorInactivo(t *testing.T) {
	repo := nuevoEmisoresMem()
	svc := NewService(repo, cfgPrueba())
	_, err := svc.RegistrarEmisor(context.Background(), registroPrueba())
	require.NoError(t, err)
	repo.emisores[nitValido].Activo = false

	_, err = svc.EmitirToken(context.Background(), dto.TokenRequest{
		EmisorNIT: nitValido,
		ClaveAPI:  "clave-api-muy-larga",
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEmitirToken_Operador(t *testing.T) {
	svc := NewService(nuevoEmisoresMem(), cfgPrueba())

	out, err := svc.EmitirToken(context.Background(), dto.TokenRequest{
		ClaveAPI: "clave-operador-larga",
	})
	require.NoError(t, err)
	assert.Equal(t, RolOperador, out.Rol)

	nit, rol, err := jwt.Parse("secreto-de-prueba", out.Token)
	require.NoError(t, err)
	assert.Empty(t, nit, "el token de operador no porta NIT")
	assert.Equal(t, RolOperador, rol)
}

func TestEmitirToken_OperadorDeshabilitado(t *testing.T) {
	cfg := cfgPrueba()
	cfg.ClaveOperador = ""
	svc := NewService(nuevoEmisoresMem(), cfg)

	_, err := svc.EmitirToken(context.Background(), dto.TokenRequest{
		ClaveAPI: "clave-operador-larga",
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
