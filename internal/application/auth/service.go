// Package auth autentica emisores ante la API del certificador y da de alta
// nuevos emisores con su clave de API.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dcifuentes/fel-certificador/internal/application/dto"
	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/domain/repository"
	"github.com/dcifuentes/fel-certificador/pkg/fel"
	"github.com/dcifuentes/fel-certificador/pkg/jwt"
)

// Roles que puede portar un token.
const (
	RolEmisor   = "emisor"
	RolOperador = "operador"
)

// Config parámetros de emisión de tokens.
type Config struct {
	Secret        string
	ExpMinutes    int
	Issuer        string
	ClaveOperador string // vacío = rol operador deshabilitado
}

// Service casos de uso de autenticación y alta de emisores.
type Service struct {
	emisores repository.EmisorRepository
	cfg      Config
}

// NewService construye el servicio de auth.
func NewService(emisores repository.EmisorRepository, cfg Config) *Service {
	if cfg.ExpMinutes <= 0 {
		cfg.ExpMinutes = 60
	}
	return &Service{emisores: emisores, cfg: cfg}
}

// EmitirToken verifica la clave de API y devuelve un JWT. Con EmisorNIT vacío
// y la clave de operador configurada, emite un token de rol operador.
func (s *Service) EmitirToken(ctx context.Context, in dto.TokenRequest) (*dto.TokenResponse, error) {
	if in.ClaveAPI == "" {
		return nil, fmt.Errorf("%w: clave_api requerida", domain.ErrInvalidInput)
	}

	rol := RolEmisor
	if in.EmisorNIT == "" {
		if s.cfg.ClaveOperador == "" ||
			subtle.ConstantTimeCompare([]byte(in.ClaveAPI), []byte(s.cfg.ClaveOperador)) != 1 {
			return nil, domain.ErrUnauthorized
		}
		rol = RolOperador
	} else {
		emisor, err := s.emisores.GetByNIT(ctx, in.EmisorNIT)
		if err != nil {
			if domain.EsNotFound(err) {
				return nil, domain.ErrUnauthorized
			}
			return nil, err
		}
		if !emisor.Activo {
			return nil, domain.ErrForbidden
		}
		if emisor.ClaveAPIHash == "" ||
			bcrypt.CompareHashAndPassword([]byte(emisor.ClaveAPIHash), []byte(in.ClaveAPI)) != nil {
			return nil, domain.ErrUnauthorized
		}
	}

	token, err := jwt.Generate(s.cfg.Secret, in.EmisorNIT, rol, s.cfg.Issuer, s.cfg.ExpMinutes)
	if err != nil {
		return nil, err
	}
	return &dto.TokenResponse{
		Token:    token,
		Rol:      rol,
		ExpiraEn: time.Now().Add(time.Duration(s.cfg.ExpMinutes) * time.Minute),
	}, nil
}

// RegistrarEmisor da de alta un emisor con sus establecimientos. La clave de
// API se guarda hasheada con bcrypt; el NIT se valida con su dígito
// verificador antes de persistir.
func (s *Service) RegistrarEmisor(ctx context.Context, in dto.RegistrarEmisorRequest) (*dto.EmisorResponse, error) {
	if err := fel.ValidarNIT(in.NIT); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if in.Nombre == "" {
		return nil, fmt.Errorf("%w: nombre requerido", domain.ErrInvalidInput)
	}
	if in.AfiliacionIVA != "GEN" && in.AfiliacionIVA != "PEQ" {
		return nil, fmt.Errorf("%w: afiliacion_iva debe ser GEN o PEQ", domain.ErrInvalidInput)
	}
	if len(in.ClaveAPI) < 12 {
		return nil, fmt.Errorf("%w: clave_api debe tener al menos 12 caracteres", domain.ErrInvalidInput)
	}
	if len(in.Establecimientos) == 0 {
		return nil, fmt.Errorf("%w: se requiere al menos un establecimiento", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.ClaveAPI), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	emisor := &entity.Emisor{
		NIT:             in.NIT,
		Nombre:          in.Nombre,
		NombreComercial: in.NombreComercial,
		AfiliacionIVA:   in.AfiliacionIVA,
		Correo:          in.Correo,
		ClaveAPIHash:    string(hash),
		Direccion:       in.Direccion,
		CodigoPostal:    in.CodigoPostal,
		Municipio:       in.Municipio,
		Departamento:    in.Departamento,
		Pais:            in.Pais,
		Activo:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.emisores.Create(ctx, emisor); err != nil {
		return nil, err
	}
	for _, est := range in.Establecimientos {
		vigenteDesde := est.VigenteDesde
		if vigenteDesde.IsZero() {
			vigenteDesde = now
		}
		nuevo := &entity.Establecimiento{
			EmisorNIT:    in.NIT,
			Codigo:       est.Codigo,
			Nombre:       est.Nombre,
			Activo:       true,
			VigenteDesde: vigenteDesde,
		}
		if est.VigenteHasta != nil {
			nuevo.VigenteHasta = *est.VigenteHasta
		}
		if err := s.emisores.CreateEstablecimiento(ctx, nuevo); err != nil {
			return nil, err
		}
	}
	out := dto.DesdeEmisor(emisor)
	return &out, nil
}
