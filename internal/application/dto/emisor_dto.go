package dto

import (
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

// RegistrarEmisorRequest body para POST /api/v1/emisores (rol operador).
// ClaveAPI es la clave con la que el emisor pedirá tokens; se guarda hasheada.
type RegistrarEmisorRequest struct {
	NIT              string                   `json:"nit"`
	Nombre           string                   `json:"nombre"`
	NombreComercial  string                   `json:"nombre_comercial,omitempty"`
	AfiliacionIVA    string                   `json:"afiliacion_iva"` // GEN | PEQ
	Correo           string                   `json:"correo,omitempty"`
	ClaveAPI         string                   `json:"clave_api"`
	Direccion        string                   `json:"direccion,omitempty"`
	CodigoPostal     string                   `json:"codigo_postal,omitempty"`
	Municipio        string                   `json:"municipio,omitempty"`
	Departamento     string                   `json:"departamento,omitempty"`
	Pais             string                   `json:"pais,omitempty"`
	Establecimientos []EstablecimientoRequest `json:"establecimientos"`
}

// EstablecimientoRequest sucursal habilitada para emitir.
type EstablecimientoRequest struct {
	Codigo       string     `json:"codigo"`
	Nombre       string     `json:"nombre,omitempty"`
	VigenteDesde time.Time  `json:"vigente_desde"`
	VigenteHasta *time.Time `json:"vigente_hasta,omitempty"`
}

// EmisorResponse emisor en respuestas (nunca incluye la clave de API).
type EmisorResponse struct {
	NIT             string `json:"nit"`
	Nombre          string `json:"nombre"`
	NombreComercial string `json:"nombre_comercial,omitempty"`
	AfiliacionIVA   string `json:"afiliacion_iva"`
	Correo          string `json:"correo,omitempty"`
	Activo          bool   `json:"activo"`
}

// DesdeEmisor arma la respuesta a partir de la entidad.
func DesdeEmisor(e *entity.Emisor) EmisorResponse {
	return EmisorResponse{
		NIT:             e.NIT,
		Nombre:          e.Nombre,
		NombreComercial: e.NombreComercial,
		AfiliacionIVA:   e.AfiliacionIVA,
		Correo:          e.Correo,
		Activo:          e.Activo,
	}
}

// TokenRequest body para POST /api/v1/auth/token.
type TokenRequest struct {
	EmisorNIT string `json:"emisor_nit"`
	ClaveAPI  string `json:"clave_api"`
}

// TokenResponse token JWT emitido y su vencimiento.
type TokenResponse struct {
	Token    string    `json:"token"`
	Rol      string    `json:"rol"`
	ExpiraEn time.Time `json:"expira_en"`
}
