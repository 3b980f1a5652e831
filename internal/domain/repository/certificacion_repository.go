package repository

import (
	"context"
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

// CertificacionRepository define el puerto de persistencia para solicitudes y
// registros de la máquina de envío.
type CertificacionRepository interface {
	// CreateSolicitud registra la solicitud; si la clave de idempotencia ya
	// existe para el emisor retorna domain.ErrDuplicate y la solicitud original.
	CreateSolicitud(ctx context.Context, s *entity.SolicitudCertificacion) (*entity.SolicitudCertificacion, error)
	GetSolicitudPorClave(ctx context.Context, emisorNIT, clave string) (*entity.SolicitudCertificacion, error)

	CreateRegistro(ctx context.Context, r *entity.RegistroCertificacion) error
	// UpdateRegistro persiste estado, intentos, próximo reintento y acuse.
	UpdateRegistro(ctx context.Context, r *entity.RegistroCertificacion) error
	GetRegistro(ctx context.Context, documentoUUID string) (*entity.RegistroCertificacion, error)

	// ListReanudables devuelve registros no terminales: en PENDIENTE (la
	// recepción quedó persistida pero el proceso murió antes de arrancar),
	// en ENVIANDO o ESPERANDO_RESULTADO (interrumpidos por un reinicio) y
	// los ERROR_TRANSITORIO cuyo reintento venció antes del instante dado.
	ListReanudables(ctx context.Context, ahora time.Time, limit int) ([]*entity.RegistroCertificacion, error)
}
