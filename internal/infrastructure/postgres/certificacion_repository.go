package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/domain/repository"
)

var _ repository.CertificacionRepository = (*CertificacionRepo)(nil)

// CertificacionRepo implementación de CertificacionRepository (usable con
// pool o tx).
type CertificacionRepo struct {
	q Querier
}

// NewCertificacionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCertificacionRepository(q Querier) *CertificacionRepo {
	return &CertificacionRepo{q: q}
}

// CreateSolicitud inserta la solicitud. La clave de idempotencia es única por
// emisor: una repetición retorna domain.ErrDuplicate junto con la solicitud
// original, para que el llamador devuelva el documento ya registrado.
func (r *CertificacionRepo) CreateSolicitud(ctx context.Context, s *entity.SolicitudCertificacion) (*entity.SolicitudCertificacion, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `
		INSERT INTO solicitudes_certificacion (id, emisor_nit, clave_idempotencia, documento_uuid, recibida_en)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.Exec(ctx, query,
		s.ID, s.EmisorNIT, nullIfEmpty(s.ClaveIdempotencia), s.DocumentoUUID, s.RecibidaEn,
	)
	if err != nil {
		if isUniqueViolation(err) && s.ClaveIdempotencia != "" {
			original, gerr := r.GetSolicitudPorClave(ctx, s.EmisorNIT, s.ClaveIdempotencia)
			if gerr != nil {
				return nil, gerr
			}
			return original, fmt.Errorf("%w: clave de idempotencia ya usada", domain.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert solicitud: %w", err)
	}
	return s, nil
}

func (r *CertificacionRepo) GetSolicitudPorClave(ctx context.Context, emisorNIT, clave string) (*entity.SolicitudCertificacion, error) {
	query := `
		SELECT id, emisor_nit, COALESCE(clave_idempotencia, ''), documento_uuid, recibida_en
		FROM solicitudes_certificacion
		WHERE emisor_nit = $1 AND clave_idempotencia = $2`
	var s entity.SolicitudCertificacion
	err := r.q.QueryRow(ctx, query, emisorNIT, clave).Scan(
		&s.ID, &s.EmisorNIT, &s.ClaveIdempotencia, &s.DocumentoUUID, &s.RecibidaEn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: solicitud", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("select solicitud: %w", err)
	}
	return &s, nil
}

const columnasRegistro = `
	id, documento_uuid, emisor_nit, estado, intentos, proximo_intento,
	COALESCE(acuse_sat, ''), codigos_sat, COALESCE(ultimo_error, ''),
	created_at, updated_at`

func (r *CertificacionRepo) CreateRegistro(ctx context.Context, reg *entity.RegistroCertificacion) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	query := `
		INSERT INTO registros_certificacion (id, documento_uuid, emisor_nit, estado, intentos,
			proximo_intento, acuse_sat, codigos_sat, ultimo_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		reg.ID, reg.DocumentoUUID, reg.EmisorNIT, reg.Estado, reg.Intentos,
		reg.ProximoIntento, nullIfEmpty(reg.AcuseSAT), reg.CodigosSAT, nullIfEmpty(reg.UltimoError),
		reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: registro para %s", domain.ErrDuplicate, reg.DocumentoUUID)
		}
		return fmt.Errorf("insert registro: %w", err)
	}
	return nil
}

// UpdateRegistro persiste el avance de la máquina de envío. El registro se
// escribe completo tal como viene en memoria: los llamadores siempre cargan
// con GetRegistro antes de mutar, así que cada columna refleja el estado
// actual (incluido un acuse o un error que se limpia a NULL).
func (r *CertificacionRepo) UpdateRegistro(ctx context.Context, reg *entity.RegistroCertificacion) error {
	query := `
		UPDATE registros_certificacion
		SET estado          = $2,
		    intentos        = $3,
		    proximo_intento = $4,
		    acuse_sat       = $5,
		    codigos_sat     = $6,
		    ultimo_error    = $7,
		    updated_at      = $8
		WHERE documento_uuid = $1`
	tag, err := r.q.Exec(ctx, query,
		reg.DocumentoUUID, reg.Estado, reg.Intentos, reg.ProximoIntento,
		nullIfEmpty(reg.AcuseSAT), reg.CodigosSAT, nullIfEmpty(reg.UltimoError), reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update registro: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: registro para %s", domain.ErrNotFound, reg.DocumentoUUID)
	}
	return nil
}

func (r *CertificacionRepo) GetRegistro(ctx context.Context, documentoUUID string) (*entity.RegistroCertificacion, error) {
	query := `SELECT ` + columnasRegistro + ` FROM registros_certificacion WHERE documento_uuid = $1`
	return r.scanRegistro(r.q.QueryRow(ctx, query, documentoUUID))
}

// ListReanudables devuelve los registros que el poller debe retomar: los que
// nunca arrancaron, los interrumpidos con una petición en vuelo o un veredicto
// pendiente, y los reintentos ya vencidos. Más antiguos primero.
func (r *CertificacionRepo) ListReanudables(ctx context.Context, ahora time.Time, limit int) ([]*entity.RegistroCertificacion, error) {
	query := `SELECT ` + columnasRegistro + `
		FROM registros_certificacion
		WHERE estado IN ($1, $2, $3)
		   OR (estado = $4 AND proximo_intento IS NOT NULL AND proximo_intento <= $5)
		ORDER BY updated_at ASC
		LIMIT $6`
	rows, err := r.q.Query(ctx, query,
		entity.EnvioPendiente, entity.EnvioEnviando, entity.EnvioEsperandoResultado,
		entity.EnvioErrorTransitorio, ahora, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reanudables: %w", err)
	}
	defer rows.Close()

	var out []*entity.RegistroCertificacion
	for rows.Next() {
		reg, err := r.scanRegistro(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *CertificacionRepo) scanRegistro(row pgx.Row) (*entity.RegistroCertificacion, error) {
	var reg entity.RegistroCertificacion
	err := row.Scan(
		&reg.ID, &reg.DocumentoUUID, &reg.EmisorNIT, &reg.Estado, &reg.Intentos,
		&reg.ProximoIntento, &reg.AcuseSAT, &reg.CodigosSAT, &reg.UltimoError,
		&reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: registro", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan registro: %w", err)
	}
	return &reg, nil
}
