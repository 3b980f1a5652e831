package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/domain/repository"
)

var _ repository.DTERepository = (*DTERepo)(nil)

// DTERepo implementación de DTERepository (usable con pool o tx). Los items
// del documento se guardan como JSONB: nunca se consultan por columna, solo
// viajan completos con el documento.
type DTERepo struct {
	q Querier
}

// NewDTERepository construye el adaptador. Pasar pool o tx (Querier).
func NewDTERepository(q Querier) *DTERepo {
	return &DTERepo{q: q}
}

const columnasDTE = `
	uuid, serie, numero, tipo, emisor_nit, codigo_establecimiento,
	receptor_id, receptor_tipo, receptor_nombre, moneda, fecha_emision,
	exportacion, COALESCE(incoterm, ''), COALESCE(referencia_uuid, ''),
	COALESCE(motivo_ajuste, ''), items, gran_total,
	total_impuestos, estado, COALESCE(xml_firmado, ''),
	COALESCE(numero_acuse_sat, ''), fecha_certificacion,
	COALESCE(motivo_rechazo, ''), created_at, updated_at`

// Create persiste el documento completo. Un UUID repetido retorna
// domain.ErrDuplicate.
func (r *DTERepo) Create(ctx context.Context, dte *entity.DTE) error {
	items, err := json.Marshal(dte.Items)
	if err != nil {
		return fmt.Errorf("serializar items: %w", err)
	}
	query := `
		INSERT INTO dtes (uuid, serie, numero, tipo, emisor_nit, codigo_establecimiento,
			receptor_id, receptor_tipo, receptor_nombre, moneda, fecha_emision,
			exportacion, incoterm, referencia_uuid, motivo_ajuste, items,
			gran_total, total_impuestos,
			estado, xml_firmado, numero_acuse_sat, fecha_certificacion,
			motivo_rechazo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`
	_, err = r.q.Exec(ctx, query,
		dte.UUID, dte.Serie, dte.Numero, dte.Tipo, dte.EmisorNIT, dte.CodigoEstablecimiento,
		dte.ReceptorID, dte.ReceptorTipo, dte.ReceptorNombre, dte.Moneda, dte.FechaEmision,
		dte.Exportacion, nullIfEmpty(dte.Incoterm), nullIfEmpty(dte.ReferenciaUUID), nullIfEmpty(dte.MotivoAjuste), items,
		dte.GranTotal, dte.TotalImpuestos,
		dte.Estado, nullIfEmpty(dte.XMLFirmado), nullIfEmpty(dte.NumeroAcuseSAT), nullTime(dte.FechaCertificacion),
		nullIfEmpty(dte.MotivoRechazo), dte.CreatedAt, dte.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: dte %s", domain.ErrDuplicate, dte.UUID)
		}
		return fmt.Errorf("insert dte: %w", err)
	}
	return nil
}

// Update persiste el avance del documento por la máquina de estados.
func (r *DTERepo) Update(ctx context.Context, dte *entity.DTE) error {
	query := `
		UPDATE dtes
		SET estado             = $2,
		    xml_firmado        = COALESCE($3, xml_firmado),
		    numero_acuse_sat   = COALESCE($4, numero_acuse_sat),
		    fecha_certificacion = COALESCE($5, fecha_certificacion),
		    motivo_rechazo     = COALESCE($6, motivo_rechazo),
		    updated_at         = $7
		WHERE uuid = $1`
	tag, err := r.q.Exec(ctx, query,
		dte.UUID,
		dte.Estado,
		nullIfEmpty(dte.XMLFirmado),
		nullIfEmpty(dte.NumeroAcuseSAT),
		nullTime(dte.FechaCertificacion),
		nullIfEmpty(dte.MotivoRechazo),
		dte.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update dte: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dte %s", domain.ErrNotFound, dte.UUID)
	}
	return nil
}

// GetByUUID obtiene el documento del emisor. El filtro por NIT es parte de la
// consulta: un emisor nunca lee documentos ajenos.
func (r *DTERepo) GetByUUID(ctx context.Context, emisorNIT, uuid string) (*entity.DTE, error) {
	query := `SELECT ` + columnasDTE + ` FROM dtes WHERE uuid = $1 AND emisor_nit = $2`
	return r.scanDTE(r.q.QueryRow(ctx, query, uuid, emisorNIT))
}

// GetEstado devuelve el documento sin el XML firmado (consulta ligera).
func (r *DTERepo) GetEstado(ctx context.Context, emisorNIT, uuid string) (*entity.DTE, error) {
	query := `
		SELECT uuid, serie, numero, emisor_nit, estado,
		       COALESCE(numero_acuse_sat, ''), fecha_certificacion,
		       COALESCE(motivo_rechazo, ''), updated_at
		FROM dtes WHERE uuid = $1 AND emisor_nit = $2`
	var (
		d     entity.DTE
		fecha *time.Time
	)
	err := r.q.QueryRow(ctx, query, uuid, emisorNIT).Scan(
		&d.UUID, &d.Serie, &d.Numero, &d.EmisorNIT, &d.Estado,
		&d.NumeroAcuseSAT, &fecha, &d.MotivoRechazo, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: dte %s", domain.ErrNotFound, uuid)
		}
		return nil, fmt.Errorf("select estado dte: %w", err)
	}
	if fecha != nil {
		d.FechaCertificacion = *fecha
	}
	return &d, nil
}

// ListByEmisor lista documentos del emisor, más recientes primero.
func (r *DTERepo) ListByEmisor(ctx context.Context, emisorNIT string, limit, offset int) ([]*entity.DTE, error) {
	query := `SELECT ` + columnasDTE + `
		FROM dtes WHERE emisor_nit = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, emisorNIT, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list dtes: %w", err)
	}
	defer rows.Close()

	var out []*entity.DTE
	for rows.Next() {
		d, err := r.scanDTE(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExisteCertificadoEnPeriodo indica si el emisor ya certificó un DTE con la
// misma serie y número dentro del periodo.
func (r *DTERepo) ExisteCertificadoEnPeriodo(ctx context.Context, emisorNIT, serie string, numero int64, desde, hasta time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM dtes
			WHERE emisor_nit = $1 AND serie = $2 AND numero = $3
			  AND estado = $4
			  AND fecha_emision >= $5 AND fecha_emision < $6
		)`
	var existe bool
	err := r.q.QueryRow(ctx, query, emisorNIT, serie, numero, entity.EstadoCertificado, desde, hasta).Scan(&existe)
	if err != nil {
		return false, fmt.Errorf("verificar serie/numero en periodo: %w", err)
	}
	return existe, nil
}

func (r *DTERepo) scanDTE(row pgx.Row) (*entity.DTE, error) {
	var (
		d     entity.DTE
		items []byte
		fecha *time.Time
	)
	err := row.Scan(
		&d.UUID, &d.Serie, &d.Numero, &d.Tipo, &d.EmisorNIT, &d.CodigoEstablecimiento,
		&d.ReceptorID, &d.ReceptorTipo, &d.ReceptorNombre, &d.Moneda, &d.FechaEmision,
		&d.Exportacion, &d.Incoterm, &d.ReferenciaUUID,
		&d.MotivoAjuste, &items, &d.GranTotal,
		&d.TotalImpuestos, &d.Estado, &d.XMLFirmado,
		&d.NumeroAcuseSAT, &fecha,
		&d.MotivoRechazo, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: dte", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan dte: %w", err)
	}
	if fecha != nil {
		d.FechaCertificacion = *fecha
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &d.Items); err != nil {
			return nil, fmt.Errorf("deserializar items: %w", err)
		}
	}
	return &d, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
