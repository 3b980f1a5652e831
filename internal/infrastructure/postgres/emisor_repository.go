package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dcifuentes/fel-certificador/internal/domain"
	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
	"github.com/dcifuentes/fel-certificador/internal/domain/repository"
)

var _ repository.EmisorRepository = (*EmisorRepo)(nil)

// EmisorRepo implementación de EmisorRepository (usable con pool o tx).
type EmisorRepo struct {
	q Querier
}

// NewEmisorRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEmisorRepository(q Querier) *EmisorRepo {
	return &EmisorRepo{q: q}
}

func (r *EmisorRepo) Create(ctx context.Context, e *entity.Emisor) error {
	query := `
		INSERT INTO emisores (nit, nombre, nombre_comercial, afiliacion_iva, correo, clave_api_hash,
			direccion, codigo_postal, municipio, departamento, pais, activo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query,
		e.NIT, e.Nombre, nullIfEmpty(e.NombreComercial), e.AfiliacionIVA, nullIfEmpty(e.Correo),
		nullIfEmpty(e.ClaveAPIHash),
		nullIfEmpty(e.Direccion), nullIfEmpty(e.CodigoPostal), nullIfEmpty(e.Municipio),
		nullIfEmpty(e.Departamento), nullIfEmpty(e.Pais), e.Activo, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: emisor %s", domain.ErrDuplicate, e.NIT)
		}
		return fmt.Errorf("insert emisor: %w", err)
	}
	return nil
}

func (r *EmisorRepo) GetByNIT(ctx context.Context, nit string) (*entity.Emisor, error) {
	query := `
		SELECT nit, nombre, COALESCE(nombre_comercial, ''), afiliacion_iva, COALESCE(correo, ''),
		       COALESCE(clave_api_hash, ''),
		       COALESCE(direccion, ''), COALESCE(codigo_postal, ''), COALESCE(municipio, ''),
		       COALESCE(departamento, ''), COALESCE(pais, ''), activo, created_at, updated_at
		FROM emisores WHERE nit = $1`
	var e entity.Emisor
	err := r.q.QueryRow(ctx, query, nit).Scan(
		&e.NIT, &e.Nombre, &e.NombreComercial, &e.AfiliacionIVA, &e.Correo,
		&e.ClaveAPIHash,
		&e.Direccion, &e.CodigoPostal, &e.Municipio,
		&e.Departamento, &e.Pais, &e.Activo, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: emisor %s", domain.ErrNotFound, nit)
		}
		return nil, fmt.Errorf("select emisor: %w", err)
	}
	return &e, nil
}

func (r *EmisorRepo) CreateEstablecimiento(ctx context.Context, est *entity.Establecimiento) error {
	query := `
		INSERT INTO establecimientos (emisor_nit, codigo, nombre, activo, vigente_desde, vigente_hasta)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.Exec(ctx, query,
		est.EmisorNIT, est.Codigo, nullIfEmpty(est.Nombre), est.Activo,
		est.VigenteDesde, nullTime(est.VigenteHasta),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: establecimiento %s del emisor %s", domain.ErrDuplicate, est.Codigo, est.EmisorNIT)
		}
		return fmt.Errorf("insert establecimiento: %w", err)
	}
	return nil
}

func (r *EmisorRepo) GetEstablecimiento(ctx context.Context, emisorNIT, codigo string) (*entity.Establecimiento, error) {
	query := `
		SELECT emisor_nit, codigo, COALESCE(nombre, ''), activo, vigente_desde, vigente_hasta
		FROM establecimientos WHERE emisor_nit = $1 AND codigo = $2`
	var (
		est   entity.Establecimiento
		hasta *time.Time
	)
	err := r.q.QueryRow(ctx, query, emisorNIT, codigo).Scan(
		&est.EmisorNIT, &est.Codigo, &est.Nombre, &est.Activo, &est.VigenteDesde, &hasta,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: establecimiento %s del emisor %s", domain.ErrNotFound, codigo, emisorNIT)
		}
		return nil, fmt.Errorf("select establecimiento: %w", err)
	}
	if hasta != nil {
		est.VigenteHasta = *hasta
	}
	return &est, nil
}
