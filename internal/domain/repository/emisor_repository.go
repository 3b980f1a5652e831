package repository

import (
	"context"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

// EmisorRepository define el puerto de persistencia para emisores y sus
// establecimientos.
type EmisorRepository interface {
	Create(ctx context.Context, e *entity.Emisor) error
	GetByNIT(ctx context.Context, nit string) (*entity.Emisor, error)
	CreateEstablecimiento(ctx context.Context, est *entity.Establecimiento) error
	// GetEstablecimiento devuelve el establecimiento del emisor por código.
	GetEstablecimiento(ctx context.Context, emisorNIT, codigo string) (*entity.Establecimiento, error)
}
