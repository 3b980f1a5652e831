package repository

import (
	"context"
	"time"

	"github.com/dcifuentes/fel-certificador/internal/domain/entity"
)

// DTERepository define el puerto de persistencia para documentos tributarios.
type DTERepository interface {
	Create(ctx context.Context, dte *entity.DTE) error
	// Update actualiza estado, XML firmado, acuse, fechas y motivo de rechazo.
	Update(ctx context.Context, dte *entity.DTE) error
	GetByUUID(ctx context.Context, emisorNIT, uuid string) (*entity.DTE, error)
	// GetEstado devuelve solo los campos de estado (consulta ligera para polling).
	GetEstado(ctx context.Context, emisorNIT, uuid string) (*entity.DTE, error)
	// ListByEmisor lista documentos del emisor ordenados por fecha de creación
	// descendente, con paginación simple.
	ListByEmisor(ctx context.Context, emisorNIT string, limit, offset int) ([]*entity.DTE, error)
	// ExisteCertificadoEnPeriodo indica si el emisor ya tiene un DTE
	// certificado con la misma serie y número dentro del periodo dado.
	ExisteCertificadoEnPeriodo(ctx context.Context, emisorNIT, serie string, numero int64, desde, hasta time.Time) (bool, error)
}
