package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dcifuentes/fel-certificador/internal/application/dto"
	"github.com/dcifuentes/fel-certificador/internal/domain"
)

// errorHTTP traduce un error de dominio al status y cuerpo HTTP. Los errores
// de validación FEL viajan con sus códigos de regla en el mensaje.
func errorHTTP(c *fiber.Ctx, err error) error {
	var ve *domain.ErrorValidacion
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "VALIDACION_FEL", Message: ve.Error()})
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrDocumentoEnProceso):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "EN_PROCESO", Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "credenciales inválidas"})
	case errors.Is(err, domain.ErrAutoridadTransitorio):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "SAT_NO_DISPONIBLE", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
