package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dcifuentes/fel-certificador/internal/application/auth"
	"github.com/dcifuentes/fel-certificador/internal/application/dto"
)

// AuthHandler maneja emisión de tokens y alta de emisores.
type AuthHandler struct {
	svc *auth.Service
}

// NewAuthHandler construye el handler de auth.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Token emite un JWT para un emisor registrado (o para el operador).
// POST /api/v1/auth/token
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var in dto.TokenRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.svc.EmitirToken(c.Context(), in)
	if err != nil {
		return errorHTTP(c, err)
	}
	return c.JSON(out)
}

// RegistrarEmisor da de alta un emisor con sus establecimientos (rol operador).
// POST /api/v1/emisores
func (h *AuthHandler) RegistrarEmisor(c *fiber.Ctx) error {
	var in dto.RegistrarEmisorRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.svc.RegistrarEmisor(c.Context(), in)
	if err != nil {
		return errorHTTP(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}
