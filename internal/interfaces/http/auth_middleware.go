package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dcifuentes/fel-certificador/internal/application/auth"
	"github.com/dcifuentes/fel-certificador/internal/application/dto"
	"github.com/dcifuentes/fel-certificador/pkg/jwt"
)

// Locals keys para EmisorNIT y Rol en Fiber.
const (
	LocalEmisorNIT = "emisor_nit"
	LocalRol       = "rol"
)

// AuthMiddleware valida el Bearer Token JWT y extrae EmisorNIT y Rol a c.Locals.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "Authorization header requerido"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vacío"})
		}
		emisorNIT, rol, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido o expirado"})
		}
		c.Locals(LocalEmisorNIT, emisorNIT)
		c.Locals(LocalRol, rol)
		return c.Next()
	}
}

// RequireRol exige que el token porte el rol dado (después de AuthMiddleware).
func RequireRol(rol string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetRol(c) != rol {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rol insuficiente"})
		}
		return c.Next()
	}
}

// RequireEmisor exige un token de rol emisor con NIT presente.
func RequireEmisor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetRol(c) != auth.RolEmisor || GetEmisorNIT(c) == "" {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "se requiere un token de emisor"})
		}
		return c.Next()
	}
}

// GetEmisorNIT devuelve el NIT del emisor del contexto (después del middleware de auth).
func GetEmisorNIT(c *fiber.Ctx) string {
	v := c.Locals(LocalEmisorNIT)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetRol devuelve el rol del token del contexto (después del middleware de auth).
func GetRol(c *fiber.Ctx) string {
	v := c.Locals(LocalRol)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
