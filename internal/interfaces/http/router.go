package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dcifuentes/fel-certificador/internal/application/auth"
	"github.com/dcifuentes/fel-certificador/internal/application/certify"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Certificador *certify.Service
	AuthSvc      *auth.Service
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (público)
	authHandler := NewAuthHandler(deps.AuthSvc)
	api.Post("/auth/token", authHandler.Token)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Alta de emisores (rol operador)
	protected.Post("/emisores", RequireRol(auth.RolOperador), authHandler.RegistrarEmisor)

	// Certificación de documentos (rol emisor)
	dteHandler := NewDTEHandler(deps.Certificador)
	dte := protected.Group("/dte", RequireEmisor())
	dte.Post("/", dteHandler.Certificar)
	dte.Get("/", dteHandler.Listar)
	dte.Get("/:uuid", dteHandler.Estado)
	dte.Post("/:uuid/anular", dteHandler.Anular)
}
