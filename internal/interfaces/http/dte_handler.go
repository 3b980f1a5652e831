package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dcifuentes/fel-certificador/internal/application/certify"
	"github.com/dcifuentes/fel-certificador/internal/application/dto"
)

// DTEHandler maneja las peticiones de certificación de documentos (protegido,
// rol emisor).
type DTEHandler struct {
	svc *certify.Service
}

// NewDTEHandler construye el handler.
func NewDTEHandler(svc *certify.Service) *DTEHandler {
	return &DTEHandler{svc: svc}
}

// Certificar recibe un DTE, lo registra y arranca su certificación en
// segundo plano. El header Idempotency-Key permite repetir la petición sin
// duplicar documentos: la repetición devuelve el documento original.
// POST /api/v1/dte
func (h *DTEHandler) Certificar(c *fiber.Ctx) error {
	emisorNIT := GetEmisorNIT(c)
	var in dto.CertificarRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	clave := c.Get("Idempotency-Key")

	documento, err := h.svc.Certificar(c.Context(), emisorNIT, clave, in.AEntidad(emisorNIT))
	if err != nil {
		return errorHTTP(c, err)
	}
	h.svc.ProcesarAsync(emisorNIT, documento.UUID)
	return c.Status(fiber.StatusAccepted).JSON(dto.DesdeDTE(documento))
}

// Estado devuelve el documento y el detalle de su envío a la SAT.
// GET /api/v1/dte/:uuid
func (h *DTEHandler) Estado(c *fiber.Ctx) error {
	emisorNIT := GetEmisorNIT(c)
	documentoUUID := c.Params("uuid")
	if documentoUUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "uuid requerido"})
	}
	documento, registro, err := h.svc.ConsultarEstado(c.Context(), emisorNIT, documentoUUID)
	if err != nil {
		return errorHTTP(c, err)
	}
	return c.JSON(dto.EstadoDTEResponse{
		Documento: dto.DesdeDTE(documento),
		Envio:     dto.DesdeRegistro(registro),
	})
}

// Listar devuelve los documentos del emisor, los más recientes primero.
// GET /api/v1/dte?limit=&offset=
func (h *DTEHandler) Listar(c *fiber.Ctx) error {
	emisorNIT := GetEmisorNIT(c)
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	documentos, err := h.svc.ListarDocumentos(c.Context(), emisorNIT, page.Limit, page.Offset)
	if err != nil {
		return errorHTTP(c, err)
	}
	out := dto.ListaDTEResponse{
		Documentos: make([]dto.DTEResponse, 0, len(documentos)),
		Pagina:     dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}
	for _, d := range documentos {
		out.Documentos = append(out.Documentos, dto.DesdeDTE(d))
	}
	return c.JSON(out)
}

// Anular solicita la anulación de un documento certificado (o cancela uno
// que aún espera veredicto).
// POST /api/v1/dte/:uuid/anular
func (h *DTEHandler) Anular(c *fiber.Ctx) error {
	emisorNIT := GetEmisorNIT(c)
	documentoUUID := c.Params("uuid")
	if documentoUUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "uuid requerido"})
	}
	var in dto.AnularRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	documento, err := h.svc.Anular(c.Context(), emisorNIT, documentoUUID, in.Motivo)
	if err != nil {
		return errorHTTP(c, err)
	}
	return c.JSON(dto.DesdeDTE(documento))
}
