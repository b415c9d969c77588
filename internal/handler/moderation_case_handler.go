package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/service"
	"github.com/noah-isme/modengine-api/internal/utils"
)

// ModerationCaseHandler exposes case submission and the admin review queue.
type ModerationCaseHandler struct {
	resolver service.CaseResolver
	query    service.CaseQueryService
	logger   zerolog.Logger
}

// NewModerationCaseHandler constructs the handler.
func NewModerationCaseHandler(resolver service.CaseResolver, query service.CaseQueryService, logger zerolog.Logger) *ModerationCaseHandler {
	return &ModerationCaseHandler{
		resolver: resolver,
		query:    query,
		logger:   logger.With().Str("component", "moderation_case_handler").Logger(),
	}
}

// RegisterPublic binds the submission route for authenticated users.
func (h *ModerationCaseHandler) RegisterPublic(router fiber.Router, guards ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, guards...), h.submit)
	router.Post("/cases", handlers...)
}

// Register binds the admin review routes.
func (h *ModerationCaseHandler) Register(router fiber.Router) {
	router.Get("/cases", h.list)
	router.Get("/cases/:id", h.get)
	router.Patch("/cases/:id/claim", h.claim)
	router.Patch("/cases/:id/resolve", h.resolve)
	router.Get("/stats", h.stats)
}

func (h *ModerationCaseHandler) submit(c *fiber.Ctx) error {
	var req dto.SubmitCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if reporter := userIDFromContext(c); reporter > 0 {
		req.ReporterID = &reporter
	}

	result, err := h.resolver.Submit(requestContext(c), req)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to submit case")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "case submitted", result)
}

func (h *ModerationCaseHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	subject, err := parseQueryUint(c, "subject_user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid subject_user_id")
	}

	req := dto.CaseListRequest{
		Kind:          c.Query("kind"),
		Status:        c.Query("status"),
		Reason:        c.Query("reason"),
		SubjectUserID: subject,
		Page:          page,
		PageSize:      pageSize,
		Sort:          c.Query("sort"),
	}

	result, err := h.query.List(requestContext(c), req)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to list cases")
	}

	return utils.SendSuccess(c, "cases retrieved", result)
}

func (h *ModerationCaseHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.query.Get(requestContext(c), id)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to load case")
	}

	return utils.SendSuccess(c, "case retrieved", result)
}

func (h *ModerationCaseHandler) claim(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.resolver.Claim(requestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to claim case")
	}

	return utils.SendSuccess(c, "case claimed", result)
}

func (h *ModerationCaseHandler) resolve(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ResolveCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.resolver.Resolve(requestContext(c), id, actorFromContext(c), req)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to resolve case")
	}

	return utils.SendSuccess(c, "case resolved", result)
}

func (h *ModerationCaseHandler) stats(c *fiber.Ctx) error {
	result, err := h.query.Stats(requestContext(c), c.Query("kind"))
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to load case stats")
	}

	return utils.SendSuccess(c, "case stats retrieved", result)
}
