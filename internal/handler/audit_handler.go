package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/service"
	"github.com/noah-isme/modengine-api/internal/utils"
)

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	service service.AuditService
	logger  zerolog.Logger
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service service.AuditService, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger.With().Str("component", "audit_handler").Logger(),
	}
}

// Register attaches routes.
func (h *AuditHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/verify", h.verify)
}

func (h *AuditHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	actorID, err := parseQueryUint(c, "actor_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid actor_id")
	}
	from, err := parseQueryTime(c, "from")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid from timestamp")
	}
	to, err := parseQueryTime(c, "to")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid to timestamp")
	}

	req := dto.AuditListRequest{
		Page:         page,
		PageSize:     pageSize,
		ActorAdminID: actorID,
		Action:       c.Query("action"),
		TargetType:   c.Query("target_type"),
		TargetID:     c.Query("target_id"),
		From:         from,
		To:           to,
	}

	result, err := h.service.List(requestContext(c), req)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to list audit log")
	}

	return utils.SendSuccess(c, "audit log retrieved", result)
}

func (h *AuditHandler) verify(c *fiber.Ctx) error {
	result, err := h.service.Verify(requestContext(c), c.Query("target_type"), c.Query("target_id"))
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to verify audit chain")
	}

	message := "audit chain intact"
	if !result.Valid {
		message = "audit chain broken"
	}
	return utils.SendSuccess(c, message, result)
}
