package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/infosage/backend/internal/storage/models"
)

type AuditStore interface {
	ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

type AuditHandler struct {
	store AuditStore
}

func NewAuditHandler(store AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

func (h *AuditHandler) ListAuditLogs(c *fiber.Ctx) error {
	limit, offset, err := pagination(c)
	if err != nil {
		return respondError(c, err, "list audit logs")
	}

	logs, err := h.store.ListAuditLogs(c.UserContext(), models.AuditFilter{
		ActorID:    c.Query("actorId"),
		Action:     models.AuditAction(c.Query("action")),
		TargetType: models.TargetType(c.Query("targetType")),
		TargetID:   c.Query("targetId"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return respondError(c, err, "list audit logs")
	}

	return c.JSON(fiber.Map{
		"logs":   logs,
		"limit":  pageLimit(limit),
		"offset": offset,
	})
}
