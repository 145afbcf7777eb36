package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/middleware/security"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/pkg/logger"
)

type ResetStore interface {
	Reset(ctx context.Context) (*sqlite.ResetCounts, error)
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Resetter clears a secondary index such as the vector mirror or the
// narrative graph.
type Resetter interface {
	Reset(ctx context.Context) error
}

type AdminHandler struct {
	store     ResetStore
	resetters map[string]Resetter
}

// NewAdminHandler takes the optional secondary stores keyed by name. Nil
// entries are skipped.
func NewAdminHandler(store ResetStore, resetters map[string]Resetter) *AdminHandler {
	active := make(map[string]Resetter, len(resetters))
	for name, r := range resetters {
		if r != nil {
			active[name] = r
		}
	}
	return &AdminHandler{store: store, resetters: active}
}

// Reset deletes all claims, analyses and clusters. Secondary stores that
// fail to reset are reported but do not fail the request.
func (h *AdminHandler) Reset(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor := security.Actor(c)

	counts, err := h.store.Reset(ctx)
	if err != nil {
		return respondError(c, err, "reset store")
	}

	warnings := []string{}
	for name, r := range h.resetters {
		if err := r.Reset(ctx); err != nil {
			logger.Error("Failed to reset secondary store", zap.String("store", name), zap.Error(err))
			warnings = append(warnings, name+" reset failed")
		}
	}

	if err := h.store.InsertAuditLog(ctx, &models.AuditLog{
		ActorID:    actor,
		Action:     models.AuditReset,
		TargetType: models.TargetSystem,
		TargetID:   "all",
		Metadata: map[string]any{
			"claims":   counts.Claims,
			"analyses": counts.Analyses,
			"clusters": counts.Clusters,
		},
	}); err != nil {
		logger.Error("Failed to write audit log", zap.String("action", "reset"), zap.Error(err))
	}

	logger.Warn("Administrative reset", zap.String("actor", actor))

	return c.JSON(fiber.Map{
		"message":  "All claims, analyses and clusters deleted",
		"deleted":  counts,
		"warnings": warnings,
	})
}
