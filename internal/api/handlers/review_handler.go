package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/middleware/security"
	"github.com/infosage/backend/internal/review"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

type Reviewer interface {
	Escalate(ctx context.Context, actor string, req review.EscalateRequest) (*review.EscalateResult, error)
	Resolve(ctx context.Context, actor string, req review.ResolveRequest) error
}

type ReviewHandler struct {
	reviewer Reviewer
}

func NewReviewHandler(reviewer Reviewer) *ReviewHandler {
	return &ReviewHandler{reviewer: reviewer}
}

func (h *ReviewHandler) Escalate(c *fiber.Ctx) error {
	var req review.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return badRequest(c, "", "Invalid request body")
	}

	res, err := h.reviewer.Escalate(c.UserContext(), security.Actor(c), req)
	if err != nil {
		return respondError(c, err, "escalate")
	}
	return c.JSON(res)
}

func (h *ReviewHandler) Resolve(c *fiber.Ctx) error {
	var req review.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return badRequest(c, "", "Invalid request body")
	}
	if req.ClaimID == "" {
		return badRequest(c, "claimId", "claimId is required")
	}
	if _, err := models.ParseVerdict(string(req.Verdict)); err != nil {
		return badRequest(c, "verdict", err.Error())
	}

	if err := h.reviewer.Resolve(c.UserContext(), security.Actor(c), req); err != nil {
		return respondError(c, err, "resolve claim")
	}

	return c.JSON(fiber.Map{
		"message": "Claim resolved",
		"claimId": req.ClaimID,
		"verdict": req.Verdict,
	})
}
