package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/middleware/security"
	"github.com/infosage/backend/internal/outputs"
	"github.com/infosage/backend/pkg/logger"
)

type OutputGenerator interface {
	Generate(ctx context.Context, actor string, req outputs.Request) (*outputs.Result, error)
}

type OutputHandler struct {
	generator OutputGenerator
}

func NewOutputHandler(generator OutputGenerator) *OutputHandler {
	return &OutputHandler{generator: generator}
}

// GenerateOutputs answers 200 even when some formats failed; those are
// listed under errors. No output types means all of them.
func (h *OutputHandler) GenerateOutputs(c *fiber.Ctx) error {
	var req outputs.Request
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return badRequest(c, "", "Invalid request body")
	}

	res, err := h.generator.Generate(c.UserContext(), security.Actor(c), req)
	if err != nil {
		return respondError(c, err, "generate outputs")
	}
	return c.JSON(res)
}
