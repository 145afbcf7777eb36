package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/ingestion"
	"github.com/infosage/backend/internal/outputs"
	"github.com/infosage/backend/internal/review"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/pkg/logger"
)

// respondError maps domain errors to a status code. Anything unrecognised
// is logged and reported as a generic 500.
func respondError(c *fiber.Ctx, err error, action string) error {
	var verr *ingestion.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Message,
			"field": verr.Field,
		})
	case errors.Is(err, sqlite.ErrNotFound), errors.Is(err, outputs.ErrNoAnalysis):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, review.ErrNoTarget), errors.Is(err, outputs.ErrNoTarget),
		errors.Is(err, review.ErrNothingToEscalate):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, sqlite.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logger.Error("Failed to "+action,
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func badRequest(c *fiber.Ctx, field, message string) error {
	body := fiber.Map{"error": message}
	if field != "" {
		body["field"] = field
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// pagination reads limit and offset. Bounds are applied by the store.
func pagination(c *fiber.Ctx) (limit, offset int, err error) {
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, &ingestion.ValidationError{Field: "limit", Message: "limit must be an integer"}
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, &ingestion.ValidationError{Field: "offset", Message: "offset must be an integer"}
		}
	}
	return limit, offset, nil
}

// pageLimit mirrors the store's bounds so responses report the limit used.
func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}
