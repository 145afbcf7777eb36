package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/ingestion"
	"github.com/infosage/backend/internal/kg/neo4j"
	"github.com/infosage/backend/internal/middleware/security"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/pkg/logger"
)

type ClaimStore interface {
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	ListClaims(ctx context.Context, filter models.ClaimFilter) ([]models.Claim, int, error)
	GetAnalysisByClaim(ctx context.Context, claimID string) (*models.Analysis, error)
}

type ClaimCreator interface {
	CreateClaim(ctx context.Context, actor string, req ingestion.CreateRequest) (*models.Claim, error)
}

type Analyzer interface {
	Run(ctx context.Context, claimID, actor string) (*models.Analysis, error)
}

type RelatedFinder interface {
	Related(ctx context.Context, claimID string, limit int) ([]neo4j.RelatedClaim, error)
}

type ClaimHandler struct {
	store      ClaimStore
	creator    ClaimCreator
	analyzer   Analyzer
	related    RelatedFinder
	runTimeout time.Duration
}

func NewClaimHandler(store ClaimStore, creator ClaimCreator, analyzer Analyzer, related RelatedFinder, runTimeout time.Duration) *ClaimHandler {
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &ClaimHandler{
		store:      store,
		creator:    creator,
		analyzer:   analyzer,
		related:    related,
		runTimeout: runTimeout,
	}
}

// CreateClaim stores the claim and answers 202; analysis continues in the
// background.
func (h *ClaimHandler) CreateClaim(c *fiber.Ctx) error {
	var req ingestion.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return badRequest(c, "", "Invalid request body")
	}

	claim, err := h.creator.CreateClaim(c.UserContext(), security.Actor(c), req)
	if err != nil {
		return respondError(c, err, "create claim")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"_id":     claim.ID,
		"text":    claim.Text,
		"status":  claim.Status,
		"message": "Claim created. Analysis in progress.",
	})
}

func (h *ClaimHandler) ListClaims(c *fiber.Ctx) error {
	limit, offset, err := pagination(c)
	if err != nil {
		return respondError(c, err, "list claims")
	}

	filter := models.ClaimFilter{
		Status:     models.ClaimStatus(c.Query("status")),
		SourceType: models.SourceType(c.Query("sourceType")),
		ClusterID:  c.Query("clusterId"),
		Search:     c.Query("q"),
		Limit:      limit,
		Offset:     offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return badRequest(c, "status", "Unknown claim status")
	}
	if filter.SourceType != "" && !filter.SourceType.Valid() {
		return badRequest(c, "sourceType", "Unknown source type")
	}

	claims, total, err := h.store.ListClaims(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err, "list claims")
	}

	return c.JSON(fiber.Map{
		"claims": claims,
		"total":  total,
		"limit":  pageLimit(limit),
		"offset": offset,
	})
}

// GetClaim returns the claim with its analysis, which is null until the
// first run completes.
func (h *ClaimHandler) GetClaim(c *fiber.Ctx) error {
	ctx := c.UserContext()
	claim, err := h.store.GetClaim(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err, "get claim")
	}

	analysis, err := h.store.GetAnalysisByClaim(ctx, claim.ID)
	if err != nil && !errors.Is(err, sqlite.ErrNotFound) {
		return respondError(c, err, "get analysis")
	}

	return c.JSON(fiber.Map{
		"claim":    claim,
		"analysis": analysis,
	})
}

func (h *ClaimHandler) RelatedClaims(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if _, err := h.store.GetClaim(ctx, id); err != nil {
		return respondError(c, err, "get claim")
	}

	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return badRequest(c, "limit", "limit must be a positive integer")
		}
		limit = min(n, 50)
	}

	related, err := h.related.Related(ctx, id, limit)
	if err != nil {
		return respondError(c, err, "query related claims")
	}

	return c.JSON(fiber.Map{
		"claimId": id,
		"related": related,
	})
}

// AnalyzeClaim runs the pipeline synchronously and returns the stored
// analysis.
func (h *ClaimHandler) AnalyzeClaim(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.runTimeout)
	defer cancel()

	analysis, err := h.analyzer.Run(ctx, c.Params("id"), security.Actor(c))
	if err != nil {
		return respondError(c, err, "analyze claim")
	}
	return c.JSON(analysis)
}

type AnalysisHandler struct {
	store ClaimStore
}

func NewAnalysisHandler(store ClaimStore) *AnalysisHandler {
	return &AnalysisHandler{store: store}
}

func (h *AnalysisHandler) GetAnalysis(c *fiber.Ctx) error {
	analysis, err := h.store.GetAnalysisByClaim(c.UserContext(), c.Params("claimId"))
	if err != nil {
		return respondError(c, err, "get analysis")
	}
	return c.JSON(analysis)
}
