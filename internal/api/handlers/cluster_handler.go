package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/infosage/backend/internal/clustering"
	"github.com/infosage/backend/internal/storage/models"
)

type ClusterStore interface {
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	ListClusters(ctx context.Context, filter models.ClusterFilter) ([]models.Cluster, int, error)
	GetClaimsByIDs(ctx context.Context, ids []string) ([]models.Claim, error)
}

type Reclusterer interface {
	Recluster(ctx context.Context) (*clustering.Result, error)
}

type ClusterHandler struct {
	store  ClusterStore
	engine Reclusterer
}

func NewClusterHandler(store ClusterStore, engine Reclusterer) *ClusterHandler {
	return &ClusterHandler{store: store, engine: engine}
}

// ListClusters returns clusters ordered by risk, highest first.
func (h *ClusterHandler) ListClusters(c *fiber.Ctx) error {
	limit, offset, err := pagination(c)
	if err != nil {
		return respondError(c, err, "list clusters")
	}

	filter := models.ClusterFilter{
		RiskTier: models.RiskTier(c.Query("riskTier")),
		Trend:    models.Trend(c.Query("trend")),
		Limit:    limit,
		Offset:   offset,
	}
	switch filter.RiskTier {
	case "", models.RiskLow, models.RiskMedium, models.RiskHigh:
	default:
		return badRequest(c, "riskTier", "Unknown risk tier")
	}
	switch filter.Trend {
	case "", models.TrendAccelerating, models.TrendStable, models.TrendDeclining:
	default:
		return badRequest(c, "trend", "Unknown trend")
	}

	clusters, total, err := h.store.ListClusters(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err, "list clusters")
	}

	return c.JSON(fiber.Map{
		"clusters": clusters,
		"total":    total,
		"limit":    pageLimit(limit),
		"offset":   offset,
	})
}

func (h *ClusterHandler) GetCluster(c *fiber.Ctx) error {
	ctx := c.UserContext()
	cluster, err := h.store.GetCluster(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err, "get cluster")
	}

	claims, err := h.store.GetClaimsByIDs(ctx, cluster.ClaimIDs)
	if err != nil {
		return respondError(c, err, "load cluster members")
	}
	if claims == nil {
		claims = []models.Claim{}
	}

	return c.JSON(fiber.Map{
		"cluster": cluster,
		"claims":  claims,
	})
}

func (h *ClusterHandler) Recompute(c *fiber.Ctx) error {
	res, err := h.engine.Recluster(c.UserContext())
	if err != nil {
		return respondError(c, err, "recompute clusters")
	}
	return c.JSON(res)
}
