package clustering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/risk"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/pkg/logger"
	"github.com/infosage/backend/pkg/utils"
)

type Store interface {
	ListClaimsWithEmbedding(ctx context.Context) ([]models.Claim, error)
	GetAnalysesByClaims(ctx context.Context, claimIDs []string) (map[string]*models.Analysis, error)
	FindClusterByMembers(ctx context.Context, claimIDs []string) (*models.Cluster, error)
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	InsertCluster(ctx context.Context, cluster *models.Cluster) error
	UpdateCluster(ctx context.Context, cluster *models.Cluster) error
	SetClaimCluster(ctx context.Context, clusterID string, claimIDs ...string) error
}

type Config struct {
	MaxClusters   int
	MaxIterations int
	Tolerance     float64
	// Seed fixes the k-means++ seeding. Zero seeds from the clock.
	Seed int64
}

type Result struct {
	ClustersCreated int `json:"clustersCreated"`
	ClustersUpdated int `json:"clustersUpdated"`
	TotalClaims     int `json:"totalClaims"`
	NumClusters     int `json:"numClusters"`
}

// Engine groups claims by embedding. Recluster is a full recompute; runs
// are serialized.
type Engine struct {
	store Store
	cfg   Config

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEngine(store Store, cfg Config) *Engine {
	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = 10
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-4
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{store: store, cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// ChooseK is min(ceil(sqrt(n/2)), max), and never more than n.
func ChooseK(n, max int) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Ceil(math.Sqrt(float64(n) / 2)))
	if k > max {
		k = max
	}
	if k > n {
		k = n
	}
	return k
}

func (e *Engine) Recluster(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.ReclusterDuration.Observe(time.Since(start).Seconds())
	}()

	claims, err := e.store.ListClaimsWithEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}
	claims = sameDimension(claims)

	if len(claims) < 2 {
		logger.Info("Not enough claims to cluster", zap.Int("claims", len(claims)))
		return &Result{TotalClaims: len(claims)}, nil
	}

	k := ChooseK(len(claims), e.cfg.MaxClusters)
	assignments := kmeans(toMatrix(claims), k, e.rng, e.cfg.MaxIterations, e.cfg.Tolerance)

	groups := make(map[int][]models.Claim)
	order := make([]int, 0, k)
	for i, idx := range assignments {
		if _, ok := groups[idx]; !ok {
			order = append(order, idx)
		}
		groups[idx] = append(groups[idx], claims[i])
	}

	ids := make([]string, len(claims))
	for i, c := range claims {
		ids[i] = c.ID
	}
	analyses, err := e.store.GetAnalysesByClaims(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyses: %w", err)
	}

	res := &Result{TotalClaims: len(claims), NumClusters: k}
	for _, idx := range order {
		created, err := e.upsertGroup(ctx, groups[idx], analyses)
		if err != nil {
			return nil, err
		}
		if created {
			res.ClustersCreated++
		} else {
			res.ClustersUpdated++
		}
	}

	logger.Info("Reclustering completed",
		zap.Int("claims", res.TotalClaims),
		zap.Int("k", k),
		zap.Int("created", res.ClustersCreated),
		zap.Int("updated", res.ClustersUpdated),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (e *Engine) upsertGroup(ctx context.Context, members []models.Claim, analyses map[string]*models.Analysis) (bool, error) {
	ids := make([]string, len(members))
	for i, c := range members {
		ids[i] = c.ID
	}

	now := time.Now().UTC()
	cluster, err := e.store.FindClusterByMembers(ctx, ids)
	created := errors.Is(err, sqlite.ErrNotFound)
	switch {
	case created:
		cluster = &models.Cluster{
			ID:        uuid.New().String(),
			Trend:     models.TrendStable,
			Tags:      []string{},
			CreatedAt: now,
		}
	case err != nil:
		return false, fmt.Errorf("failed to find cluster: %w", err)
	}

	cluster.Title = utils.FirstWords(members[0].Text, 5) + "..."
	cluster.Summary = fmt.Sprintf("Cluster of %d related claims", len(members))
	cluster.ClaimIDs = ids
	cluster.UpdatedAt = now
	aggregate(cluster, members, analyses)

	if created {
		err = e.store.InsertCluster(ctx, cluster)
	} else {
		err = e.store.UpdateCluster(ctx, cluster)
	}
	if err != nil {
		return false, err
	}

	if err := e.store.SetClaimCluster(ctx, cluster.ID, ids...); err != nil {
		return false, err
	}
	return created, nil
}

// aggregate fills the spread breakdowns and takes the riskiest member's
// score as the cluster risk.
func aggregate(cluster *models.Cluster, members []models.Claim, analyses map[string]*models.Analysis) {
	cluster.GeoSpread = make(map[string]int)
	cluster.ChannelSpread = make(map[string]int)
	cluster.TotalMentions = 0
	cluster.RiskScore = 0

	for _, c := range members {
		cluster.ChannelSpread[string(c.SourceType)]++
		cluster.GeoSpread[geoKey(c.Geo)]++
		cluster.TotalMentions += c.Mentions
		if a, ok := analyses[c.ID]; ok && a.RiskScore > cluster.RiskScore {
			cluster.RiskScore = a.RiskScore
		}
	}
	cluster.RiskTier = risk.Tier(cluster.RiskScore)
}

// WrapClaim records a single-claim cluster for a freshly analyzed claim. A
// re-run refreshes the claim's own wrapper instead of adding another.
func (e *Engine) WrapClaim(ctx context.Context, claim *models.Claim, a *models.Analysis, tags []string) (*models.Cluster, error) {
	now := time.Now().UTC()

	cluster := &models.Cluster{
		ID:        uuid.New().String(),
		CreatedAt: now,
	}
	update := false
	if claim.ClusterID != "" {
		existing, err := e.store.GetCluster(ctx, claim.ClusterID)
		if err == nil && len(existing.ClaimIDs) == 1 && existing.ClaimIDs[0] == claim.ID {
			cluster, update = existing, true
		}
	}

	if tags == nil {
		tags = []string{}
	}
	cluster.Title = utils.Truncate(claim.Text, 50, "...")
	cluster.Summary = utils.Truncate(a.Rationale, 200, "")
	cluster.ClaimIDs = []string{claim.ID}
	cluster.RiskScore = a.RiskScore
	cluster.RiskTier = risk.Tier(a.RiskScore)
	cluster.Trend = models.TrendStable
	cluster.GeoSpread = map[string]int{geoKey(claim.Geo): 1}
	cluster.ChannelSpread = map[string]int{string(claim.SourceType): 1}
	cluster.TotalMentions = claim.Mentions
	cluster.Tags = tags
	cluster.UpdatedAt = now

	var err error
	if update {
		err = e.store.UpdateCluster(ctx, cluster)
	} else {
		err = e.store.InsertCluster(ctx, cluster)
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.SetClaimCluster(ctx, cluster.ID, claim.ID); err != nil {
		return nil, err
	}

	logger.Debug("Claim cluster recorded",
		zap.String("cluster_id", cluster.ID),
		zap.String("claim_id", claim.ID),
		zap.Bool("updated", update),
	)
	return cluster, nil
}

func geoKey(g *models.GeoHint) string {
	switch {
	case g == nil:
		return "global"
	case g.Country != "":
		return g.Country
	case g.Region != "":
		return g.Region
	}
	return "global"
}

// sameDimension keeps the claims whose embedding length matches the first
// one.
func sameDimension(claims []models.Claim) []models.Claim {
	if len(claims) == 0 {
		return claims
	}
	dim := len(claims[0].Embedding)
	out := claims[:0:0]
	for _, c := range claims {
		if len(c.Embedding) == dim {
			out = append(out, c)
		}
	}
	if skipped := len(claims) - len(out); skipped > 0 {
		logger.Warn("Skipping embeddings with mismatched dimension", zap.Int("skipped", skipped), zap.Int("dim", dim))
	}
	return out
}

func toMatrix(claims []models.Claim) *mat.Dense {
	dim := len(claims[0].Embedding)
	data := make([]float64, 0, len(claims)*dim)
	for _, c := range claims {
		for _, v := range c.Embedding {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(claims), dim, data)
}
