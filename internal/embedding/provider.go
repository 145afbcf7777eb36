package embedding

import (
	"context"
	"errors"
	"math/rand"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/pkg/logger"
	"github.com/infosage/backend/pkg/retry"
	"github.com/infosage/backend/pkg/utils"
)

type Embedder interface {
	Available() bool
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// RemoteCache is a shared embedding cache, typically Redis.
type RemoteCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type Config struct {
	Dim      int
	Model    string
	CacheTTL time.Duration
	Retry    retry.Config
}

// DefaultRetry is three attempts starting at 500ms, or 3s after a rate
// limit, doubling each time.
func DefaultRetry() retry.Config {
	return retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		RateLimited:    llm.IsRateLimited,
		RateLimitDelay: 3 * time.Second,
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, llm.ErrUnavailable)
		},
		Logger: logger.GetLogger(),
	}
}

// Provider turns text into a fixed-dimension vector. Embed never fails: when
// the provider is unreachable it returns a random placeholder of the same
// dimension so claim creation is never blocked.
type Provider struct {
	client Embedder
	remote RemoteCache
	local  *gocache.Cache
	cfg    Config
}

func NewProvider(client Embedder, remote RemoteCache, cfg Config) *Provider {
	if cfg.Dim <= 0 {
		cfg.Dim = 1536
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetry()
	}

	return &Provider{
		client: client,
		remote: remote,
		local:  gocache.New(cfg.CacheTTL, 10*time.Minute),
		cfg:    cfg,
	}
}

func (p *Provider) Dim() int {
	return p.cfg.Dim
}

// Embed returns the embedding of text. language is recorded for
// diagnostics only; the model is multilingual.
func (p *Provider) Embed(ctx context.Context, text, language string) []float32 {
	key := utils.HashText(p.cfg.Model, text)

	if vec, ok := p.cached(ctx, key); ok {
		return vec
	}

	if !p.client.Available() {
		metrics.FallbacksTotal.WithLabelValues("embedding").Inc()
		logger.Debug("Embedding provider unavailable, using placeholder vector", zap.String("stage", "embedding"))
		return Placeholder(p.cfg.Dim)
	}

	vec, err := retry.DoWithResult(ctx, p.cfg.Retry, func() ([]float32, error) {
		return p.client.CreateEmbedding(ctx, text)
	})
	if err != nil {
		metrics.FallbacksTotal.WithLabelValues("embedding").Inc()
		logger.Warn("Embedding failed, using placeholder vector",
			zap.String("stage", "embedding"),
			zap.String("language", language),
			zap.Error(err),
		)
		return Placeholder(p.cfg.Dim)
	}

	p.store(ctx, key, vec)
	return vec
}

func (p *Provider) cached(ctx context.Context, key string) ([]float32, bool) {
	if v, found := p.local.Get(key); found {
		metrics.CacheHits.WithLabelValues("embedding_local").Inc()
		return v.([]float32), true
	}
	metrics.CacheMisses.WithLabelValues("embedding_local").Inc()

	if p.remote == nil {
		return nil, false
	}

	vec, found, err := p.remote.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !found || len(vec) != p.cfg.Dim {
		metrics.CacheMisses.WithLabelValues("embedding_remote").Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("embedding_remote").Inc()
	p.local.SetDefault(key, vec)
	return vec, true
}

func (p *Provider) store(ctx context.Context, key string, vec []float32) {
	p.local.SetDefault(key, vec)
	if p.remote == nil {
		return
	}
	if err := p.remote.SetEmbedding(ctx, key, vec, p.cfg.CacheTTL); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}
}

// Placeholder returns a random vector with components in [-1, 1].
func Placeholder(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(rand.Float64()*2 - 1)
	}
	return vec
}
