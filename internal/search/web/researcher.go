package web

import (
	"context"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

// Model is the structured LLM research call.
type Model interface {
	Available() bool
	Research(ctx context.Context, text string, media *models.MediaAnalysis) (*models.ResearchResult, error)
}

// Researcher gathers context about a claim before a verdict is formed:
// an LLM research pass, plus live search results when SerpAPI is set up.
type Researcher struct {
	model  Model
	search *Client
}

func NewResearcher(model Model, search *Client) *Researcher {
	return &Researcher{model: model, search: search}
}

// Research never fails. It returns nil when no source produced anything.
func (r *Researcher) Research(ctx context.Context, claim *models.Claim) *models.ResearchResult {
	var result *models.ResearchResult

	if r.model != nil && r.model.Available() {
		res, err := r.model.Research(ctx, claim.Text, claim.MediaAnalysis)
		if err != nil {
			metrics.FallbacksTotal.WithLabelValues("research").Inc()
			logger.Warn("Web research failed",
				zap.String("stage", "research"),
				zap.String("claim_id", claim.ID),
				zap.Error(err),
			)
		} else {
			result = res
		}
	}

	if r.search.Enabled() {
		live, err := r.search.Search(ctx, claim.Text)
		if err != nil {
			logger.Warn("Live search failed",
				zap.String("stage", "search"),
				zap.String("claim_id", claim.ID),
				zap.Error(err),
			)
		} else if len(live) > 0 {
			if result == nil {
				result = &models.ResearchResult{}
			}
			result.SearchResults = append(result.SearchResults, live...)
		}
	}

	return result
}
