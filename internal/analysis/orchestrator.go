package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/infosage/backend/internal/events"
	"github.com/infosage/backend/internal/features"
	"github.com/infosage/backend/internal/ingestion"
	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/review"
	"github.com/infosage/backend/internal/risk"
	"github.com/infosage/backend/internal/similarity"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/internal/vector/zilliz"
	"github.com/infosage/backend/internal/verdict"
	"github.com/infosage/backend/pkg/logger"
)

type Store interface {
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	SetClaimEmbedding(ctx context.Context, id string, embedding []float32) error
	UpdateClaimStatus(ctx context.Context, id string, next models.ClaimStatus) error
	ReplaceAnalysis(ctx context.Context, a *models.Analysis) error
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type Embedder interface {
	Embed(ctx context.Context, text, language string) []float32
}

type Researcher interface {
	Research(ctx context.Context, claim *models.Claim) *models.ResearchResult
}

type VerdictSource interface {
	Synthesize(ctx context.Context, text string, research *models.ResearchResult) verdict.Result
	CollectEvidence(ctx context.Context, text string, research *models.ResearchResult, v models.Verdict) []models.EvidenceSource
}

type FeatureSource interface {
	Extract(ctx context.Context, text string) features.Scores
}

type TrendSource interface {
	Available() bool
	GenerateMentionTrends(ctx context.Context, claim string, v models.Verdict) (*llm.TrendResult, error)
}

type Clusterer interface {
	WrapClaim(ctx context.Context, claim *models.Claim, a *models.Analysis, tags []string) (*models.Cluster, error)
}

type VectorMirror interface {
	Upsert(ctx context.Context, vectors []zilliz.ClaimVector) error
}

type GraphRecorder interface {
	Record(ctx context.Context, claim *models.Claim, a *models.Analysis, research *models.ResearchResult) error
}

type Escalator interface {
	AutoEscalate(ctx context.Context, a *models.Analysis)
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event)
}

// Deps wires the orchestrator. Store, Embedder, Verdicts and Features are
// required; the rest are optional and skipped when nil.
type Deps struct {
	Store      Store
	Embedder   Embedder
	Similar    similarity.Searcher
	Researcher Researcher
	Verdicts   VerdictSource
	Features   FeatureSource
	Trends     TrendSource
	Clusters   Clusterer
	Vectors    VectorMirror
	Graph      GraphRecorder
	Escalator  Escalator
	Publisher  Publisher
}

type Config struct {
	SimilarityThreshold float64
	AutoEscalate        bool
}

// Orchestrator runs the enrichment pipeline for one claim. Steps for a
// claim run in order; different claims are independent.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.8
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// Run analyzes a claim and returns the stored Analysis. Failures before the
// analysis is persisted return an error and leave the claim in new or
// analyzing; failures after it are logged and swallowed.
func (o *Orchestrator) Run(ctx context.Context, claimID, actor string) (*models.Analysis, error) {
	start := time.Now()

	a, err := o.run(ctx, claimID, actor)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		if !errors.Is(err, sqlite.ErrNotFound) {
			o.publish(ctx, events.Event{
				Type:    events.TypeAnalysisFailed,
				ClaimID: claimID,
				Error:   "analysis failed",
			})
		}
		logger.Error("Claim analysis failed", zap.String("claim_id", claimID), zap.Error(err))
		return nil, err
	}

	metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	logger.Info("Claim analysis completed",
		zap.String("claim_id", claimID),
		zap.String("verdict", string(a.Verdict)),
		zap.Float64("confidence", a.Confidence),
		zap.Float64("risk_score", a.RiskScore),
		zap.Int("sources", len(a.Sources)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return a, nil
}

func (o *Orchestrator) run(ctx context.Context, claimID, actor string) (*models.Analysis, error) {
	claim, err := o.deps.Store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}

	o.ensureEmbedding(ctx, claim)
	o.similarityHint(ctx, claim)

	if claim.Status == models.StatusNew {
		if err := o.deps.Store.UpdateClaimStatus(ctx, claim.ID, models.StatusAnalyzing); err != nil {
			return nil, fmt.Errorf("failed to mark claim analyzing: %w", err)
		}
		claim.Status = models.StatusAnalyzing
	}

	var research *models.ResearchResult
	if o.deps.Researcher != nil {
		stop := stageTimer("research")
		research = o.deps.Researcher.Research(ctx, claim)
		stop()
	}

	text := claimText(claim)

	var (
		vr     verdict.Result
		scores features.Scores
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stageTimer("verdict")()
		vr = o.deps.Verdicts.Synthesize(gctx, text, research)
		return nil
	})
	g.Go(func() error {
		defer stageTimer("features")()
		scores = o.deps.Features.Extract(gctx, text)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}

	stop := stageTimer("evidence")
	sources := o.deps.Verdicts.CollectEvidence(ctx, text, research, vr.Verdict)
	mentions := o.mentionTrend(ctx, text, vr.Verdict)
	stop()

	riskScore := risk.Score(vr.Confidence, scores.Toxicity, scores.SpreadVelocity, risk.Novelty)
	metrics.RiskScore.Observe(riskScore)

	now := time.Now().UTC()
	a := &models.Analysis{
		ID:                uuid.New().String(),
		ClaimID:           claim.ID,
		Verdict:           vr.Verdict,
		VerdictPercentage: risk.VerdictPercentage(vr.Verdict),
		Confidence:        vr.Confidence,
		RiskScore:         riskScore,
		Rationale:         BuildRationale(vr.Rationale, research),
		KeyFindings:       vr.KeyFindings,
		Features: models.Features{
			Sentiment:              scores.Sentiment,
			ManipulationLikelihood: scores.ManipulationLikelihood,
			SourceReliability:      risk.SourceReliability(sources),
			SpreadVelocity:         scores.SpreadVelocity,
			Toxicity:               scores.Toxicity,
		},
		Sources:   sources,
		WebSearch: webSearch(research),
		Charts: models.Charts{
			RiskTrend:        risk.Trend(riskScore),
			MentionsOverTime: mentions,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	stop = stageTimer("persist")
	err = o.deps.Store.ReplaceAnalysis(ctx, a)
	stop()
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	o.wrapClaim(ctx, claim, a)
	o.mirror(ctx, claim, a, research)

	// An escalated claim leaves review only through Resolve.
	status := models.StatusAnalyzed
	eventType := events.TypeAnalysisCompleted
	escalate := claim.Status != models.StatusEscalated && o.cfg.AutoEscalate && review.ShouldEscalate(a)
	switch {
	case claim.Status == models.StatusEscalated:
		status = models.StatusEscalated
	case escalate:
		status = models.StatusEscalated
		eventType = events.TypeClaimEscalated
	}
	if err := o.deps.Store.UpdateClaimStatus(ctx, claim.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update claim status: %w", err)
	}
	if escalate && o.deps.Escalator != nil {
		o.deps.Escalator.AutoEscalate(ctx, a)
	}

	o.audit(ctx, &models.AuditLog{
		ActorID:    actor,
		Action:     models.AuditAnalyze,
		TargetType: models.TargetClaim,
		TargetID:   claim.ID,
		Metadata: map[string]any{
			"analysisId": a.ID,
			"verdict":    string(a.Verdict),
			"riskScore":  a.RiskScore,
			"stage":      string(vr.Stage),
		},
	})
	o.publish(ctx, events.Event{
		Type:      eventType,
		ClaimID:   claim.ID,
		Status:    status,
		Verdict:   a.Verdict,
		RiskScore: a.RiskScore,
	})

	return a, nil
}

// ensureEmbedding fills in a missing embedding. The provider never fails;
// a failed write only means the next run embeds again.
func (o *Orchestrator) ensureEmbedding(ctx context.Context, claim *models.Claim) {
	if claim.HasEmbedding() {
		return
	}
	defer stageTimer("embedding")()

	claim.Embedding = o.deps.Embedder.Embed(ctx, claimText(claim), claim.Language)
	if err := o.deps.Store.SetClaimEmbedding(ctx, claim.ID, claim.Embedding); err != nil {
		logger.Warn("Failed to store claim embedding",
			zap.String("stage", "embedding"),
			zap.String("claim_id", claim.ID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) similarityHint(ctx context.Context, claim *models.Claim) {
	if o.deps.Similar == nil || !claim.HasEmbedding() {
		return
	}
	defer stageTimer("similarity")()

	matches, err := o.deps.Similar.FindSimilar(ctx, claim.Embedding, o.cfg.SimilarityThreshold)
	if err != nil {
		logger.Warn("Similarity lookup failed",
			zap.String("stage", "similarity"),
			zap.String("claim_id", claim.ID),
			zap.Error(err),
		)
		return
	}

	var related []string
	for _, m := range matches {
		if m.Claim.ID != claim.ID {
			related = append(related, m.Claim.ID)
		}
	}
	if len(related) > 0 {
		logger.Info("Similar claims found",
			zap.String("claim_id", claim.ID),
			zap.Strings("similar", related),
		)
	}
}

func (o *Orchestrator) mentionTrend(ctx context.Context, text string, v models.Verdict) []models.MentionPoint {
	if o.deps.Trends != nil && o.deps.Trends.Available() {
		res, err := o.deps.Trends.GenerateMentionTrends(ctx, text, v)
		if err == nil && len(res.Points) > 0 {
			return res.Points
		}
		metrics.FallbacksTotal.WithLabelValues("trends").Inc()
		logger.Warn("Mention trends failed, using defaults", zap.String("stage", "trends"), zap.Error(err))
	}
	return DefaultMentionTrend(time.Now().UTC())
}

func (o *Orchestrator) wrapClaim(ctx context.Context, claim *models.Claim, a *models.Analysis) {
	if o.deps.Clusters == nil {
		return
	}
	tags := ingestion.EntityTags(claimText(claim))
	cluster, err := o.deps.Clusters.WrapClaim(ctx, claim, a, tags)
	if err != nil {
		logger.Warn("Failed to create claim cluster",
			zap.String("stage", "cluster"),
			zap.String("claim_id", claim.ID),
			zap.Error(err),
		)
		return
	}
	claim.ClusterID = cluster.ID
}

// mirror copies the claim into the optional vector index and narrative
// graph.
func (o *Orchestrator) mirror(ctx context.Context, claim *models.Claim, a *models.Analysis, research *models.ResearchResult) {
	if o.deps.Vectors != nil && claim.HasEmbedding() {
		err := o.deps.Vectors.Upsert(ctx, []zilliz.ClaimVector{{
			ClaimID:    claim.ID,
			Embedding:  claim.Embedding,
			SourceType: string(claim.SourceType),
			CreatedAt:  claim.CreatedAt,
		}})
		if err != nil {
			logger.Warn("Failed to mirror claim vector",
				zap.String("stage", "vector"),
				zap.String("claim_id", claim.ID),
				zap.Error(err),
			)
		}
	}

	if o.deps.Graph != nil {
		if err := o.deps.Graph.Record(ctx, claim, a, research); err != nil {
			logger.Warn("Failed to record claim graph",
				zap.String("stage", "graph"),
				zap.String("claim_id", claim.ID),
				zap.Error(err),
			)
		}
	}
}

func (o *Orchestrator) audit(ctx context.Context, entry *models.AuditLog) {
	if err := o.deps.Store.InsertAuditLog(ctx, entry); err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", string(entry.Action)),
			zap.String("target_id", entry.TargetID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publish(ctx context.Context, e events.Event) {
	if o.deps.Publisher != nil {
		o.deps.Publisher.Publish(ctx, e)
	}
}

func claimText(c *models.Claim) string {
	if c.CanonicalText != "" {
		return c.CanonicalText
	}
	return c.Text
}

func webSearch(r *models.ResearchResult) *models.WebSearchResults {
	if r == nil {
		return nil
	}
	return &models.WebSearchResults{
		PeopleInfo:       r.PeopleInfo,
		ImageOrigin:      r.ImageOrigin,
		FactCheckResults: r.FactCheckResults,
		Warnings:         r.Warnings,
	}
}

func stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
