package verdict

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

type Stage string

const (
	StageResearch Stage = "research"
	StageLLM      Stage = "llm"
	StageRules    Stage = "rules"
)

type Result struct {
	Verdict     models.Verdict
	Confidence  float64
	Rationale   string
	KeyFindings []string
	Stage       Stage
}

// Generator is the AI side of the synthesizer.
type Generator interface {
	Available() bool
	GenerateVerdict(ctx context.Context, claim string, evidence []models.EvidenceSource) (*llm.VerdictResult, error)
	GenerateEvidenceSources(ctx context.Context, claim string, verdict models.Verdict) (*llm.EvidenceResult, error)
}

// Synthesizer produces a verdict through an ordered fallback chain:
// research context, then the LLM, then local rules.
type Synthesizer struct {
	gen   Generator
	rules *Rules
}

func NewSynthesizer(gen Generator) *Synthesizer {
	return &Synthesizer{gen: gen, rules: NewRules()}
}

// Synthesize always returns a verdict.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, research *models.ResearchResult) Result {
	res := s.synthesize(ctx, text, research)
	res.Confidence = clamp01(res.Confidence)
	if res.KeyFindings == nil {
		res.KeyFindings = []string{}
	}
	metrics.VerdictsTotal.WithLabelValues(string(res.Stage), string(res.Verdict)).Inc()
	return res
}

func (s *Synthesizer) synthesize(ctx context.Context, text string, research *models.ResearchResult) Result {
	if research != nil && research.ClaimAnalysis != nil {
		ca := research.ClaimAnalysis
		logger.Info("Using research verdict",
			zap.String("verdict", string(ca.Verdict)),
			zap.Float64("confidence", ca.Confidence),
		)
		return Result{
			Verdict:     ca.Verdict,
			Confidence:  ca.Confidence,
			Rationale:   ca.Reasoning,
			KeyFindings: ca.KeyEvidence,
			Stage:       StageResearch,
		}
	}

	if s.gen != nil && s.gen.Available() {
		vr, err := s.gen.GenerateVerdict(ctx, text, RelevantSources(text))
		if err == nil {
			return Result{
				Verdict:     vr.Verdict,
				Confidence:  vr.Confidence,
				Rationale:   vr.Rationale,
				KeyFindings: vr.KeyFindings,
				Stage:       StageLLM,
			}
		}
		metrics.FallbacksTotal.WithLabelValues("verdict").Inc()
		logger.Warn("LLM verdict failed, falling back to rules",
			zap.String("stage", "verdict"),
			zap.Error(err),
		)
	}

	return s.rules.Evaluate(text)
}

// Evaluate runs only the rule-based stage.
func (s *Synthesizer) Evaluate(text string) Result {
	return s.rules.Evaluate(text)
}

// CollectEvidence merges research results and fact-check hits. When that
// yields nothing it asks the generator for plausible sources, and as a last
// resort returns the defaults for the verdict class.
func (s *Synthesizer) CollectEvidence(ctx context.Context, text string, research *models.ResearchResult, v models.Verdict) []models.EvidenceSource {
	sources := ResearchEvidence(research)
	if len(sources) > 0 {
		return sources
	}

	if s.gen != nil && s.gen.Available() {
		er, err := s.gen.GenerateEvidenceSources(ctx, text, v)
		if err == nil && len(er.Sources) > 0 {
			return er.Sources
		}
		if err == nil {
			err = errors.New("no sources returned")
		}
		metrics.FallbacksTotal.WithLabelValues("evidence").Inc()
		logger.Warn("Evidence generation failed, using default sources",
			zap.String("stage", "evidence"),
			zap.Error(err),
		)
	}

	return DefaultSources(v)
}

// ResearchEvidence converts research search results and fact-check hits
// into evidence sources.
func ResearchEvidence(research *models.ResearchResult) []models.EvidenceSource {
	if research == nil {
		return nil
	}

	sources := make([]models.EvidenceSource, 0, len(research.SearchResults)+len(research.FactCheckResults))
	for _, r := range research.SearchResults {
		src := models.EvidenceSource{
			Type:        r.Type,
			Title:       r.Title,
			URL:         r.URL,
			Reliability: r.Reliability,
			Snippet:     r.Snippet,
			Date:        r.Date,
		}
		if src.Type == "" {
			src.Type = "news"
		}
		if src.Reliability == "" {
			src.Reliability = models.ReliabilityMedium
		}
		if src.Snippet == "" {
			src.Snippet = r.Verdict
		}
		sources = append(sources, src)
	}

	for _, fc := range research.FactCheckResults {
		url := fc.URL
		if url == "" {
			url = "https://factcheck.org"
		}
		sources = append(sources, models.EvidenceSource{
			Type:        "fact-check",
			Title:       fmt.Sprintf("%s: %s", fc.Organization, fc.Verdict),
			URL:         url,
			Reliability: models.ReliabilityHigh,
			Snippet:     fc.Summary,
		})
	}
	return sources
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
