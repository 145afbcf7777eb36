package features

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

// Analyzer is the AI side of the extractor.
type Analyzer interface {
	Available() bool
	AnalyzeSentiment(ctx context.Context, text string) (*llm.SentimentResult, error)
	AnalyzeToxicity(ctx context.Context, text string) (*llm.ToxicityResult, error)
	AnalyzeSpread(ctx context.Context, text string) (*llm.SpreadResult, error)
	AnalyzeManipulation(ctx context.Context, text string) (*llm.ManipulationResult, error)
}

type Config struct {
	// CallTimeout bounds each AI call.
	CallTimeout time.Duration
	// SettleTimeout bounds the wait for all four scorers together.
	SettleTimeout time.Duration
}

// Scores are the four content features. Source reliability is derived from
// the evidence and filled in by the caller.
type Scores struct {
	Sentiment              models.Sentiment
	Toxicity               float64
	SpreadVelocity         float64
	ManipulationLikelihood float64
	// Fallbacks names the scorers that used the local heuristic.
	Fallbacks []string
}

type Extractor struct {
	ai  Analyzer
	cfg Config
}

func NewExtractor(ai Analyzer, cfg Config) *Extractor {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = cfg.CallTimeout + 5*time.Second
	}
	return &Extractor{ai: ai, cfg: cfg}
}

type scorer struct {
	name  string
	run   func(ctx context.Context) error
	apply func()
}

// Extract scores text concurrently. It never fails: any scorer that errors
// or has not settled in time keeps its heuristic value.
func (e *Extractor) Extract(ctx context.Context, text string) Scores {
	if e.ai == nil || !e.ai.Available() {
		metrics.FallbacksTotal.WithLabelValues("features").Inc()
		return Heuristic(text)
	}

	var (
		sentiment    *llm.SentimentResult
		toxicity     *llm.ToxicityResult
		spread       *llm.SpreadResult
		manipulation *llm.ManipulationResult
	)

	out := Heuristic(text)
	out.Fallbacks = nil

	scorers := []scorer{
		{
			name: "sentiment",
			run: func(ctx context.Context) (err error) {
				sentiment, err = e.ai.AnalyzeSentiment(ctx, text)
				return err
			},
			apply: func() { out.Sentiment = sentiment.Sentiment },
		},
		{
			name: "toxicity",
			run: func(ctx context.Context) (err error) {
				toxicity, err = e.ai.AnalyzeToxicity(ctx, text)
				return err
			},
			apply: func() { out.Toxicity = toxicity.Score },
		},
		{
			name: "spread",
			run: func(ctx context.Context) (err error) {
				spread, err = e.ai.AnalyzeSpread(ctx, text)
				return err
			},
			apply: func() { out.SpreadVelocity = spread.Velocity },
		},
		{
			name: "manipulation",
			run: func(ctx context.Context) (err error) {
				manipulation, err = e.ai.AnalyzeManipulation(ctx, text)
				return err
			},
			apply: func() { out.ManipulationLikelihood = manipulation.Score },
		},
	}

	type outcome struct {
		index int
		err   error
	}

	settleCtx, cancel := context.WithTimeout(ctx, e.cfg.SettleTimeout)
	defer cancel()

	results := make(chan outcome, len(scorers))
	for i, s := range scorers {
		go func(i int, s scorer) {
			callCtx, cancel := context.WithTimeout(settleCtx, e.cfg.CallTimeout)
			defer cancel()
			results <- outcome{index: i, err: s.run(callCtx)}
		}(i, s)
	}

	settled := make([]bool, len(scorers))
	for pending := len(scorers); pending > 0; pending-- {
		select {
		case r := <-results:
			settled[r.index] = true
			if r.err != nil {
				e.fallback(&out, scorers[r.index].name, r.err)
				continue
			}
			scorers[r.index].apply()
		case <-settleCtx.Done():
			for i, s := range scorers {
				if !settled[i] {
					e.fallback(&out, s.name, settleCtx.Err())
				}
			}
			return out
		}
	}

	return out
}

func (e *Extractor) fallback(out *Scores, name string, err error) {
	out.Fallbacks = append(out.Fallbacks, name)
	metrics.FallbacksTotal.WithLabelValues(name).Inc()
	logger.Warn("Feature scorer failed, using heuristic",
		zap.String("stage", name),
		zap.Error(err),
	)
}

// Heuristic scores text with the local rules only.
func Heuristic(text string) Scores {
	return Scores{
		Sentiment:              Sentiment(text),
		Toxicity:               Toxicity(text),
		SpreadVelocity:         SpreadVelocity(text),
		ManipulationLikelihood: ManipulationLikelihood(text),
		Fallbacks:              []string{"sentiment", "toxicity", "spread", "manipulation"},
	}
}
