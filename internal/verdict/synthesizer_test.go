package verdict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/storage/models"
)

type fakeGenerator struct {
	available     bool
	verdict       *llm.VerdictResult
	verdictErr    error
	sources       []models.EvidenceSource
	sourcesErr    error
	verdictCalls  int
	evidenceCalls int
	lastEvidence  []models.EvidenceSource
}

func (f *fakeGenerator) Available() bool { return f.available }

func (f *fakeGenerator) GenerateVerdict(ctx context.Context, claim string, evidence []models.EvidenceSource) (*llm.VerdictResult, error) {
	f.verdictCalls++
	f.lastEvidence = evidence
	return f.verdict, f.verdictErr
}

func (f *fakeGenerator) GenerateEvidenceSources(ctx context.Context, claim string, v models.Verdict) (*llm.EvidenceResult, error) {
	f.evidenceCalls++
	if f.sourcesErr != nil {
		return nil, f.sourcesErr
	}
	return &llm.EvidenceResult{Sources: f.sources}, nil
}

func TestRules_KnownFalseClaims(t *testing.T) {
	rules := NewRules()

	tests := []struct {
		text       string
		confidence float64
		contains   string
	}{
		{"The earth is flat and NASA is lying", 0.95, "oblate spheroid"},
		{"Vaccines cause autism in children", 0.95, "retracted"},
		{"The moon landing was fake", 0.9, "Moon landings"},
		{"5G towers spread COVID", 0.95, "SARS-CoV-2"},
		{"A lizard runs the government", 0.85, "reptilians"},
		{"Chemtrails are poisoning our water", 0.8, "Contrails"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := rules.Evaluate(tt.text)
			assert.Equal(t, models.VerdictFalse, res.Verdict)
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.Contains(t, res.Rationale, tt.contains)
			assert.Equal(t, []string{"Matches known debunked claim", "Scientific consensus contradicts this"}, res.KeyFindings)
			assert.Equal(t, StageRules, res.Stage)
		})
	}
}

func TestRules_PartialKeywordSetDoesNotMatch(t *testing.T) {
	res := NewRules().Evaluate("The moon looked bright during the landing")
	assert.Equal(t, models.VerdictUnverified, res.Verdict)
}

func TestRules_Patterns(t *testing.T) {
	rules := NewRules()

	tests := []struct {
		name       string
		text       string
		verdict    models.Verdict
		confidence float64
	}{
		{"unit error", "There are 25 hours in a day", models.VerdictFalse, 0.9},
		{"size inversion", "The Earth is much bigger than the sun", models.VerdictFalse, 0.95},
		{"sun smaller", "The sun is a lot smaller than the earth", models.VerdictFalse, 0.95},
		{"vaccine harm", "Vaccines kill more people than they save", models.VerdictFalse, 0.9},
		{"manipulation", "They don't want you to know this!", models.VerdictFalse, 0.6},
		{"water", "Water is H2O", models.VerdictTrue, 0.95},
		{"orbit", "The earth orbits the sun", models.VerdictUnverified, 0.5},
		{"orbit direct", "earth orbits sun every year", models.VerdictTrue, 0.95},
		{"gravity", "Gravity really exists", models.VerdictTrue, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := rules.Evaluate(tt.text)
			assert.Equal(t, tt.verdict, res.Verdict)
			assert.Equal(t, tt.confidence, res.Confidence)
		})
	}
}

func TestRules_ManipulationOnlyOnShortText(t *testing.T) {
	long := "Do your own research. " +
		"The council met for several hours to discuss road maintenance, park budgets, library opening times " +
		"and the schedule for the summer festival."
	require.GreaterOrEqual(t, len(long), manipulationMaxLen)

	assert.Equal(t, models.VerdictUnverified, NewRules().Evaluate(long).Verdict)
}

func TestRules_Default(t *testing.T) {
	res := NewRules().Evaluate("The city council approved a new budget on Tuesday")
	assert.Equal(t, models.VerdictUnverified, res.Verdict)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Equal(t, `Analysis of "The city council approved a new budget on Tuesday..." requires additional sources and expert review.`, res.Rationale)
	assert.Equal(t, []string{"Unable to verify with available sources", "Recommend manual review"}, res.KeyFindings)
}

func TestSynthesize_RulesWithoutAI(t *testing.T) {
	s := NewSynthesizer(&fakeGenerator{available: false})

	res := s.Synthesize(context.Background(), "The earth is flat and NASA is lying", nil)
	assert.Equal(t, models.VerdictFalse, res.Verdict)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)

	res = NewSynthesizer(nil).Synthesize(context.Background(), "Vaccines cause autism in children", nil)
	assert.Equal(t, models.VerdictFalse, res.Verdict)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Contains(t, res.Rationale, "retracted")
}

func TestSynthesize_ResearchStageWins(t *testing.T) {
	gen := &fakeGenerator{available: true}
	s := NewSynthesizer(gen)

	research := &models.ResearchResult{ClaimAnalysis: &models.ClaimAssessment{
		Verdict:    models.VerdictMisleading,
		Confidence: 1.4,
		Reasoning:  "Photo is from 2015.",
	}}

	res := s.Synthesize(context.Background(), "The earth is flat", research)
	assert.Equal(t, models.VerdictMisleading, res.Verdict)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, "Photo is from 2015.", res.Rationale)
	assert.NotNil(t, res.KeyFindings)
	assert.Equal(t, StageResearch, res.Stage)
	assert.Zero(t, gen.verdictCalls)
}

func TestSynthesize_LLMStage(t *testing.T) {
	gen := &fakeGenerator{available: true, verdict: &llm.VerdictResult{
		Verdict:     models.VerdictMixed,
		Confidence:  0.7,
		Rationale:   "Partly right.",
		KeyFindings: []string{"a"},
	}}

	res := NewSynthesizer(gen).Synthesize(context.Background(), "Vaccine trial results were published", &models.ResearchResult{})
	assert.Equal(t, models.VerdictMixed, res.Verdict)
	assert.Equal(t, StageLLM, res.Stage)
	require.Equal(t, 1, gen.verdictCalls)
	require.NotEmpty(t, gen.lastEvidence)
	assert.Equal(t, "Verified: Common vaccine claims", gen.lastEvidence[0].Title)
}

func TestSynthesize_LLMFailureFallsBackToRules(t *testing.T) {
	gen := &fakeGenerator{available: true, verdictErr: llm.ErrInvalidResponse}

	res := NewSynthesizer(gen).Synthesize(context.Background(), "Water is H2O", nil)
	assert.Equal(t, models.VerdictTrue, res.Verdict)
	assert.Equal(t, StageRules, res.Stage)
	assert.Equal(t, 1, gen.verdictCalls)
}

func TestRelevantSources(t *testing.T) {
	assert.Empty(t, RelevantSources("xyz qq"))

	one := RelevantSources("election results")
	require.Len(t, one, 1)
	assert.Equal(t, "https://example-factcheck.org/elections", one[0].URL)

	capped := RelevantSources("vaccine election health study")
	require.Len(t, capped, maxCorpusMatches)
	assert.Equal(t, "https://example-factcheck.org/vaccines", capped[0].URL)
}

func TestDefaultSources(t *testing.T) {
	assert.Equal(t, DefaultSources(models.VerdictUnverified), DefaultSources(models.VerdictSatire))

	falseSet := DefaultSources(models.VerdictFalse)
	require.Len(t, falseSet, 3)
	assert.Equal(t, "Debunked by fact-checkers", falseSet[0].Title)

	falseSet[0].Title = "changed"
	assert.Equal(t, "Debunked by fact-checkers", DefaultSources(models.VerdictFalse)[0].Title)
}

func TestCollectEvidence(t *testing.T) {
	ctx := context.Background()

	t.Run("research results", func(t *testing.T) {
		gen := &fakeGenerator{available: true}
		research := &models.ResearchResult{
			SearchResults: []models.SearchResult{{Title: "Story", URL: "https://news.example/a", Verdict: "False"}},
			FactCheckResults: []models.FactCheckHit{
				{Organization: "Snopes", Verdict: "False", Summary: "Doctored image."},
			},
		}

		sources := NewSynthesizer(gen).CollectEvidence(ctx, "claim", research, models.VerdictFalse)
		require.Len(t, sources, 2)
		assert.Equal(t, "news", sources[0].Type)
		assert.Equal(t, models.ReliabilityMedium, sources[0].Reliability)
		assert.Equal(t, "False", sources[0].Snippet)
		assert.Equal(t, "fact-check", sources[1].Type)
		assert.Equal(t, "Snopes: False", sources[1].Title)
		assert.Equal(t, "https://factcheck.org", sources[1].URL)
		assert.Equal(t, models.ReliabilityHigh, sources[1].Reliability)
		assert.Zero(t, gen.evidenceCalls)
	})

	t.Run("generated sources", func(t *testing.T) {
		gen := &fakeGenerator{available: true, sources: []models.EvidenceSource{{Title: "AI", URL: "https://x", Reliability: models.ReliabilityLow}}}
		sources := NewSynthesizer(gen).CollectEvidence(ctx, "claim", nil, models.VerdictTrue)
		require.Len(t, sources, 1)
		assert.Equal(t, "AI", sources[0].Title)
	})

	t.Run("generator error", func(t *testing.T) {
		gen := &fakeGenerator{available: true, sourcesErr: errors.New("timeout")}
		sources := NewSynthesizer(gen).CollectEvidence(ctx, "claim", nil, models.VerdictTrue)
		assert.Equal(t, DefaultSources(models.VerdictTrue), sources)
	})

	t.Run("generator empty", func(t *testing.T) {
		gen := &fakeGenerator{available: true}
		sources := NewSynthesizer(gen).CollectEvidence(ctx, "claim", nil, models.VerdictMixed)
		assert.Equal(t, DefaultSources(models.VerdictMixed), sources)
	})

	t.Run("unavailable", func(t *testing.T) {
		gen := &fakeGenerator{available: false}
		sources := NewSynthesizer(gen).CollectEvidence(ctx, "claim", nil, models.VerdictFalse)
		assert.Equal(t, DefaultSources(models.VerdictFalse), sources)
		assert.Zero(t, gen.evidenceCalls)
	})
}
