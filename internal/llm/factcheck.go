package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

const (
	featureTimeout  = 15 * time.Second
	evidenceTimeout = 20 * time.Second
)

type VerdictResult struct {
	Verdict     models.Verdict `json:"verdict"`
	Confidence  float64        `json:"confidence"`
	Rationale   string         `json:"rationale"`
	KeyFindings []string       `json:"keyFindings"`
}

type SentimentResult struct {
	Sentiment   models.Sentiment `json:"sentiment"`
	Confidence  float64          `json:"confidence"`
	Explanation string           `json:"explanation"`
}

type ToxicityResult struct {
	Score       float64 `json:"toxicityScore"`
	Risk        string  `json:"risk"`
	Explanation string  `json:"explanation"`
}

type SpreadResult struct {
	Velocity       float64 `json:"spreadVelocity"`
	ViralPotential string  `json:"viralPotential"`
	Explanation    string  `json:"explanation"`
}

type ManipulationResult struct {
	Score       float64 `json:"manipulationScore"`
	Type        string  `json:"manipulationType"`
	Explanation string  `json:"explanation"`
}

type EvidenceResult struct {
	Sources []models.EvidenceSource
}

type TrendResult struct {
	Points []models.MentionPoint
}

func (c *Client) GenerateVerdict(ctx context.Context, claim string, evidence []models.EvidenceSource) (*VerdictResult, error) {
	lines := make([]string, 0, len(evidence))
	for _, s := range evidence {
		detail := s.Snippet
		if detail == "" {
			detail = s.URL
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", s.Title, s.Reliability, detail))
	}
	sourcesText := strings.Join(lines, "\n")
	if sourcesText == "" {
		sourcesText = "(none retrieved)"
	}

	userPrompt := fmt.Sprintf(`You are a fact-checking assistant. Analyze the following claim against the provided evidence sources and provide a structured verdict.

Claim: %q

Evidence Sources:
%s

Provide a JSON response with:
{
  "verdict": "true" | "false" | "mixed" | "unverified" | "misleading" | "out-of-context" | "satire",
  "confidence": 0.0-1.0,
  "rationale": "Brief explanation (2-3 sentences)",
  "keyFindings": ["bullet point 1", "bullet point 2"]
}`, claim, sourcesText)

	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:        "verdict",
		Model:       c.cfg.Model,
		UserPrompt:  userPrompt,
		Temperature: 0.5,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate verdict: %w", err)
	}

	result, err := parseVerdict(resp.Content)
	if err != nil {
		return nil, err
	}

	logger.Info("Verdict generated", zap.String("verdict", string(result.Verdict)), zap.Float64("confidence", result.Confidence))
	return result, nil
}

func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (*SentimentResult, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:         "sentiment",
		Model:        c.cfg.FastModel,
		SystemPrompt: "Analyze the sentiment of the given claim. Return a JSON with sentiment (one of: fear, anger, neutral, hope, sadness, confusion, surprise, disgust, trust), confidence (0-1), and brief explanation. You MUST respond with valid JSON.",
		UserPrompt:   fmt.Sprintf("Analyze sentiment: %q", text),
		Temperature:  0.3,
		MaxTokens:    100,
		Timeout:      featureTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze sentiment: %w", err)
	}
	return parseSentiment(resp.Content)
}

func (c *Client) AnalyzeToxicity(ctx context.Context, text string) (*ToxicityResult, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:         "toxicity",
		Model:        c.cfg.FastModel,
		SystemPrompt: "Analyze the toxicity level of the given text. Return a JSON with toxicityScore (0-1), risk (low/medium/high), and brief explanation. Consider harmful language, hate speech, violence, and offensive content.",
		UserPrompt:   fmt.Sprintf("Analyze toxicity: %q", text),
		Temperature:  0.2,
		MaxTokens:    100,
		Timeout:      featureTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze toxicity: %w", err)
	}
	return parseToxicity(resp.Content)
}

func (c *Client) AnalyzeSpread(ctx context.Context, text string) (*SpreadResult, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:         "spread",
		Model:        c.cfg.FastModel,
		SystemPrompt: "Analyze the viral spread potential of the given claim. Return a JSON with spreadVelocity (0-1), viralPotential (low/medium/high), and explanation. Consider sensational language, urgency, emotional triggers, and shareability.",
		UserPrompt:   fmt.Sprintf("Analyze spread velocity: %q", text),
		Temperature:  0.3,
		MaxTokens:    100,
		Timeout:      featureTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze spread velocity: %w", err)
	}
	return parseSpread(resp.Content)
}

func (c *Client) AnalyzeManipulation(ctx context.Context, text string) (*ManipulationResult, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:         "manipulation",
		Model:        c.cfg.FastModel,
		SystemPrompt: "Analyze the manipulation and propaganda tactics in the given claim. Return a JSON with manipulationScore (0-1), manipulationType (none/fear-mongering/conspiracy/misleading/other), and explanation. Identify propaganda patterns and misleading framing.",
		UserPrompt:   fmt.Sprintf("Analyze manipulation tactics: %q", text),
		Temperature:  0.3,
		MaxTokens:    100,
		Timeout:      featureTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze manipulation: %w", err)
	}
	return parseManipulation(resp.Content)
}

func (c *Client) GenerateEvidenceSources(ctx context.Context, claim string, verdict models.Verdict) (*EvidenceResult, error) {
	systemPrompt := `You are a fact-checking research assistant. Generate 3-4 realistic evidence sources that support a fact-check verdict.

Return a JSON array with this exact format:
[
  {
    "type": "fact-check" | "news" | "research" | "academic",
    "title": "Source title",
    "url": "https://example.com/path",
    "reliability": "high" | "medium" | "low",
    "snippet": "2-3 sentence excerpt that relates to the claim"
  }
]`

	userPrompt := fmt.Sprintf(`Generate evidence sources for this claim and verdict:

Claim: %q
Verdict: %s

Generate sources that SUPPORT this verdict. If verdict is "false", generate sources that debunk the claim. If verdict is "true", generate sources that confirm it.`, claim, verdict)

	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:         "evidence",
		Model:        c.cfg.FastModel,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.7,
		MaxTokens:    800,
		Timeout:      evidenceTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate evidence sources: %w", err)
	}
	return parseEvidence(resp.Content)
}

func (c *Client) GenerateMentionTrends(ctx context.Context, claim string, verdict models.Verdict) (*TrendResult, error) {
	systemPrompt := `You are analyzing misinformation spread patterns. Generate realistic mention count trends for a claim over the past 72 hours.

Return a JSON array with 12 data points at 6 hour intervals.
Format: [
  {
    "timestamp": "ISO 8601 timestamp",
    "mentions": number,
    "sources": number,
    "engagement": number between 0 and 1,
    "trend": "rising" | "stable" | "falling"
  }
]

For FALSE claims show a spike when first posted, then decline as fact-checkers respond. For TRUE claims show steady mentions or a gradual rise. For MIXED claims show a volatile pattern. For UNVERIFIED claims show an early spike, then a plateau.`

	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:         "trends",
		Model:        c.cfg.FastModel,
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Generate mention trends for this claim:\n\nClaim: %q\nVerdict: %s", claim, verdict),
		Temperature:  0.6,
		MaxTokens:    1000,
		Timeout:      evidenceTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate mention trends: %w", err)
	}
	return parseTrends(resp.Content)
}

func parseVerdict(content string) (*VerdictResult, error) {
	var wire struct {
		Verdict     *string  `json:"verdict"`
		Confidence  *float64 `json:"confidence"`
		Rationale   string   `json:"rationale"`
		KeyFindings []string `json:"keyFindings"`
	}
	if err := decodeObject(content, &wire); err != nil {
		return nil, err
	}
	if wire.Verdict == nil || wire.Confidence == nil {
		return nil, fmt.Errorf("verdict reply missing verdict or confidence: %w", ErrInvalidResponse)
	}

	verdict, err := models.ParseVerdict(strings.ToLower(strings.TrimSpace(*wire.Verdict)))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidResponse)
	}
	if err := checkUnit("confidence", *wire.Confidence); err != nil {
		return nil, err
	}
	if strings.TrimSpace(wire.Rationale) == "" {
		return nil, fmt.Errorf("verdict reply has empty rationale: %w", ErrInvalidResponse)
	}

	findings := make([]string, 0, len(wire.KeyFindings))
	for _, f := range wire.KeyFindings {
		if f = strings.TrimSpace(f); f != "" {
			findings = append(findings, f)
		}
	}

	return &VerdictResult{
		Verdict:     verdict,
		Confidence:  *wire.Confidence,
		Rationale:   strings.TrimSpace(wire.Rationale),
		KeyFindings: findings,
	}, nil
}

func parseSentiment(content string) (*SentimentResult, error) {
	var wire struct {
		Sentiment   *string  `json:"sentiment"`
		Confidence  *float64 `json:"confidence"`
		Explanation string   `json:"explanation"`
	}
	if err := decodeObject(content, &wire); err != nil {
		return nil, err
	}
	if wire.Sentiment == nil {
		return nil, fmt.Errorf("sentiment reply missing sentiment: %w", ErrInvalidResponse)
	}

	sentiment, err := models.ParseSentiment(strings.ToLower(strings.TrimSpace(*wire.Sentiment)))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidResponse)
	}

	confidence := 0.5
	if wire.Confidence != nil {
		if err := checkUnit("confidence", *wire.Confidence); err != nil {
			return nil, err
		}
		confidence = *wire.Confidence
	}

	return &SentimentResult{Sentiment: sentiment, Confidence: confidence, Explanation: wire.Explanation}, nil
}

func parseToxicity(content string) (*ToxicityResult, error) {
	var wire struct {
		Score       *float64 `json:"toxicityScore"`
		Risk        string   `json:"risk"`
		Explanation string   `json:"explanation"`
	}
	if err := decodeObject(content, &wire); err != nil {
		return nil, err
	}
	if wire.Score == nil {
		return nil, fmt.Errorf("toxicity reply missing toxicityScore: %w", ErrInvalidResponse)
	}
	if err := checkUnit("toxicityScore", *wire.Score); err != nil {
		return nil, err
	}
	return &ToxicityResult{Score: *wire.Score, Risk: wire.Risk, Explanation: wire.Explanation}, nil
}

func parseSpread(content string) (*SpreadResult, error) {
	var wire struct {
		Velocity       *float64 `json:"spreadVelocity"`
		ViralPotential string   `json:"viralPotential"`
		Explanation    string   `json:"explanation"`
	}
	if err := decodeObject(content, &wire); err != nil {
		return nil, err
	}
	if wire.Velocity == nil {
		return nil, fmt.Errorf("spread reply missing spreadVelocity: %w", ErrInvalidResponse)
	}
	if err := checkUnit("spreadVelocity", *wire.Velocity); err != nil {
		return nil, err
	}
	return &SpreadResult{Velocity: *wire.Velocity, ViralPotential: wire.ViralPotential, Explanation: wire.Explanation}, nil
}

func parseManipulation(content string) (*ManipulationResult, error) {
	var wire struct {
		Score       *float64 `json:"manipulationScore"`
		Type        string   `json:"manipulationType"`
		Explanation string   `json:"explanation"`
	}
	if err := decodeObject(content, &wire); err != nil {
		return nil, err
	}
	if wire.Score == nil {
		return nil, fmt.Errorf("manipulation reply missing manipulationScore: %w", ErrInvalidResponse)
	}
	if err := checkUnit("manipulationScore", *wire.Score); err != nil {
		return nil, err
	}
	return &ManipulationResult{Score: *wire.Score, Type: wire.Type, Explanation: wire.Explanation}, nil
}

func parseEvidence(content string) (*EvidenceResult, error) {
	var wire []models.EvidenceSource
	if err := decodeArray(content, &wire); err != nil {
		return nil, err
	}

	sources := make([]models.EvidenceSource, 0, len(wire))
	for _, s := range wire {
		if strings.TrimSpace(s.Title) == "" || strings.TrimSpace(s.URL) == "" {
			continue
		}
		if s.Type == "" {
			s.Type = "news"
		}
		s.Reliability = normalizeReliability(s.Reliability)
		sources = append(sources, s)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("evidence reply has no usable sources: %w", ErrInvalidResponse)
	}
	return &EvidenceResult{Sources: sources}, nil
}

func parseTrends(content string) (*TrendResult, error) {
	var wire []struct {
		Timestamp  string  `json:"timestamp"`
		Mentions   int     `json:"mentions"`
		Sources    int     `json:"sources"`
		Engagement float64 `json:"engagement"`
		Trend      string  `json:"trend"`
	}
	if err := decodeArray(content, &wire); err != nil {
		return nil, err
	}

	points := make([]models.MentionPoint, 0, len(wire))
	for _, p := range wire {
		t, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil || p.Mentions < 0 || p.Sources < 0 {
			continue
		}
		points = append(points, models.MentionPoint{
			T:          t.UTC(),
			Count:      p.Mentions,
			Sources:    p.Sources,
			Engagement: clamp01(p.Engagement),
			Trend:      p.Trend,
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("trend reply has no usable points: %w", ErrInvalidResponse)
	}
	return &TrendResult{Points: points}, nil
}

// decodeObject unmarshals the outermost {...} span of content, tolerating
// prose or code fences around it.
func decodeObject(content string, v any) error {
	return decodeSpan(content, '{', '}', v)
}

func decodeArray(content string, v any) error {
	return decodeSpan(content, '[', ']', v)
}

func decodeSpan(content string, open, close byte, v any) error {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON found in reply: %w", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), v); err != nil {
		return fmt.Errorf("malformed JSON in reply: %v: %w", err, ErrInvalidResponse)
	}
	return nil
}

func checkUnit(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s %v outside [0,1]: %w", field, v, ErrInvalidResponse)
	}
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func normalizeReliability(r models.Reliability) models.Reliability {
	switch models.Reliability(strings.ToLower(string(r))) {
	case models.ReliabilityHigh:
		return models.ReliabilityHigh
	case models.ReliabilityLow:
		return models.ReliabilityLow
	default:
		return models.ReliabilityMedium
	}
}
