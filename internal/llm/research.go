package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

const researchSystemPrompt = `You are a fact-checking research assistant with access to comprehensive knowledge. When given a claim or image description, provide thorough research as if you searched the internet.

Your task:
1. IDENTIFY the subject (people, events, organizations mentioned)
2. PROVIDE verified facts about these subjects from reliable sources
3. CHECK if this claim/image matches known events or is potentially fake/manipulated
4. FIND any previous fact-checks of similar claims
5. LOOK for the original source of the image/claim if possible

Respond in JSON format:
{
  "searchResults": [{"title": "", "url": "", "type": "news|fact-check|official|academic|social", "reliability": "high|medium|low", "snippet": "", "date": "", "verdict": ""}],
  "peopleInfo": [{"name": "", "title": "", "verifiedFacts": [""], "relevantNews": ""}],
  "imageOrigin": {"found": false, "originalSource": "", "dateFirstSeen": "", "previousUsage": [""], "isManipulated": false, "manipulationDetails": ""},
  "factCheckResults": [{"organization": "", "verdict": "", "url": "", "summary": ""}],
  "claimAnalysis": {"verdict": "true|false|misleading|unverified|satire|out-of-context|mixed", "confidence": 0.0, "reasoning": "", "keyEvidence": [""]},
  "warnings": [""]
}`

// Research asks the research model for structured context about a claim,
// folding in whatever the vision service extracted from attached media.
func (c *Client) Research(ctx context.Context, text string, media *models.MediaAnalysis) (*models.ResearchResult, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:         "research",
		Model:        c.cfg.ResearchModel,
		SystemPrompt: researchSystemPrompt,
		UserPrompt:   researchPrompt(text, media),
		Temperature:  0.2,
		MaxTokens:    2000,
		Timeout:      time.Duration(c.cfg.ResearchTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to research claim: %w", err)
	}

	result, err := parseResearch(resp.Content)
	if err != nil {
		return nil, err
	}

	verdict := ""
	if result.ClaimAnalysis != nil {
		verdict = string(result.ClaimAnalysis.Verdict)
	}
	logger.Info("Research complete",
		zap.Int("results", len(result.SearchResults)),
		zap.Int("people", len(result.PeopleInfo)),
		zap.String("verdict", verdict),
	)
	return result, nil
}

func researchPrompt(text string, media *models.MediaAnalysis) string {
	subject := text
	var people []string

	if media != nil {
		for _, p := range media.People {
			if p.Name != "" && !strings.EqualFold(p.Name, "unknown person") {
				people = append(people, p.Name)
			}
		}
		if len(people) > 0 {
			subject = strings.Join(people, ", ") + ": " + text
		}
	}

	var b strings.Builder
	b.WriteString("Research this claim/image thoroughly as if searching the internet:\n\n")
	fmt.Fprintf(&b, "CLAIM/DESCRIPTION: %s\n", subject)
	if len(people) > 0 {
		fmt.Fprintf(&b, "IDENTIFIED PEOPLE: %s\n", strings.Join(people, ", "))
	}
	if media != nil {
		if media.Summary != "" {
			fmt.Fprintf(&b, "IMAGE SHOWS: %s\n", media.Summary)
		}
		if media.OCRText != "" {
			fmt.Fprintf(&b, "TEXT IN IMAGE: %s\n", media.OCRText)
		}
		if media.Scene != "" {
			fmt.Fprintf(&b, "SCENE: %s\n", media.Scene)
		}
		if media.Forensics != nil && media.Forensics.Manipulated {
			fmt.Fprintf(&b, "FORENSIC FLAGS: %s\n", strings.Join(media.Forensics.Flags, ", "))
		}
	}
	b.WriteString(`
Search for:
1. Who are these people and their real positions/titles?
2. Is this image/claim from a real event?
3. Has this been fact-checked before?
4. Is this image the original or has it been manipulated/taken out of context?
5. What do reliable sources say about this?`)
	return b.String()
}

// parseResearch validates a research reply. An invalid claimAnalysis is
// dropped rather than failing the whole result so the rest of the context
// can still be used.
func parseResearch(content string) (*models.ResearchResult, error) {
	var result models.ResearchResult
	if err := decodeObject(content, &result); err != nil {
		return nil, err
	}

	if a := result.ClaimAnalysis; a != nil {
		verdict, err := models.ParseVerdict(strings.ToLower(strings.TrimSpace(string(a.Verdict))))
		if err != nil || checkUnit("confidence", a.Confidence) != nil || strings.TrimSpace(a.Reasoning) == "" {
			logger.Warn("Discarding invalid research claim analysis",
				zap.String("verdict", string(a.Verdict)),
				zap.Float64("confidence", a.Confidence),
			)
			result.ClaimAnalysis = nil
		} else {
			a.Verdict = verdict
		}
	}

	searchResults := result.SearchResults[:0]
	for _, r := range result.SearchResults {
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		r.Reliability = normalizeReliability(r.Reliability)
		searchResults = append(searchResults, r)
	}
	result.SearchResults = searchResults

	return &result, nil
}
