package verdict

import (
	"strings"
	"unicode/utf8"

	"github.com/infosage/backend/internal/storage/models"
)

const (
	maxCorpusMatches = 3
	minTokenLen      = 3
)

// corpus is the small fixed set of reference articles offered to the LLM
// stage as candidate evidence.
var corpus = []models.EvidenceSource{
	{
		Type:        "fact-check",
		Title:       "Verified: Common vaccine claims",
		URL:         "https://example-factcheck.org/vaccines",
		Reliability: models.ReliabilityHigh,
		Snippet:     "Vaccines have been extensively studied and shown to be safe and effective.",
	},
	{
		Type:        "fact-check",
		Title:       "Debunking election fraud myths",
		URL:         "https://example-factcheck.org/elections",
		Reliability: models.ReliabilityHigh,
		Snippet:     "Election fraud is rare and investigated by election officials.",
	},
	{
		Type:        "news",
		Title:       "Health official responds to misinformation",
		URL:         "https://example-news.org/health",
		Reliability: models.ReliabilityMedium,
		Snippet:     "Health authorities address misconceptions about disease transmission.",
	},
	{
		Type:        "research",
		Title:       "Scientific study on claim verification",
		URL:         "https://example-research.org/study",
		Reliability: models.ReliabilityHigh,
		Snippet:     "Peer-reviewed research confirms safety protocols.",
	},
}

var defaultSources = map[models.Verdict][]models.EvidenceSource{
	models.VerdictTrue: {
		{Type: "research", Title: "Scientific consensus confirms this claim", URL: "https://example-research.org/findings", Reliability: models.ReliabilityHigh, Snippet: "Multiple peer-reviewed studies support this statement. Evidence is consistent across independent researchers."},
		{Type: "fact-check", Title: "Verified by independent fact-checkers", URL: "https://example-factcheck.org/verified", Reliability: models.ReliabilityHigh, Snippet: "This claim has been verified by multiple independent fact-checking organizations."},
		{Type: "news", Title: "Credible news sources report", URL: "https://example-news.org/story", Reliability: models.ReliabilityMedium, Snippet: "Established news organizations have reported and confirmed the facts in this claim."},
	},
	models.VerdictFalse: {
		{Type: "fact-check", Title: "Debunked by fact-checkers", URL: "https://example-factcheck.org/debunked", Reliability: models.ReliabilityHigh, Snippet: "Multiple fact-checking organizations have determined this claim to be false with evidence."},
		{Type: "research", Title: "Scientific evidence contradicts this", URL: "https://example-research.org/contradicts", Reliability: models.ReliabilityHigh, Snippet: "Peer-reviewed scientific research shows this claim is not supported by evidence."},
		{Type: "academic", Title: "Academic sources dispute this claim", URL: "https://example-academic.org/paper", Reliability: models.ReliabilityHigh, Snippet: "Academic institutions and researchers have published findings that contradict this statement."},
	},
	models.VerdictMixed: {
		{Type: "research", Title: "Partially supported by research", URL: "https://example-research.org/mixed", Reliability: models.ReliabilityHigh, Snippet: "Some aspects of this claim are supported by evidence while others are disputed."},
		{Type: "fact-check", Title: "Mixed verdict from fact-checkers", URL: "https://example-factcheck.org/mixed", Reliability: models.ReliabilityHigh, Snippet: "Fact-checkers have found parts of this claim to be true and parts to be false."},
		{Type: "news", Title: "News coverage shows complexity", URL: "https://example-news.org/complex", Reliability: models.ReliabilityMedium, Snippet: "News reports indicate this topic is more nuanced than the original claim suggests."},
	},
	models.VerdictUnverified: {
		{Type: "research", Title: "Insufficient evidence to verify", URL: "https://example-research.org/unverified", Reliability: models.ReliabilityMedium, Snippet: "Research on this topic is limited and does not provide conclusive evidence either way."},
		{Type: "academic", Title: "Further research needed", URL: "https://example-academic.org/investigation", Reliability: models.ReliabilityMedium, Snippet: "Academics note that this claim requires further investigation and more data to verify."},
		{Type: "fact-check", Title: "Remains unverified by fact-checkers", URL: "https://example-factcheck.org/unverified", Reliability: models.ReliabilityMedium, Snippet: "Fact-checking organizations have determined there is insufficient evidence to verify or debunk this claim."},
	},
}

// RelevantSources returns up to three corpus entries sharing a word with
// text. Words shorter than three characters are ignored.
func RelevantSources(text string) []models.EvidenceSource {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(tok) >= minTokenLen {
			tokens = append(tokens, tok)
		}
	}

	out := make([]models.EvidenceSource, 0, maxCorpusMatches)
	for _, src := range corpus {
		haystack := strings.ToLower(src.Title + " " + src.Snippet)
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				out = append(out, src)
				break
			}
		}
		if len(out) == maxCorpusMatches {
			break
		}
	}
	return out
}

// DefaultSources returns the built-in sources for a verdict class. Classes
// without their own set share the unverified one.
func DefaultSources(v models.Verdict) []models.EvidenceSource {
	set, ok := defaultSources[v]
	if !ok {
		set = defaultSources[models.VerdictUnverified]
	}
	out := make([]models.EvidenceSource, len(set))
	copy(out, set)
	return out
}
