package features

import (
	"math"
	"regexp"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/infosage/backend/internal/storage/models"
)

const (
	toxicityStep = 0.1
	toxicityCap  = 0.8

	spreadViral    = 0.7
	spreadBaseline = 0.3

	manipulationStep = 0.2
)

// vocabulary matches a fixed word list in one pass over the text.
type vocabulary struct {
	matcher *ahocorasick.Matcher
	words   []string
}

func newVocabulary(words ...string) vocabulary {
	return vocabulary{matcher: ahocorasick.NewStringMatcher(words), words: words}
}

// count returns how many distinct words of the vocabulary occur in text.
func (v vocabulary) count(text string) int {
	seen := make(map[int]struct{})
	for _, idx := range v.matcher.Match([]byte(text)) {
		seen[idx] = struct{}{}
	}
	return len(seen)
}

type sentimentBucket struct {
	sentiment models.Sentiment
	vocab     vocabulary
}

var sentimentBuckets = []sentimentBucket{
	{models.SentimentFear, newVocabulary("afraid", "terrified", "danger", "threat", "risk")},
	{models.SentimentAnger, newVocabulary("angry", "furious", "outraged", "disgusted")},
	{models.SentimentHope, newVocabulary("hopeful", "wonderful", "great", "amazing")},
}

var viralPhrases = newVocabulary("must share", "everyone should know", "breaking", "exclusive", "shocking")

var toxicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(kill|murder|destroy|hate|death)\b`),
	regexp.MustCompile(`\b(stupid|idiot|moron|crazy)\b`),
}

var exclamationRun = regexp.MustCompile(`!{2,}`)

var manipulationPhrases = []*regexp.Regexp{
	regexp.MustCompile(`they don't want you to know`),
	regexp.MustCompile(`do your own research`),
	regexp.MustCompile(`the truth is`),
	regexp.MustCompile(`wake up people`),
}

// Sentiment returns the bucket with the most vocabulary hits. Ties go to
// the earlier bucket; no hits is neutral.
func Sentiment(text string) models.Sentiment {
	lower := strings.ToLower(text)
	best, bestCount := models.SentimentNeutral, 0
	for _, b := range sentimentBuckets {
		if n := b.vocab.count(lower); n > bestCount {
			best, bestCount = b.sentiment, n
		}
	}
	return best
}

// Toxicity adds 0.1 per violent or insulting word and 0.1 for any run of
// exclamation marks, capped at 0.8.
func Toxicity(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, p := range toxicPatterns {
		hits += len(p.FindAllStringIndex(lower, -1))
	}
	if exclamationRun.MatchString(lower) {
		hits++
	}
	return math.Min(toxicityCap, float64(hits)*toxicityStep)
}

func SpreadVelocity(text string) float64 {
	if viralPhrases.count(strings.ToLower(text)) > 0 {
		return spreadViral
	}
	return spreadBaseline
}

// ManipulationLikelihood adds 0.2 per conspiracy framing phrase present.
func ManipulationLikelihood(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, p := range manipulationPhrases {
		if p.MatchString(lower) {
			score += manipulationStep
		}
	}
	return math.Min(1, score)
}
