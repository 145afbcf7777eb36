package verdict

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/utils"
)

// manipulationMaxLen is the length below which manipulation language alone
// is enough to call a claim false.
const manipulationMaxLen = 150

type keywordRule struct {
	keywords   []string
	confidence float64
	rationale  string
}

type patternRule struct {
	pattern    *regexp.Regexp
	confidence float64
}

var knownFalse = []keywordRule{
	{[]string{"earth", "flat"}, 0.95, "The Earth is an oblate spheroid, confirmed by centuries of scientific evidence and satellite imagery."},
	{[]string{"vaccine", "autism"}, 0.95, "The original study claiming this link was fraudulent and retracted. Millions of vaccinations show no connection to autism."},
	{[]string{"moon", "fake", "landing"}, 0.9, "Moon landings are well-documented historical events confirmed by multiple independent sources and lunar exploration."},
	{[]string{"5g", "covid"}, 0.95, "COVID-19 is caused by a virus (SARS-CoV-2), not by 5G networks. 5G cannot transmit viruses."},
	{[]string{"lizard", "government"}, 0.85, "There is no scientific evidence for reptilians or shapeshifters in government."},
	{[]string{"chemtrails"}, 0.8, "Contrails are normal water vapor condensation from aircraft engines, not chemical spraying."},
}

var falsePatterns = []patternRule{
	{regexp.MustCompile(`\d+\s+(day|hour|minute)s?\s+in\s+a\s+(week|month|year|day)`), 0.9},
	{regexp.MustCompile(`earth\s+is\s+flat`), 0.95},
	{regexp.MustCompile(`vaccine[s]?\s+(cause|kill)`), 0.9},
	{regexp.MustCompile(`earth\s+.{0,20}?(bigger|larger|greater)\s+.{0,20}?sun`), 0.95},
	{regexp.MustCompile(`sun\s+.{0,20}?(smaller|less)\s+.{0,20}?earth`), 0.95},
}

var manipulationLanguage = []*regexp.Regexp{
	regexp.MustCompile(`they don't want you to know`),
	regexp.MustCompile(`do your own research`),
	regexp.MustCompile(`wake up people?`),
	regexp.MustCompile(`the truth is hidden`),
	regexp.MustCompile(`the government is hiding`),
}

var truePatterns = []patternRule{
	{regexp.MustCompile(`water\s+is\s+h2o`), 0.95},
	{regexp.MustCompile(`earth\s+orbits?\s+sun`), 0.95},
	{regexp.MustCompile(`gravity\s+.{0,20}?exists?`), 0.9},
}

// Rules is the rule-based verdict stage. It needs no external service and
// always produces a verdict.
type Rules struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	// owners maps a keyword index to the knownFalse rules that use it.
	owners map[int][]int
}

func NewRules() *Rules {
	r := &Rules{owners: make(map[int][]int)}
	seen := make(map[string]int)
	for ri, rule := range knownFalse {
		for _, kw := range rule.keywords {
			idx, ok := seen[kw]
			if !ok {
				idx = len(r.keywords)
				seen[kw] = idx
				r.keywords = append(r.keywords, kw)
			}
			r.owners[idx] = append(r.owners[idx], ri)
		}
	}
	r.matcher = ahocorasick.NewStringMatcher(r.keywords)
	return r
}

// Evaluate checks, in order, known-false keyword sets, false patterns,
// manipulation language on short texts and known-true patterns.
func (r *Rules) Evaluate(text string) Result {
	lower := strings.ToLower(text)

	if rule, ok := r.matchKnownFalse(lower); ok {
		return Result{
			Verdict:     models.VerdictFalse,
			Confidence:  rule.confidence,
			Rationale:   rule.rationale,
			KeyFindings: []string{"Matches known debunked claim", "Scientific consensus contradicts this"},
			Stage:       StageRules,
		}
	}

	for _, p := range falsePatterns {
		if p.pattern.MatchString(lower) {
			return Result{
				Verdict:     models.VerdictFalse,
				Confidence:  p.confidence,
				Rationale:   "This statement contradicts established scientific facts and evidence.",
				KeyFindings: []string{"Factually incorrect statement", "Contradicted by reliable sources"},
				Stage:       StageRules,
			}
		}
	}

	if utf8.RuneCountInString(lower) < manipulationMaxLen && usesManipulationLanguage(lower) {
		return Result{
			Verdict:     models.VerdictFalse,
			Confidence:  0.6,
			Rationale:   "This claim uses common conspiracy theory language without credible evidence.",
			KeyFindings: []string{"Employs manipulation tactics", "Lacks supporting evidence"},
			Stage:       StageRules,
		}
	}

	for _, p := range truePatterns {
		if p.pattern.MatchString(lower) {
			return Result{
				Verdict:     models.VerdictTrue,
				Confidence:  p.confidence,
				Rationale:   "This statement is supported by established scientific evidence.",
				KeyFindings: []string{"Consistent with scientific consensus", "Backed by credible sources"},
				Stage:       StageRules,
			}
		}
	}

	return Result{
		Verdict:     models.VerdictUnverified,
		Confidence:  0.5,
		Rationale:   fmt.Sprintf(`Analysis of "%s..." requires additional sources and expert review.`, utils.Truncate(text, 50, "")),
		KeyFindings: []string{"Unable to verify with available sources", "Recommend manual review"},
		Stage:       StageRules,
	}
}

// matchKnownFalse returns the first rule, in declaration order, whose
// keywords all occur in text.
func (r *Rules) matchKnownFalse(text string) (keywordRule, bool) {
	hits := r.matcher.Match([]byte(text))
	if len(hits) == 0 {
		return keywordRule{}, false
	}

	found := make(map[int]struct{}, len(hits))
	for _, idx := range hits {
		found[idx] = struct{}{}
	}

	matched := make([]int, len(knownFalse))
	for idx := range found {
		for _, ri := range r.owners[idx] {
			matched[ri]++
		}
	}

	for ri, rule := range knownFalse {
		if matched[ri] == len(rule.keywords) {
			return rule, true
		}
	}
	return keywordRule{}, false
}

func usesManipulationLanguage(text string) bool {
	for _, p := range manipulationLanguage {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
