package ingestion

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html/atom"

	"github.com/infosage/backend/pkg/logger"
)

// MaxTags caps the entity tags attached to a claim's cluster.
const MaxTags = 10

var (
	whitespace = regexp.MustCompile(`\s+`)
	tagLike    = regexp.MustCompile(`(?s)<!--.*?-->|<!(?i:doctype)[^>]*>|</?([a-zA-Z][a-zA-Z0-9]*)(?:\s+[a-zA-Z_:][-a-zA-Z0-9_:.]*(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'=<>]+))?)*\s*/?>`)
)

// Canonicalize returns the normalized form of a claim: markup stripped and
// whitespace collapsed. Case is preserved so entity detection still works.
// Angle brackets that do not form a known HTML tag are kept as text.
func Canonicalize(text string) string {
	if spans := markupSpans(text); len(spans) > 0 {
		text = cleanHTML(escapeText(text, spans))
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// markupSpans returns the byte ranges of comments and of tags whose name is
// a known HTML element or attribute atom.
func markupSpans(text string) [][]int {
	var spans [][]int
	for _, m := range tagLike.FindAllStringSubmatchIndex(text, -1) {
		if m[2] >= 0 && atom.Lookup([]byte(strings.ToLower(text[m[2]:m[3]]))) == 0 {
			continue
		}
		spans = append(spans, m[:2])
	}
	return spans
}

func escapeText(text string, spans [][]int) string {
	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(strings.ReplaceAll(text[last:s[0]], "<", "&lt;"))
		b.WriteString(text[s[0]:s[1]])
		last = s[1]
	}
	b.WriteString(strings.ReplaceAll(text[last:], "<", "&lt;"))
	return b.String()
}

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	var parts []string
	doc.Find("body").Contents().Each(func(i int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.Join(parts, " ")
}

// EntityTags returns the named entities found in text, lowercased, unique and
// sorted. Extraction errors give no tags.
func EntityTags(text string) []string {
	tags := []string{}
	if strings.TrimSpace(text) == "" {
		return tags
	}

	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
	)
	if err != nil {
		logger.Debug("Entity extraction failed", zap.Error(err))
		return tags
	}

	seen := make(map[string]bool)
	for _, ent := range doc.Entities() {
		tag := strings.ToLower(strings.TrimSpace(ent.Text))
		if len(tag) < 2 || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	sort.Strings(tags)
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	return tags
}
