package analysis

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/infosage/backend/internal/storage/models"
)

const (
	trendPoints   = 12
	trendInterval = 6 * time.Hour
)

// BuildRationale appends the research context to the verdict rationale:
// people identified, image origin and warnings, each only when present.
func BuildRationale(base string, research *models.ResearchResult) string {
	if research == nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base)

	if len(research.PeopleInfo) > 0 {
		b.WriteString("\n\n**People Identified:**\n")
		for _, p := range research.PeopleInfo {
			detail := strings.Join(p.VerifiedFacts, ". ")
			if detail == "" {
				detail = p.RelevantNews
			}
			fmt.Fprintf(&b, "• %s (%s): %s\n", p.Name, p.Title, detail)
		}
	}

	if origin := research.ImageOrigin; origin != nil && origin.Found {
		source := origin.OriginalSource
		if source == "" {
			source = "Unknown"
		}
		b.WriteString("\n\n**Image Analysis:**\n")
		fmt.Fprintf(&b, "Original source: %s\n", source)
		if origin.IsManipulated {
			fmt.Fprintf(&b, "Manipulation detected: %s\n", origin.ManipulationDetails)
		}
		if len(origin.PreviousUsage) > 0 {
			fmt.Fprintf(&b, "Previous usage: %s\n", strings.Join(origin.PreviousUsage, ", "))
		}
	}

	if len(research.Warnings) > 0 {
		b.WriteString("\n\n**Warnings:**\n")
		for _, w := range research.Warnings {
			fmt.Fprintf(&b, "• %s\n", w)
		}
	}

	return b.String()
}

// DefaultMentionTrend returns a synthetic 72 hour series ending at now: 12
// points at 6 hour intervals, with an early spike that settles.
func DefaultMentionTrend(now time.Time) []models.MentionPoint {
	points := make([]models.MentionPoint, 0, trendPoints)
	for i := trendPoints - 1; i >= 0; i-- {
		base := rand.Intn(100) + 30
		factor := 1.0
		if i < 4 {
			factor = float64(4-i) * 0.3
		}
		count := int(float64(base)*factor + rand.Float64()*50)
		if count < 10 {
			count = 10
		}

		trend := "stable"
		if i < 8 && rand.Intn(2) == 0 {
			trend = "rising"
		}

		points = append(points, models.MentionPoint{
			T:          now.Add(-time.Duration(i) * trendInterval),
			Count:      count,
			Sources:    rand.Intn(20) + 5,
			Engagement: rand.Float64()*0.5 + 0.3,
			Trend:      trend,
		})
	}
	return points
}
