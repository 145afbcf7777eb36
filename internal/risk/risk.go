package risk

import "github.com/infosage/backend/internal/storage/models"

const (
	weightConfidence = 0.30
	weightToxicity   = 0.20
	weightSpread     = 0.25
	weightNovelty    = 0.25

	// Novelty has no signal of its own yet and is held constant.
	Novelty = 0.5

	lowMax    = 0.33
	mediumMax = 0.66
)

func Score(confidence, toxicity, spreadVelocity, novelty float64) float64 {
	risk := weightConfidence*(1-confidence) +
		weightToxicity*toxicity +
		weightSpread*spreadVelocity +
		weightNovelty*novelty
	return clamp01(risk)
}

// Tier buckets a score. Boundary values belong to the lower tier.
func Tier(score float64) models.RiskTier {
	switch {
	case score <= lowMax:
		return models.RiskLow
	case score <= mediumMax:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

var percentages = map[models.Verdict]int{
	models.VerdictTrue:         90,
	models.VerdictFalse:        10,
	models.VerdictMixed:        50,
	models.VerdictMisleading:   25,
	models.VerdictOutOfContext: 30,
	models.VerdictSatire:       40,
	models.VerdictUnverified:   50,
}

// VerdictPercentage is the display value of a verdict class. It does not
// depend on confidence.
func VerdictPercentage(v models.Verdict) int {
	if p, ok := percentages[v]; ok {
		return p
	}
	return 50
}

func SourceReliability(sources []models.EvidenceSource) float64 {
	for _, s := range sources {
		if s.Reliability == models.ReliabilityHigh {
			return 0.85
		}
	}
	return 0.6
}

func Trend(score float64) []float64 {
	return []float64{0.2, 0.35, score}
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
