package review

import "github.com/infosage/backend/internal/storage/models"

const (
	riskThreshold       = 0.75
	confidenceThreshold = 0.6
	spreadThreshold     = 0.5
)

// ShouldEscalate reports whether an analysis needs a human reviewer: very
// high risk, or low confidence on a fast-spreading claim.
func ShouldEscalate(a *models.Analysis) bool {
	if a == nil {
		return false
	}
	return a.RiskScore > riskThreshold ||
		(a.Confidence < confidenceThreshold && a.Features.SpreadVelocity > spreadThreshold)
}
