// Package sqlitetest provides a throwaway store for package tests.
package sqlitetest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
)

// New opens a schema-initialized store in a temp dir, closed on cleanup.
func New(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func Claim(id, text string, embedding []float32) *models.Claim {
	now := time.Now().UTC()
	return &models.Claim{
		ID:            id,
		Text:          text,
		CanonicalText: text,
		SourceType:    models.SourceManual,
		Language:      "en",
		Status:        models.StatusNew,
		Mentions:      1,
		Embedding:     embedding,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func Analysis(id, claimID string, verdict models.Verdict) *models.Analysis {
	now := time.Now().UTC()
	return &models.Analysis{
		ID:                id,
		ClaimID:           claimID,
		Verdict:           verdict,
		VerdictPercentage: 50,
		Confidence:        0.9,
		RiskScore:         0.4,
		Rationale:         "rationale",
		KeyFindings:       []string{},
		Features:          models.Features{Sentiment: models.SentimentNeutral},
		Sources:           []models.EvidenceSource{},
		Charts:            models.Charts{RiskTrend: []float64{0.2, 0.35, 0.4}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
