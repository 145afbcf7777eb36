package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/kg/neo4j"
	"github.com/infosage/backend/internal/storage/models"
)

type fakeGraph struct {
	recorded []*neo4j.ClaimRecord
	err      error
}

func (f *fakeGraph) RecordAnalysis(ctx context.Context, rec *neo4j.ClaimRecord) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, rec)
	return nil
}

func (f *fakeGraph) RelatedClaims(ctx context.Context, claimID string, limit int) ([]neo4j.RelatedClaim, error) {
	return []neo4j.RelatedClaim{{ClaimID: "c2", Via: []string{"Jane Doe"}}}, nil
}

func TestBuildRecord(t *testing.T) {
	claim := &models.Claim{
		ID:         "c1",
		Text:       "Jane Doe said it",
		SourceType: models.SourceTwitter,
		ClusterID:  "k1",
		MediaAnalysis: &models.MediaAnalysis{
			People: []models.MediaPerson{{Name: "jane doe"}, {Name: "  "}, {Name: "John Roe"}},
		},
	}
	a := &models.Analysis{
		Verdict:   models.VerdictFalse,
		RiskScore: 0.8,
		Sources: []models.EvidenceSource{
			{URL: "https://a.example", Title: "A", Reliability: models.ReliabilityHigh},
			{URL: "https://a.example", Title: "A again"},
			{Title: "No link"},
		},
	}
	research := &models.ResearchResult{PeopleInfo: []models.PersonInfo{{Name: "Jane Doe", Title: "Mayor"}}}

	rec := BuildRecord(claim, a, research)
	assert.Equal(t, "c1", rec.ClaimID)
	assert.Equal(t, "k1", rec.ClusterID)
	assert.Equal(t, "false", rec.Verdict)
	assert.Equal(t, []neo4j.Person{{Name: "Jane Doe", Title: "Mayor"}, {Name: "John Roe"}}, rec.People)
	assert.Equal(t, []neo4j.Source{{URL: "https://a.example", Title: "A", Reliability: "high"}}, rec.Sources)
}

func TestBuilder_DisabledIsNoop(t *testing.T) {
	b := NewBuilder(nil)
	assert.False(t, b.Enabled())
	require.NoError(t, b.Record(context.Background(), &models.Claim{ID: "c1"}, nil, nil))

	related, err := b.Related(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, related)
	assert.NotNil(t, related)
}

func TestBuilder_Record(t *testing.T) {
	g := &fakeGraph{}
	b := NewBuilder(g)

	require.NoError(t, b.Record(context.Background(), &models.Claim{ID: "c1"}, &models.Analysis{}, nil))
	require.Len(t, g.recorded, 1)

	related, err := b.Related(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, "c2", related[0].ClaimID)

	g.err = errors.New("graph down")
	assert.Error(t, b.Record(context.Background(), &models.Claim{ID: "c1"}, &models.Analysis{}, nil))
}
