package neo4j

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
)

func TestRecordParams(t *testing.T) {
	params := recordParams(&ClaimRecord{
		ClaimID:    "c1",
		Text:       "claim",
		SourceType: "twitter",
		ClusterID:  "k1",
		Verdict:    "false",
		RiskScore:  0.7,
		People:     []Person{{Name: "Jane Doe", Title: "Mayor"}, {Name: "John Roe"}},
		Sources:    []Source{{URL: "https://a.example", Title: "A", Reliability: "high"}},
	})

	assert.Equal(t, "c1", params["claim_id"])
	assert.Equal(t, "k1", params["cluster_id"])
	assert.Equal(t, 0.7, params["risk_score"])

	people := params["people"].([]map[string]any)
	assert.Equal(t, map[string]any{"name": "Jane Doe", "title": "Mayor"}, people[0])
	assert.Equal(t, map[string]any{"name": "John Roe"}, people[1])

	sources := params["sources"].([]map[string]any)
	assert.Equal(t, "https://a.example", sources[0]["url"])
}

func TestRecordParams_EmptyListsAreNotNil(t *testing.T) {
	params := recordParams(&ClaimRecord{ClaimID: "c1"})
	assert.NotNil(t, params["people"])
	assert.NotNil(t, params["sources"])
}

func TestRelatedFromRecord(t *testing.T) {
	record := &neo4j.Record{
		Keys:   []string{"id", "text", "verdict", "via"},
		Values: []any{"c2", "other claim", "false", []any{"Jane Doe", "cluster:k1"}},
	}

	rc := relatedFromRecord(record)
	assert.Equal(t, "c2", rc.ClaimID)
	assert.Equal(t, "false", rc.Verdict)
	assert.Equal(t, []string{"Jane Doe", "cluster:k1"}, rc.Via)
}

func TestRelatedFromRecord_MissingValues(t *testing.T) {
	rc := relatedFromRecord(&neo4j.Record{Keys: []string{"id"}, Values: []any{nil}})
	assert.Empty(t, rc.ClaimID)
	assert.Equal(t, []string{}, rc.Via)
}
