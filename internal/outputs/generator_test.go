package outputs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/internal/storage/sqlite/sqlitetest"
)

type fakeWriter struct {
	available bool
	fail      map[string]bool
}

func (f *fakeWriter) Available() bool { return f.available }

func (f *fakeWriter) GenerateCorrective(ctx context.Context, req llm.CorrectiveRequest) (string, error) {
	if f.fail[req.Format] {
		return "", errors.New("provider timeout")
	}
	return "AI " + req.Format + ": " + string(req.Verdict), nil
}

func seed(t *testing.T) *sqlite.Client {
	t.Helper()
	store := sqlitetest.New(t)
	ctx := context.Background()
	require.NoError(t, store.InsertClaim(ctx, sqlitetest.Claim("c1", "The moon landing was faked", nil)))
	a := sqlitetest.Analysis("a1", "c1", models.VerdictFalse)
	a.Rationale = "Independent evidence confirms the landings."
	require.NoError(t, store.ReplaceAnalysis(ctx, a))
	return store
}

func TestGenerate_StubsWithoutLLM(t *testing.T) {
	store := seed(t)
	g := NewGenerator(store, &fakeWriter{available: false})

	res, err := g.Generate(context.Background(), "u", Request{ClaimID: "c1"})
	require.NoError(t, err)

	require.Len(t, res.Outputs, 4)
	assert.Equal(t, "FC: Claim marked false. Check sources.", *res.Outputs["sms"])
	assert.Equal(t, "🔍 Fact-check: false #FactCheck", *res.Outputs["social"])
	assert.Equal(t, "Fact Check: This claim was marked as false.\nIndependent evidence confirms the landings.", *res.Outputs["explainer"])
	assert.Contains(t, *res.Outputs["whatsapp"], "Verify sources before sharing.")
	assert.Empty(t, res.Errors)

	logs, err := store.ListAuditLogs(context.Background(), models.AuditFilter{Action: models.AuditPublish})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestGenerate_PartialSuccess(t *testing.T) {
	store := seed(t)
	g := NewGenerator(store, &fakeWriter{available: true, fail: map[string]bool{"sms": true}})

	res, err := g.Generate(context.Background(), "u", Request{ClaimID: "c1", OutputTypes: []string{"whatsapp", "sms", "fax"}})
	require.NoError(t, err)

	assert.Equal(t, "AI whatsapp: false", *res.Outputs["whatsapp"])
	assert.Nil(t, res.Outputs["sms"])
	assert.Nil(t, res.Outputs["fax"])
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "sms", res.Errors[0].Type)
	assert.Equal(t, "fax", res.Errors[1].Type)
}

func TestGenerate_ByCluster(t *testing.T) {
	store := seed(t)
	ctx := context.Background()
	require.NoError(t, store.InsertCluster(ctx, &models.Cluster{
		ID:       "k1",
		Title:    "t",
		ClaimIDs: []string{"c1"},
		RiskTier: models.RiskLow,
		Trend:    models.TrendStable,
	}))

	g := NewGenerator(store, nil)
	res, err := g.Generate(ctx, "u", Request{ClusterID: "k1", OutputTypes: []string{"sms"}})
	require.NoError(t, err)
	assert.Equal(t, "c1", res.ClaimID)
}

func TestGenerate_Errors(t *testing.T) {
	store := seed(t)
	g := NewGenerator(store, nil)
	ctx := context.Background()

	_, err := g.Generate(ctx, "u", Request{})
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = g.Generate(ctx, "u", Request{ClaimID: "missing"})
	assert.ErrorIs(t, err, sqlite.ErrNotFound)

	require.NoError(t, store.InsertClaim(ctx, sqlitetest.Claim("c2", "unanalyzed", nil)))
	_, err = g.Generate(ctx, "u", Request{ClaimID: "c2"})
	assert.ErrorIs(t, err, ErrNoAnalysis)
}
