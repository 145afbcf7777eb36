package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/events"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/internal/storage/sqlite/sqlitetest"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name       string
		risk       float64
		confidence float64
		spread     float64
		want       bool
	}{
		{"high risk", 0.76, 0.9, 0.1, true},
		{"risk at threshold", 0.75, 0.9, 0.1, false},
		{"uncertain and spreading", 0.3, 0.5, 0.6, true},
		{"uncertain but slow", 0.3, 0.5, 0.5, false},
		{"confident and spreading", 0.3, 0.6, 0.9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &models.Analysis{RiskScore: tt.risk, Confidence: tt.confidence, Features: models.Features{SpreadVelocity: tt.spread}}
			assert.Equal(t, tt.want, ShouldEscalate(a))
		})
	}
	assert.False(t, ShouldEscalate(nil))
}

func TestShouldEscalate_MonotonicInRisk(t *testing.T) {
	a := &models.Analysis{Confidence: 0.9, Features: models.Features{SpreadVelocity: 0.2}}
	flipped := false
	for r := 0.0; r <= 1.0; r += 0.01 {
		a.RiskScore = r
		got := ShouldEscalate(a)
		if flipped {
			assert.True(t, got, "risk %v", r)
		}
		if got {
			flipped = true
			assert.Greater(t, r, 0.75)
		}
	}
	assert.True(t, flipped)
}

func TestEscalate_Claim(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	require.NoError(t, store.InsertClaim(ctx, sqlitetest.Claim("c1", "text", nil)))

	rec := &recorder{}
	res, err := NewService(store, rec).Escalate(ctx, "alice", EscalateRequest{ClaimID: "c1", Reason: "viral"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Escalated)

	claim, err := store.GetClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscalated, claim.Status)

	logs, err := store.ListAuditLogs(ctx, models.AuditFilter{Action: models.AuditEscalate})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "alice", logs[0].ActorID)
	assert.Equal(t, "viral", logs[0].Metadata["reason"])

	require.Len(t, rec.events, 1)
	assert.Equal(t, events.TypeClaimEscalated, rec.events[0].Type)
}

func TestEscalate_ClusterFansOut(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.InsertClaim(ctx, sqlitetest.Claim(id, "text "+id, nil)))
	}
	now := time.Now().UTC()
	require.NoError(t, store.InsertCluster(ctx, &models.Cluster{
		ID: "k1", Title: "t", ClaimIDs: []string{"a", "b"}, RiskTier: models.RiskLow,
		Trend: models.TrendStable, CreatedAt: now, UpdatedAt: now,
	}))

	rec := &recorder{}
	res, err := NewService(store, rec).Escalate(ctx, "bob", EscalateRequest{ClusterID: "k1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Escalated)
	assert.Contains(t, res.Message, "2 claims")

	for id, want := range map[string]models.ClaimStatus{"a": models.StatusEscalated, "b": models.StatusEscalated, "c": models.StatusNew} {
		claim, err := store.GetClaim(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, claim.Status, id)
	}
	assert.Len(t, rec.events, 2)
}

func TestEscalate_Errors(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	svc := NewService(store, nil)

	_, err := svc.Escalate(ctx, "x", EscalateRequest{})
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = svc.Escalate(ctx, "x", EscalateRequest{ClaimID: "missing"})
	assert.ErrorIs(t, err, sqlite.ErrNotFound)

	now := time.Now().UTC()
	require.NoError(t, store.InsertCluster(ctx, &models.Cluster{
		ID: "empty", Title: "t", RiskTier: models.RiskLow, Trend: models.TrendStable, CreatedAt: now, UpdatedAt: now,
	}))
	_, err = svc.Escalate(ctx, "x", EscalateRequest{ClusterID: "empty"})
	assert.ErrorIs(t, err, ErrNothingToEscalate)
}

func TestResolve(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()

	claim := sqlitetest.Claim("c1", "text", nil)
	claim.Status = models.StatusEscalated
	require.NoError(t, store.InsertClaim(ctx, claim))
	require.NoError(t, store.ReplaceAnalysis(ctx, sqlitetest.Analysis("a1", "c1", models.VerdictUnverified)))

	rec := &recorder{}
	svc := NewService(store, rec)
	require.NoError(t, svc.Resolve(ctx, "carol", ResolveRequest{ClaimID: "c1", Verdict: models.VerdictFalse, Notes: "checked"}))

	a, err := store.GetAnalysisByClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictFalse, a.Verdict)
	assert.Equal(t, 50, a.VerdictPercentage)

	got, err := store.GetClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, got.Status)

	logs, err := store.ListAuditLogs(ctx, models.AuditFilter{Action: models.AuditResolve})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "checked", logs[0].Metadata["notes"])

	require.Len(t, rec.events, 1)
	assert.Equal(t, models.VerdictFalse, rec.events[0].Verdict)
}

func TestResolve_Errors(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	svc := NewService(store, nil)

	assert.ErrorIs(t, svc.Resolve(ctx, "x", ResolveRequest{Verdict: models.VerdictTrue}), ErrNoTarget)
	assert.Error(t, svc.Resolve(ctx, "x", ResolveRequest{ClaimID: "c1", Verdict: "probably"}))

	require.NoError(t, store.InsertClaim(ctx, sqlitetest.Claim("c1", "text", nil)))
	err := svc.Resolve(ctx, "x", ResolveRequest{ClaimID: "c1", Verdict: models.VerdictTrue})
	assert.True(t, errors.Is(err, sqlite.ErrNotFound))
}

func TestAutoEscalate(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()

	NewService(store, nil).AutoEscalate(ctx, &models.Analysis{ClaimID: "c1", RiskScore: 0.8, Confidence: 0.4})

	logs, err := store.ListAuditLogs(ctx, models.AuditFilter{ActorID: models.SystemActor})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditEscalate, logs[0].Action)
	assert.Equal(t, "automatic", logs[0].Metadata["reason"])
}
