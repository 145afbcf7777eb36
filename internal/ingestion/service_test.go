package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/embedding"
	"github.com/infosage/backend/internal/similarity"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite/sqlitetest"
	"github.com/infosage/backend/internal/tasks"
)

type failingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (f *failingEmbedder) Available() bool { return true }

func (f *failingEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil, errors.New("connection refused")
}

type fixedEmbedder []float32

func (f fixedEmbedder) Embed(ctx context.Context, text, language string) []float32 {
	return append([]float32(nil), f...)
}

type recordingSubmitter struct {
	tasks []tasks.Task
	err   error
}

func (r *recordingSubmitter) Submit(t tasks.Task) error {
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, t)
	return nil
}

func TestCreateClaim_EmbeddingFailureStillCreates(t *testing.T) {
	store := sqlitetest.New(t)
	client := &failingEmbedder{}
	retry := embedding.DefaultRetry()
	retry.InitialDelay = time.Millisecond
	retry.MaxDelay = 5 * time.Millisecond
	provider := embedding.NewProvider(client, nil, embedding.Config{Dim: 16, Retry: retry})
	sub := &recordingSubmitter{}

	svc := NewService(store, provider, similarity.NewIndex(store), sub)
	claim, err := svc.CreateClaim(context.Background(), "u1", CreateRequest{Text: "  Drinking bleach cures flu  "})
	require.NoError(t, err)

	assert.Equal(t, 3, client.calls)
	assert.Equal(t, models.StatusNew, claim.Status)
	assert.Equal(t, "Drinking bleach cures flu", claim.Text)
	assert.Equal(t, models.SourceManual, claim.SourceType)
	assert.Equal(t, "en", claim.Language)

	stored, err := store.GetClaim(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, stored.Status)
	assert.Len(t, stored.Embedding, 16)

	require.Len(t, sub.tasks, 1)
	assert.Equal(t, tasks.Task{ClaimID: claim.ID, Actor: "u1"}, sub.tasks[0])

	logs, err := store.ListAuditLogs(context.Background(), models.AuditFilter{TargetID: claim.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditCreate, logs[0].Action)
}

func TestCreateClaim_InheritsSimilarCluster(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()

	existing := sqlitetest.Claim("old", "Older claim", []float32{1, 0})
	existing.ClusterID = "k1"
	require.NoError(t, store.InsertClaim(ctx, existing))

	svc := NewService(store, fixedEmbedder{0.99, 0.05}, similarity.NewIndex(store), nil)
	claim, err := svc.CreateClaim(ctx, "u", CreateRequest{Text: "Newer claim"})
	require.NoError(t, err)
	assert.Equal(t, "k1", claim.ClusterID)

	svc = NewService(store, fixedEmbedder{0, 1}, similarity.NewIndex(store), nil)
	claim, err = svc.CreateClaim(ctx, "u", CreateRequest{Text: "Unrelated claim"})
	require.NoError(t, err)
	assert.Empty(t, claim.ClusterID)
}

func TestCreateClaim_QueueFailureDoesNotFail(t *testing.T) {
	store := sqlitetest.New(t)
	sub := &recordingSubmitter{err: tasks.ErrQueueFull}

	svc := NewService(store, fixedEmbedder{1}, nil, sub)
	claim, err := svc.CreateClaim(context.Background(), "u", CreateRequest{Text: "claim"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, claim.Status)
}

func TestCreateRequest_Validate(t *testing.T) {
	cases := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"empty text", CreateRequest{Text: "   "}, "text"},
		{"too long", CreateRequest{Text: strings.Repeat("a", MaxTextLength+1)}, "text"},
		{"bad source", CreateRequest{Text: "x", SourceType: "fax"}, "sourceType"},
		{"bad link", CreateRequest{Text: "x", SourceLink: "ftp://host/file"}, "sourceLink"},
		{"bad language", CreateRequest{Text: "x", Language: "english!"}, "language"},
		{"bad lat", CreateRequest{Text: "x", Geo: &models.GeoHint{Lat: 91}}, "geo.lat"},
		{"bad lng", CreateRequest{Text: "x", Geo: &models.GeoHint{Lng: -181}}, "geo.lng"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.True(t, IsValidationError(err))
		})
	}

	ok := CreateRequest{Text: "x", SourceType: models.SourceTwitter, SourceLink: "https://t.co/x", Language: "PT-br"}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "pt-br", ok.Language)
}

func TestCreateClaim_ValidationErrorStoresNothing(t *testing.T) {
	store := sqlitetest.New(t)
	svc := NewService(store, fixedEmbedder{1}, nil, nil)

	_, err := svc.CreateClaim(context.Background(), "u", CreateRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, total, err := store.ListClaims(context.Background(), models.ClaimFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "plain text here", Canonicalize("  plain \n text\there "))
	assert.Equal(t, "Breaking: dam collapsed", Canonicalize(`<p>Breaking:<script>x()</script> <b>dam</b> collapsed</p>`))
	assert.Equal(t, "5 < 6 is true", Canonicalize("5 < 6 is true"))
	assert.Equal(t, "Crime rate x<y and z>w in 2024", Canonicalize("Crime rate x<y and z>w in 2024"))
	assert.Equal(t, "5G<covid link is real>proven", Canonicalize("5G<covid link is real>proven"))
	assert.Equal(t, "Shocking: x<y and z>w today", Canonicalize("<p>Shocking: x<y and z>w <!-- tracker -->today</p>"))
}

func TestEntityTags(t *testing.T) {
	assert.Empty(t, EntityTags(""))
	tags := EntityTags("Barack Obama visited Paris with Angela Merkel.")
	for _, tag := range tags {
		assert.Equal(t, strings.ToLower(tag), tag)
	}
	assert.LessOrEqual(t, len(tags), MaxTags)
}
