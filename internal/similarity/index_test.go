package similarity

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/vector/zilliz"
)

type memStore struct {
	claims []models.Claim
	err    error
}

func (m *memStore) ListClaimsWithEmbedding(ctx context.Context) ([]models.Claim, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Claim, 0, len(m.claims))
	for _, c := range m.claims {
		if c.HasEmbedding() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) GetClaimsByIDs(ctx context.Context, ids []string) ([]models.Claim, error) {
	byID := make(map[string]models.Claim, len(m.claims))
	for _, c := range m.claims {
		byID[c.ID] = c
	}
	out := make([]models.Claim, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.Float64()*2 - 1)
	}
	return v
}

func TestCosine_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		a := randomVector(r, 16)
		b := randomVector(r, 16)

		assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
		assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)

		sim := Cosine(a, b)
		assert.True(t, sim >= -1-1e-9 && sim <= 1+1e-9)
	}
}

func TestCosine_Degenerate(t *testing.T) {
	zero := make([]float32, 4)
	v := []float32{1, 2, 3, 4}

	assert.Equal(t, 0.0, Cosine(zero, v))
	assert.Equal(t, 0.0, Cosine(v, zero))
	assert.Equal(t, 0.0, Cosine(zero, zero))
	assert.Equal(t, 0.0, Cosine(v, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestIndex_FindSimilar(t *testing.T) {
	store := &memStore{claims: []models.Claim{
		{ID: "same", Embedding: []float32{1, 0, 0}},
		{ID: "close", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "far", Embedding: []float32{0, 1, 0}},
		{ID: "none"},
		{ID: "wrong-dim", Embedding: []float32{1, 0}},
	}}

	matches, err := NewIndex(store).FindSimilar(context.Background(), []float32{1, 0, 0}, 0.8)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "same", matches[0].Claim.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, "close", matches[1].Claim.ID)
}

func TestIndex_CapsResults(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 25; i++ {
		store.claims = append(store.claims, models.Claim{
			ID:        string(rune('a' + i)),
			Embedding: []float32{1, float32(i) / 100},
		})
	}

	matches, err := NewIndex(store).FindSimilar(context.Background(), []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, matches, MaxResults)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
	assert.Equal(t, "a", matches[0].Claim.ID)
}

func TestIndex_StoreError(t *testing.T) {
	_, err := NewIndex(&memStore{err: errors.New("disk")}).FindSimilar(context.Background(), []float32{1}, 0.5)
	require.Error(t, err)
}

type fakeVectors struct {
	hits []zilliz.Hit
}

func (f *fakeVectors) Search(ctx context.Context, query []float32, topK int) ([]zilliz.Hit, error) {
	return f.hits, nil
}

func TestVectorIndex_ResolvesHits(t *testing.T) {
	store := &memStore{claims: []models.Claim{
		{ID: "c1", Text: "one"},
		{ID: "c2", Text: "two"},
	}}
	vectors := &fakeVectors{hits: []zilliz.Hit{
		{ClaimID: "c2", Score: 0.95},
		{ClaimID: "c1", Score: 0.85},
		{ClaimID: "gone", Score: 0.9},
		{ClaimID: "c3", Score: 0.2},
	}}

	matches, err := NewVectorIndex(vectors, store).FindSimilar(context.Background(), []float32{1}, 0.8)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c2", matches[0].Claim.ID)
	assert.InDelta(t, 0.95, matches[0].Similarity, 1e-6)
	assert.Equal(t, "c1", matches[1].Claim.ID)
}
