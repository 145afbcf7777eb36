package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/vector/zilliz"
	"github.com/infosage/backend/pkg/logger"
)

// MaxResults caps the number of matches returned by a search.
const MaxResults = 10

type Match struct {
	Claim      models.Claim `json:"claim"`
	Similarity float64      `json:"similarity"`
}

type Searcher interface {
	FindSimilar(ctx context.Context, vector []float32, threshold float64) ([]Match, error)
}

type ClaimStore interface {
	ListClaimsWithEmbedding(ctx context.Context) ([]models.Claim, error)
	GetClaimsByIDs(ctx context.Context, ids []string) ([]models.Claim, error)
}

// Cosine returns the cosine similarity of a and b. It is 0 when either
// vector has zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Index scans every stored embedding. Cost is O(N·D) per query.
type Index struct {
	store ClaimStore
}

func NewIndex(store ClaimStore) *Index {
	return &Index{store: store}
}

func (i *Index) FindSimilar(ctx context.Context, vector []float32, threshold float64) ([]Match, error) {
	claims, err := i.store.ListClaimsWithEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	matches := make([]Match, 0)
	skipped := 0
	for _, c := range claims {
		if len(c.Embedding) != len(vector) {
			skipped++
			continue
		}
		sim := Cosine(vector, c.Embedding)
		if sim >= threshold {
			matches = append(matches, Match{Claim: c, Similarity: sim})
		}
	}

	if skipped > 0 {
		logger.Warn("Skipped embeddings with mismatched dimension",
			zap.Int("skipped", skipped),
			zap.Int("dim", len(vector)),
		)
	}

	return rank(matches), nil
}

func rank(matches []Match) []Match {
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})
	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
	}
	return matches
}

// VectorSearcher is the nearest-neighbour call of a vector database.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]zilliz.Hit, error)
}

// VectorIndex answers similarity queries from a vector database and
// resolves the hits through the store.
type VectorIndex struct {
	vectors VectorSearcher
	store   ClaimStore
}

func NewVectorIndex(vectors VectorSearcher, store ClaimStore) *VectorIndex {
	return &VectorIndex{vectors: vectors, store: store}
}

func (v *VectorIndex) FindSimilar(ctx context.Context, vector []float32, threshold float64) ([]Match, error) {
	hits, err := v.vectors.Search(ctx, vector, MaxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	scores := make(map[string]float64, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if float64(h.Score) < threshold {
			continue
		}
		if _, dup := scores[h.ClaimID]; dup {
			continue
		}
		scores[h.ClaimID] = float64(h.Score)
		ids = append(ids, h.ClaimID)
	}
	if len(ids) == 0 {
		return []Match{}, nil
	}

	claims, err := v.store.GetClaimsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vector hits: %w", err)
	}

	matches := make([]Match, 0, len(claims))
	for _, c := range claims {
		matches = append(matches, Match{Claim: c, Similarity: scores[c.ID]})
	}
	return rank(matches), nil
}
