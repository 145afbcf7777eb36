package clustering

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/internal/storage/sqlite/sqlitetest"
)

func TestChooseK(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0},
		{1, 1},
		{2, 1},
		{8, 2},
		{9, 3},
		{50, 5},
		{1000, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChooseK(tt.n, 10), "n=%d", tt.n)
	}
}

func blobs(r *rand.Rand, perBlob int, centers ...[]float64) *mat.Dense {
	dim := len(centers[0])
	data := make([]float64, 0, perBlob*len(centers)*dim)
	for _, c := range centers {
		for i := 0; i < perBlob; i++ {
			for _, v := range c {
				data = append(data, v+r.Float64()*0.01)
			}
		}
	}
	return mat.NewDense(perBlob*len(centers), dim, data)
}

func TestKMeans_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	points := blobs(r, 5, []float64{0, 0, 10}, []float64{10, 0, 0}, []float64{0, 10, 0})

	assignments := kmeans(points, 3, rand.New(rand.NewSource(11)), 100, 1e-4)
	require.Len(t, assignments, 15)

	for _, a := range assignments {
		assert.True(t, a >= 0 && a < 3)
	}
	for blob := 0; blob < 3; blob++ {
		first := assignments[blob*5]
		for i := 1; i < 5; i++ {
			assert.Equal(t, first, assignments[blob*5+i], "blob %d", blob)
		}
	}
	assert.NotEqual(t, assignments[0], assignments[5])
	assert.NotEqual(t, assignments[5], assignments[10])
	assert.NotEqual(t, assignments[0], assignments[10])
}

func TestKMeans_IdenticalPoints(t *testing.T) {
	points := mat.NewDense(4, 2, []float64{1, 1, 1, 1, 1, 1, 1, 1})
	assignments := kmeans(points, 3, rand.New(rand.NewSource(1)), 100, 1e-4)
	require.Len(t, assignments, 4)
	for _, a := range assignments {
		assert.True(t, a >= 0 && a < 3)
	}
}

func TestKMeans_KLargerThanN(t *testing.T) {
	points := mat.NewDense(2, 1, []float64{0, 5})
	assignments := kmeans(points, 5, rand.New(rand.NewSource(1)), 100, 1e-4)
	assert.Len(t, assignments, 2)
	assert.NotEqual(t, assignments[0], assignments[1])
}

func seedClaims(t *testing.T, store *sqlite.Client) {
	t.Helper()
	ctx := context.Background()
	r := rand.New(rand.NewSource(5))
	centers := [][]float32{{1, 0, 0}, {0, 1, 0}}
	for b, center := range centers {
		for i := 0; i < 4; i++ {
			vec := make([]float32, 3)
			for j := range vec {
				vec[j] = center[j] + float32(r.Float64()*0.01)
			}
			id := string(rune('a'+b)) + string(rune('0'+i))
			claim := sqlitetest.Claim(id, "group "+string(rune('A'+b))+" claim number one two three", vec)
			claim.SourceType = models.SourceTwitter
			require.NoError(t, store.InsertClaim(ctx, claim))
		}
	}
}

func TestRecluster_NotEnoughClaims(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	require.NoError(t, store.InsertClaim(ctx, sqlitetest.Claim("c1", "only one", []float32{1, 2})))
	require.NoError(t, store.InsertClaim(ctx, sqlitetest.Claim("c2", "no embedding", nil)))

	res, err := NewEngine(store, Config{Seed: 1}).Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ClustersCreated)
	assert.Equal(t, 1, res.TotalClaims)

	_, total, err := store.ListClusters(ctx, models.ClusterFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRecluster_CreatesThenUpdates(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	seedClaims(t, store)

	a := sqlitetest.Analysis("an1", "a0", models.VerdictFalse)
	a.RiskScore = 0.8
	require.NoError(t, store.ReplaceAnalysis(ctx, a))

	engine := NewEngine(store, Config{Seed: 42})
	res, err := engine.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, res.TotalClaims)
	assert.Equal(t, 2, res.NumClusters)
	assert.Equal(t, 2, res.ClustersCreated)

	clusters, total, err := store.ListClusters(ctx, models.ClusterFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	seen := make(map[string]int)
	for _, c := range clusters {
		assert.Equal(t, "Cluster of 4 related claims", c.Summary)
		assert.True(t, strings.HasSuffix(c.Title, "..."))
		assert.Equal(t, 4, c.ChannelSpread["twitter"])
		assert.Equal(t, 4, c.TotalMentions)
		group := c.ClaimIDs[0][:1]
		for _, id := range c.ClaimIDs {
			assert.Equal(t, group, id[:1], "members of one cluster share a blob")
			seen[id]++
		}
	}
	assert.Len(t, seen, 8)

	// The riskiest member sets the cluster tier and the list is risk ordered.
	assert.Equal(t, 0.8, clusters[0].RiskScore)
	assert.Equal(t, models.RiskHigh, clusters[0].RiskTier)

	claim, err := store.GetClaim(ctx, "b2")
	require.NoError(t, err)
	assert.NotEmpty(t, claim.ClusterID)

	res, err = engine.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ClustersCreated)
	assert.Equal(t, 2, res.ClustersUpdated)

	_, total, err = store.ListClusters(ctx, models.ClusterFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestWrapClaim(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	engine := NewEngine(store, Config{Seed: 1})

	text := strings.Repeat("x", 60)
	claim := sqlitetest.Claim("c1", text, nil)
	claim.Geo = &models.GeoHint{Country: "KE"}
	claim.Mentions = 7
	require.NoError(t, store.InsertClaim(ctx, claim))

	a := sqlitetest.Analysis("a1", "c1", models.VerdictFalse)
	a.Rationale = strings.Repeat("r", 250)
	a.RiskScore = 0.5

	cluster, err := engine.WrapClaim(ctx, claim, a, []string{"Nairobi"})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 50)+"...", cluster.Title)
	assert.Len(t, cluster.Summary, 200)
	assert.Equal(t, models.RiskMedium, cluster.RiskTier)
	assert.Equal(t, models.TrendStable, cluster.Trend)
	assert.Equal(t, map[string]int{"KE": 1}, cluster.GeoSpread)
	assert.Equal(t, map[string]int{"manual": 1}, cluster.ChannelSpread)
	assert.Equal(t, 7, cluster.TotalMentions)

	stored, err := store.GetClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, cluster.ID, stored.ClusterID)

	a.RiskScore = 0.9
	again, err := engine.WrapClaim(ctx, stored, a, nil)
	require.NoError(t, err)
	assert.Equal(t, cluster.ID, again.ID)
	assert.Equal(t, models.RiskHigh, again.RiskTier)

	_, total, err := store.ListClusters(ctx, models.ClusterFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestWrapClaim_ConcurrentClaimsStaySeparate(t *testing.T) {
	store := sqlitetest.New(t)
	ctx := context.Background()
	engine := NewEngine(store, Config{Seed: 1})

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i, id := range []string{"c1", "c2"} {
		claim := sqlitetest.Claim(id, "Same false claim", nil)
		require.NoError(t, store.InsertClaim(ctx, claim))

		wg.Add(1)
		go func(i int, claim *models.Claim) {
			defer wg.Done()
			a := sqlitetest.Analysis("a-"+claim.ID, claim.ID, models.VerdictFalse)
			a.RiskScore = 0.2
			cluster, err := engine.WrapClaim(ctx, claim, a, nil)
			assert.NoError(t, err)
			if cluster != nil {
				ids[i] = cluster.ID
			}
		}(i, claim)
	}
	wg.Wait()

	assert.NotEqual(t, ids[0], ids[1])
	clusters, total, err := store.ListClusters(ctx, models.ClusterFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, c := range clusters {
		assert.Len(t, c.ClaimIDs, 1)
		assert.Equal(t, models.RiskLow, c.RiskTier)
	}
}
