package zilliz

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/infosage/backend/pkg/logger"
)

const (
	fieldClaimID    = "claim_id"
	fieldEmbedding  = "embedding"
	fieldSourceType = "source_type"
	fieldCreatedAt  = "created_at"
)

// Client mirrors claim embeddings into a Milvus/Zilliz collection so
// similarity lookups do not need a full scan of the store.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type ClaimVector struct {
	ClaimID    string
	Embedding  []float32
	SourceType string
	CreatedAt  time.Time
}

type Hit struct {
	ClaimID string
	// Score is the cosine similarity reported by the index.
	Score float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.Int("dim", vectorDim),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

func (z *Client) CreateCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.load(ctx)
	}

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Claim text embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldClaimID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", z.vectorDim),
				},
			},
			{
				Name:     fieldSourceType,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     fieldCreatedAt,
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := z.client.CreateIndex(ctx, z.collectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := z.load(ctx); err != nil {
		return err
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))
	return nil
}

func (z *Client) load(ctx context.Context) error {
	if err := z.client.LoadCollection(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (z *Client) Upsert(ctx context.Context, vectors []ClaimVector) error {
	if len(vectors) == 0 {
		return nil
	}

	ids := make([]string, len(vectors))
	embeddings := make([][]float32, len(vectors))
	sourceTypes := make([]string, len(vectors))
	createdAt := make([]int64, len(vectors))

	for i, v := range vectors {
		if len(v.Embedding) != z.vectorDim {
			return fmt.Errorf("claim %s has dimension %d, collection expects %d", v.ClaimID, len(v.Embedding), z.vectorDim)
		}
		ids[i] = v.ClaimID
		embeddings[i] = v.Embedding
		sourceTypes[i] = v.SourceType
		createdAt[i] = v.CreatedAt.UnixMilli()
	}

	_, err := z.client.Upsert(
		ctx,
		z.collectionName,
		"",
		entity.NewColumnVarChar(fieldClaimID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, z.vectorDim, embeddings),
		entity.NewColumnVarChar(fieldSourceType, sourceTypes),
		entity.NewColumnInt64(fieldCreatedAt, createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert claim vectors: %w", err)
	}

	logger.Debug("Claim vectors upserted", zap.Int("count", len(vectors)))
	return nil
}

// Search returns up to topK claim ids nearest to query by cosine
// similarity, best first.
func (z *Client) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := z.client.Search(
		ctx,
		z.collectionName,
		[]string{},
		"",
		[]string{fieldClaimID},
		[]entity.Vector{entity.FloatVector(query)},
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]Hit, 0, topK)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn(fieldClaimID)
		if idCol == nil {
			continue
		}
		for i := 0; i < sr.ResultCount; i++ {
			id, err := idCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read claim id: %w", err)
			}
			hits = append(hits, Hit{ClaimID: id, Score: sr.Scores[i]})
		}
	}

	logger.Debug("Vector search completed", zap.Int("topK", topK), zap.Int("hits", len(hits)))
	return hits, nil
}

// Reset drops and recreates the collection.
func (z *Client) Reset(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		if err := z.client.DropCollection(ctx, z.collectionName); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	return z.CreateCollection(ctx)
}
