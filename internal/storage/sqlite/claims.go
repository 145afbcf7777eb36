package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

const claimColumns = `id, text, canonical_text, source_type, source_link, language, status, mentions,
	spread_count, geo, media_analysis, cluster_id, embedding, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *Client) InsertClaim(ctx context.Context, claim *models.Claim) error {
	geo, err := marshalNullable(claim.Geo, claim.Geo == nil)
	if err != nil {
		return fmt.Errorf("failed to marshal geo: %w", err)
	}
	media, err := marshalNullable(claim.MediaAnalysis, claim.MediaAnalysis == nil)
	if err != nil {
		return fmt.Errorf("failed to marshal media analysis: %w", err)
	}
	embedding, err := marshalNullable(claim.Embedding, len(claim.Embedding) == 0)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	query := `INSERT INTO claims (` + claimColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = c.db.ExecContext(ctx, query,
		claim.ID,
		claim.Text,
		claim.CanonicalText,
		string(claim.SourceType),
		claim.SourceLink,
		claim.Language,
		string(claim.Status),
		claim.Mentions,
		claim.SpreadCount,
		geo,
		media,
		nullString(claim.ClusterID),
		embedding,
		toMillis(claim.CreatedAt),
		toMillis(claim.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}

	logger.Debug("Claim inserted", zap.String("claim_id", claim.ID), zap.String("source_type", string(claim.SourceType)))
	return nil
}

func (c *Client) GetClaim(ctx context.Context, id string) (*models.Claim, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)

	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return claim, nil
}

// ListClaims returns a page of claims, newest first, and the total matching
// the filter.
func (c *Client) ListClaims(ctx context.Context, filter models.ClaimFilter) ([]models.Claim, int, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, string(filter.SourceType))
	}
	if filter.ClusterID != "" {
		where = append(where, "cluster_id = ?")
		args = append(args, filter.ClusterID)
	}
	if filter.Search != "" {
		where = append(where, "(text LIKE ? ESCAPE '\\' OR canonical_text LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(filter.Search) + "%"
		args = append(args, pattern, pattern)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM claims`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count claims: %w", err)
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := `SELECT ` + claimColumns + ` FROM claims` + clause + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	claims, err := c.queryClaims(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// ListClaimsWithEmbedding returns every claim that has an embedding, oldest
// first.
func (c *Client) ListClaimsWithEmbedding(ctx context.Context) ([]models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE embedding IS NOT NULL ORDER BY created_at, id`
	return c.queryClaims(ctx, query)
}

func (c *Client) GetClaimsByIDs(ctx context.Context, ids []string) ([]models.Claim, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id IN (` + placeholders(len(ids)) + `)`
	claims, err := c.queryClaims(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}

	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	sort.SliceStable(claims, func(i, j int) bool {
		return order[claims[i].ID] < order[claims[j].ID]
	})
	return claims, nil
}

// UpdateClaimStatus moves a claim to next, rejecting transitions the
// claim lifecycle does not allow.
func (c *Client) UpdateClaimStatus(ctx context.Context, id string, next models.ClaimStatus) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM claims WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read claim status: %w", err)
	}

	if !models.ClaimStatus(current).CanTransition(next) {
		return fmt.Errorf("claim %s %s -> %s: %w", id, current, next, ErrInvalidTransition)
	}

	_, err = tx.ExecContext(ctx, `UPDATE claims SET status = ?, updated_at = ? WHERE id = ?`,
		string(next), toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	logger.Debug("Claim status updated",
		zap.String("claim_id", id),
		zap.String("from", current),
		zap.String("to", string(next)),
	)
	return nil
}

// EscalateClaims marks every listed claim escalated and returns how many
// rows changed.
func (c *Client) EscalateClaims(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{string(models.StatusEscalated), toMillis(time.Now())}, stringArgs(ids)...)
	res, err := c.db.ExecContext(ctx,
		`UPDATE claims SET status = ?, updated_at = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to escalate claims: %w", err)
	}
	return res.RowsAffected()
}

func (c *Client) SetClaimEmbedding(ctx context.Context, id string, embedding []float32) error {
	value, err := marshalNullable(embedding, len(embedding) == 0)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `UPDATE claims SET embedding = ?, updated_at = ? WHERE id = ?`,
		value, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set claim embedding: %w", err)
	}
	return requireAffected(res, "claim", id)
}

func (c *Client) SetClaimCluster(ctx context.Context, clusterID string, claimIDs ...string) error {
	if len(claimIDs) == 0 {
		return nil
	}
	args := append([]any{nullString(clusterID), toMillis(time.Now())}, stringArgs(claimIDs)...)
	_, err := c.db.ExecContext(ctx,
		`UPDATE claims SET cluster_id = ?, updated_at = ? WHERE id IN (`+placeholders(len(claimIDs))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to set claim cluster: %w", err)
	}
	return nil
}

func (c *Client) queryClaims(ctx context.Context, query string, args ...any) ([]models.Claim, error) {
	return queryClaimsWith(ctx, c.db, query, args...)
}

func queryClaimsWith(ctx context.Context, q querier, query string, args ...any) ([]models.Claim, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	claims := make([]models.Claim, 0)
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, *claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}
	return claims, nil
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var claim models.Claim
	var sourceType, status string
	var geo, media, clusterID, embedding sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&claim.ID,
		&claim.Text,
		&claim.CanonicalText,
		&sourceType,
		&claim.SourceLink,
		&claim.Language,
		&status,
		&claim.Mentions,
		&claim.SpreadCount,
		&geo,
		&media,
		&clusterID,
		&embedding,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	claim.SourceType = models.SourceType(sourceType)
	claim.Status = models.ClaimStatus(status)
	claim.ClusterID = clusterID.String
	claim.CreatedAt = fromMillis(createdAt)
	claim.UpdatedAt = fromMillis(updatedAt)

	if err := unmarshalNullable(geo, &claim.Geo); err != nil {
		return nil, fmt.Errorf("failed to decode geo: %w", err)
	}
	if err := unmarshalNullable(media, &claim.MediaAnalysis); err != nil {
		return nil, fmt.Errorf("failed to decode media analysis: %w", err)
	}
	if err := unmarshalNullable(embedding, &claim.Embedding); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}

	return &claim, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
