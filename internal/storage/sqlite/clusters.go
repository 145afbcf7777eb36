package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

const clusterColumns = `id, title, summary, risk_score, risk_tier, trend, geo_spread, channel_spread,
	total_mentions, tags, created_at, updated_at`

func (c *Client) InsertCluster(ctx context.Context, cluster *models.Cluster) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cluster insert: %w", err)
	}
	defer tx.Rollback()

	args, err := clusterArgs(cluster)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clusters (`+clusterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{cluster.ID}, append(args, toMillis(cluster.CreatedAt), toMillis(cluster.UpdatedAt))...)...)
	if err != nil {
		return fmt.Errorf("failed to insert cluster: %w", err)
	}

	if err := replaceMembers(ctx, tx, cluster.ID, cluster.ClaimIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cluster insert: %w", err)
	}

	logger.Debug("Cluster inserted", zap.String("cluster_id", cluster.ID), zap.Int("members", len(cluster.ClaimIDs)))
	return nil
}

func (c *Client) UpdateCluster(ctx context.Context, cluster *models.Cluster) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cluster update: %w", err)
	}
	defer tx.Rollback()

	args, err := clusterArgs(cluster)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE clusters SET
			title = ?, summary = ?, risk_score = ?, risk_tier = ?, trend = ?,
			geo_spread = ?, channel_spread = ?, total_mentions = ?, tags = ?, updated_at = ?
		WHERE id = ?`,
		append(args, toMillis(cluster.UpdatedAt), cluster.ID)...)
	if err != nil {
		return fmt.Errorf("failed to update cluster: %w", err)
	}
	if err := requireAffected(res, "cluster", cluster.ID); err != nil {
		return err
	}

	if err := replaceMembers(ctx, tx, cluster.ID, cluster.ClaimIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cluster update: %w", err)
	}

	logger.Debug("Cluster updated", zap.String("cluster_id", cluster.ID), zap.Int("members", len(cluster.ClaimIDs)))
	return nil
}

// FindClusterByMembers returns the most recently updated cluster that
// contains any of the given claims.
func (c *Client) FindClusterByMembers(ctx context.Context, claimIDs []string) (*models.Cluster, error) {
	if len(claimIDs) == 0 {
		return nil, fmt.Errorf("cluster by members: %w", ErrNotFound)
	}

	query := `
		SELECT ` + prefixColumns("c", clusterColumns) + `
		FROM clusters c
		WHERE c.id IN (SELECT cluster_id FROM cluster_members WHERE claim_id IN (` + placeholders(len(claimIDs)) + `))
		ORDER BY c.updated_at DESC, c.id
		LIMIT 1`

	clusters, err := c.queryClusters(ctx, query, stringArgs(claimIDs)...)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, fmt.Errorf("cluster by members: %w", ErrNotFound)
	}
	return &clusters[0], nil
}

func (c *Client) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	clusters, err := c.queryClusters(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, fmt.Errorf("cluster %s: %w", id, ErrNotFound)
	}
	return &clusters[0], nil
}

// ListClusters returns a page of clusters ordered by risk, highest first.
func (c *Client) ListClusters(ctx context.Context, filter models.ClusterFilter) ([]models.Cluster, int, error) {
	var where []string
	var args []any

	if filter.RiskTier != "" {
		where = append(where, "risk_tier = ?")
		args = append(args, string(filter.RiskTier))
	}
	if filter.Trend != "" {
		where = append(where, "trend = ?")
		args = append(args, string(filter.Trend))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clusters`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count clusters: %w", err)
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := `SELECT ` + clusterColumns + ` FROM clusters` + clause +
		` ORDER BY risk_score DESC, updated_at DESC LIMIT ? OFFSET ?`

	clusters, err := c.queryClusters(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return clusters, total, nil
}

func (c *Client) queryClusters(ctx context.Context, query string, args ...any) ([]models.Cluster, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}

	clusters := make([]models.Cluster, 0)
	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, *cluster)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate clusters: %w", err)
	}
	rows.Close()

	if len(clusters) == 0 {
		return clusters, nil
	}

	ids := make([]string, len(clusters))
	for i := range clusters {
		ids[i] = clusters[i].ID
	}
	members, err := c.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range clusters {
		clusters[i].ClaimIDs = nonNilStrings(members[clusters[i].ID])
	}
	return clusters, nil
}

func (c *Client) loadMembers(ctx context.Context, clusterIDs []string) (map[string][]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT cluster_id, claim_id FROM cluster_members WHERE cluster_id IN (`+placeholders(len(clusterIDs))+`)
		ORDER BY cluster_id, position`,
		stringArgs(clusterIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster members: %w", err)
	}
	defer rows.Close()

	members := make(map[string][]string, len(clusterIDs))
	for rows.Next() {
		var clusterID, claimID string
		if err := rows.Scan(&clusterID, &claimID); err != nil {
			return nil, fmt.Errorf("failed to scan cluster member: %w", err)
		}
		members[clusterID] = append(members[clusterID], claimID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cluster members: %w", err)
	}
	return members, nil
}

func replaceMembers(ctx context.Context, tx *sql.Tx, clusterID string, claimIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_members WHERE cluster_id = ?`, clusterID); err != nil {
		return fmt.Errorf("failed to clear cluster members: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO cluster_members (cluster_id, claim_id, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare member insert: %w", err)
	}
	defer stmt.Close()

	for i, claimID := range claimIDs {
		if _, err := stmt.ExecContext(ctx, clusterID, claimID, i); err != nil {
			return fmt.Errorf("failed to insert cluster member: %w", err)
		}
	}
	return nil
}

// clusterArgs returns the mutable column values in clusterColumns order,
// without id and timestamps.
func clusterArgs(cluster *models.Cluster) ([]any, error) {
	geo, err := json.Marshal(nonNilCounts(cluster.GeoSpread))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geo spread: %w", err)
	}
	channel, err := json.Marshal(nonNilCounts(cluster.ChannelSpread))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channel spread: %w", err)
	}
	tags, err := json.Marshal(nonNilStrings(cluster.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	return []any{
		cluster.Title,
		cluster.Summary,
		cluster.RiskScore,
		string(cluster.RiskTier),
		string(cluster.Trend),
		string(geo),
		string(channel),
		cluster.TotalMentions,
		string(tags),
	}, nil
}

func scanCluster(row rowScanner) (*models.Cluster, error) {
	var cluster models.Cluster
	var tier, trend string
	var geo, channel, tags sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&cluster.ID,
		&cluster.Title,
		&cluster.Summary,
		&cluster.RiskScore,
		&tier,
		&trend,
		&geo,
		&channel,
		&cluster.TotalMentions,
		&tags,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cluster.RiskTier = models.RiskTier(tier)
	cluster.Trend = models.Trend(trend)
	cluster.CreatedAt = fromMillis(createdAt)
	cluster.UpdatedAt = fromMillis(updatedAt)

	if err := errors.Join(
		unmarshalNullable(geo, &cluster.GeoSpread),
		unmarshalNullable(channel, &cluster.ChannelSpread),
		unmarshalNullable(tags, &cluster.Tags),
	); err != nil {
		return nil, fmt.Errorf("failed to decode cluster: %w", err)
	}

	return &cluster, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
