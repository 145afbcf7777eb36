package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

// InsertAuditLog appends an entry. Entries are never updated.
func (c *Client) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalNullable(entry.Metadata, len(entry.Metadata) == 0)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO audit_logs (actor_id, action, target_type, target_id, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ActorID,
		string(entry.Action),
		string(entry.TargetType),
		entry.TargetID,
		metadata,
		toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	entry.ID, _ = res.LastInsertId()

	logger.Debug("Audit log written",
		zap.String("actor", entry.ActorID),
		zap.String("action", string(entry.Action)),
		zap.String("target", string(entry.TargetType)+":"+entry.TargetID),
	)
	return nil
}

func (c *Client) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	var where []string
	var args []any

	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.TargetType != "" {
		where = append(where, "target_type = ?")
		args = append(args, string(filter.TargetType))
	}
	if filter.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, filter.TargetID)
	}

	query := `SELECT id, actor_id, action, target_type, target_id, metadata, created_at FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"

	rows, err := c.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AuditLog, 0)
	for rows.Next() {
		var entry models.AuditLog
		var action, targetType string
		var metadata sql.NullString
		var createdAt int64

		if err := rows.Scan(&entry.ID, &entry.ActorID, &action, &targetType, &entry.TargetID, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		entry.Action = models.AuditAction(action)
		entry.TargetType = models.TargetType(targetType)
		entry.CreatedAt = fromMillis(createdAt)
		if err := unmarshalNullable(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return entries, nil
}
