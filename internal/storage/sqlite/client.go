package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/infosage/backend/pkg/logger"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// NewWithDB wraps an existing handle. Used with sqlmock in tests.
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		canonical_text TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL,
		source_link TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'en',
		status TEXT NOT NULL,
		mentions INTEGER NOT NULL DEFAULT 1,
		spread_count INTEGER NOT NULL DEFAULT 0,
		geo TEXT,
		media_analysis TEXT,
		cluster_id TEXT,
		embedding TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
	CREATE INDEX IF NOT EXISTS idx_claims_source_type ON claims(source_type);
	CREATE INDEX IF NOT EXISTS idx_claims_cluster ON claims(cluster_id);
	CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(created_at);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL UNIQUE,
		verdict TEXT NOT NULL,
		verdict_percentage INTEGER NOT NULL,
		confidence REAL NOT NULL,
		risk_score REAL NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		key_findings TEXT,
		features TEXT NOT NULL,
		sources TEXT,
		web_search TEXT,
		charts TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (claim_id) REFERENCES claims(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_verdict ON analyses(verdict);
	CREATE INDEX IF NOT EXISTS idx_analyses_risk ON analyses(risk_score);

	CREATE TABLE IF NOT EXISTS clusters (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		risk_score REAL NOT NULL DEFAULT 0,
		risk_tier TEXT NOT NULL,
		trend TEXT NOT NULL,
		geo_spread TEXT,
		channel_spread TEXT,
		total_mentions INTEGER NOT NULL DEFAULT 0,
		tags TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clusters_risk ON clusters(risk_score);
	CREATE INDEX IF NOT EXISTS idx_clusters_tier ON clusters(risk_tier);

	CREATE TABLE IF NOT EXISTS cluster_members (
		cluster_id TEXT NOT NULL,
		claim_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (cluster_id, claim_id),
		FOREIGN KEY (cluster_id) REFERENCES clusters(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_cluster_members_claim ON cluster_members(claim_id);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_logs(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_logs(target_type, target_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

type ResetCounts struct {
	Claims   int64 `json:"claims"`
	Analyses int64 `json:"analyses"`
	Clusters int64 `json:"clusters"`
}

// Reset deletes every claim, analysis and cluster. Audit logs are kept.
func (c *Client) Reset(ctx context.Context) (*ResetCounts, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	var counts ResetCounts
	steps := []struct {
		query string
		dest  *int64
	}{
		{"DELETE FROM analyses", &counts.Analyses},
		{"DELETE FROM cluster_members", nil},
		{"DELETE FROM clusters", &counts.Clusters},
		{"DELETE FROM claims", &counts.Claims},
	}

	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query)
		if err != nil {
			return nil, fmt.Errorf("failed to reset: %w", err)
		}
		if step.dest != nil {
			*step.dest, _ = res.RowsAffected()
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reset: %w", err)
	}

	logger.Warn("Store reset",
		zap.Int64("claims", counts.Claims),
		zap.Int64("analyses", counts.Analyses),
		zap.Int64("clusters", counts.Clusters),
	)

	return &counts, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// marshalNullable stores nil values as SQL NULL.
func marshalNullable(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(ns sql.NullString, dest any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dest)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
