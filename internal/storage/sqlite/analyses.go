package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

const analysisColumns = `id, claim_id, verdict, verdict_percentage, confidence, risk_score, rationale,
	key_findings, features, sources, web_search, charts, created_at, updated_at`

// ReplaceAnalysis stores a as the only analysis of its claim. The write is a
// single statement keyed by claim_id, so concurrent re-runs cannot leave two
// rows behind.
func (c *Client) ReplaceAnalysis(ctx context.Context, a *models.Analysis) error {
	keyFindings, err := json.Marshal(nonNilStrings(a.KeyFindings))
	if err != nil {
		return fmt.Errorf("failed to marshal key findings: %w", err)
	}
	features, err := json.Marshal(a.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	sources, err := json.Marshal(a.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	webSearch, err := marshalNullable(a.WebSearch, a.WebSearch == nil)
	if err != nil {
		return fmt.Errorf("failed to marshal web search results: %w", err)
	}
	charts, err := json.Marshal(a.Charts)
	if err != nil {
		return fmt.Errorf("failed to marshal charts: %w", err)
	}

	query := `
		INSERT INTO analyses (` + analysisColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
			id = excluded.id,
			verdict = excluded.verdict,
			verdict_percentage = excluded.verdict_percentage,
			confidence = excluded.confidence,
			risk_score = excluded.risk_score,
			rationale = excluded.rationale,
			key_findings = excluded.key_findings,
			features = excluded.features,
			sources = excluded.sources,
			web_search = excluded.web_search,
			charts = excluded.charts,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`

	_, err = c.db.ExecContext(ctx, query,
		a.ID,
		a.ClaimID,
		string(a.Verdict),
		a.VerdictPercentage,
		a.Confidence,
		a.RiskScore,
		a.Rationale,
		string(keyFindings),
		string(features),
		string(sources),
		webSearch,
		string(charts),
		toMillis(a.CreatedAt),
		toMillis(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to replace analysis: %w", err)
	}

	logger.Debug("Analysis stored",
		zap.String("analysis_id", a.ID),
		zap.String("claim_id", a.ClaimID),
		zap.String("verdict", string(a.Verdict)),
	)
	return nil
}

func (c *Client) GetAnalysisByClaim(ctx context.Context, claimID string) (*models.Analysis, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE claim_id = ?`, claimID)

	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis for claim %s: %w", claimID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

func (c *Client) GetAnalysesByClaims(ctx context.Context, claimIDs []string) (map[string]*models.Analysis, error) {
	result := make(map[string]*models.Analysis, len(claimIDs))
	if len(claimIDs) == 0 {
		return result, nil
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE claim_id IN (`+placeholders(len(claimIDs))+`)`,
		stringArgs(claimIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		result[a.ClaimID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return result, nil
}

func (c *Client) CountAnalyses(ctx context.Context, claimID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses WHERE claim_id = ?`, claimID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return n, nil
}

// UpdateAnalysisVerdict overwrites only the verdict of a claim's analysis.
func (c *Client) UpdateAnalysisVerdict(ctx context.Context, claimID string, verdict models.Verdict) error {
	res, err := c.db.ExecContext(ctx, `UPDATE analyses SET verdict = ?, updated_at = ? WHERE claim_id = ?`,
		string(verdict), toMillis(time.Now()), claimID)
	if err != nil {
		return fmt.Errorf("failed to update analysis verdict: %w", err)
	}
	return requireAffected(res, "analysis for claim", claimID)
}

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	var a models.Analysis
	var verdict string
	var keyFindings, features, sources, webSearch, charts sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&a.ID,
		&a.ClaimID,
		&verdict,
		&a.VerdictPercentage,
		&a.Confidence,
		&a.RiskScore,
		&a.Rationale,
		&keyFindings,
		&features,
		&sources,
		&webSearch,
		&charts,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Verdict = models.Verdict(verdict)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)

	decoders := []struct {
		name string
		src  sql.NullString
		dest any
	}{
		{"key findings", keyFindings, &a.KeyFindings},
		{"features", features, &a.Features},
		{"sources", sources, &a.Sources},
		{"web search results", webSearch, &a.WebSearch},
		{"charts", charts, &a.Charts},
	}
	for _, d := range decoders {
		if err := unmarshalNullable(d.src, d.dest); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", d.name, err)
		}
	}

	return &a, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
