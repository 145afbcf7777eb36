package outputs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

var (
	ErrNoTarget   = errors.New("claimId or clusterId is required")
	ErrNoAnalysis = errors.New("analysis not found for this claim")
)

// Formats lists every supported output type, in the order they are
// generated when none are requested.
var Formats = []string{"whatsapp", "sms", "social", "explainer"}

type Request struct {
	ClaimID     string   `json:"claimId"`
	ClusterID   string   `json:"clusterId"`
	OutputTypes []string `json:"outputTypes"`
}

type OutputError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Result maps each requested type to its text, or nil when it failed.
type Result struct {
	ClaimID string             `json:"claimId"`
	Verdict models.Verdict     `json:"verdict"`
	Outputs map[string]*string `json:"outputs"`
	Errors  []OutputError      `json:"errors"`
}

type Store interface {
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	GetAnalysisByClaim(ctx context.Context, claimID string) (*models.Analysis, error)
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type Writer interface {
	Available() bool
	GenerateCorrective(ctx context.Context, req llm.CorrectiveRequest) (string, error)
}

// Generator writes shareable corrections for an analyzed claim. Each type
// is generated independently so one failure does not lose the others.
type Generator struct {
	store  Store
	writer Writer
}

func NewGenerator(store Store, writer Writer) *Generator {
	return &Generator{store: store, writer: writer}
}

func (g *Generator) Generate(ctx context.Context, actor string, req Request) (*Result, error) {
	claimID := req.ClaimID
	if claimID == "" {
		if req.ClusterID == "" {
			return nil, ErrNoTarget
		}
		cluster, err := g.store.GetCluster(ctx, req.ClusterID)
		if err != nil {
			return nil, err
		}
		if len(cluster.ClaimIDs) == 0 {
			return nil, fmt.Errorf("cluster %s has no claims: %w", cluster.ID, ErrNoAnalysis)
		}
		claimID = cluster.ClaimIDs[0]
	}

	claim, err := g.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	a, err := g.store.GetAnalysisByClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAnalysis, err)
	}

	types := req.OutputTypes
	if len(types) == 0 {
		types = Formats
	}

	cr := llm.CorrectiveRequest{
		Claim:       claim.Text,
		Verdict:     a.Verdict,
		Confidence:  a.Confidence,
		Rationale:   a.Rationale,
		KeyFindings: a.KeyFindings,
	}
	if cr.Rationale == "" {
		cr.Rationale = "Unable to determine"
	}

	res := &Result{
		ClaimID: claim.ID,
		Verdict: a.Verdict,
		Outputs: make(map[string]*string, len(types)),
		Errors:  []OutputError{},
	}
	for _, t := range types {
		cr.Format = t
		text, err := g.write(ctx, cr)
		if err != nil {
			logger.Warn("Output generation failed",
				zap.String("claim_id", claim.ID),
				zap.String("output_type", t),
				zap.Error(err),
			)
			res.Outputs[t] = nil
			res.Errors = append(res.Errors, OutputError{Type: t, Error: err.Error()})
			continue
		}
		res.Outputs[t] = &text
		logger.Info("Output generated",
			zap.String("claim_id", claim.ID),
			zap.String("output_type", t),
			zap.Int("length", len(text)),
		)
	}

	if err := g.store.InsertAuditLog(ctx, &models.AuditLog{
		ActorID:    actor,
		Action:     models.AuditPublish,
		TargetType: models.TargetClaim,
		TargetID:   claim.ID,
		Metadata: map[string]any{
			"outputTypes": types,
			"failed":      len(res.Errors),
		},
	}); err != nil {
		logger.Warn("Failed to log audit", zap.Error(err))
	}

	return res, nil
}

func (g *Generator) write(ctx context.Context, req llm.CorrectiveRequest) (string, error) {
	if !supported(req.Format) {
		return "", fmt.Errorf("unsupported output type %q", req.Format)
	}
	if g.writer == nil || !g.writer.Available() {
		return Stub(req), nil
	}
	return g.writer.GenerateCorrective(ctx, req)
}

// Stub is the template used when no LLM is configured.
func Stub(req llm.CorrectiveRequest) string {
	base := fmt.Sprintf("Fact Check: This claim was marked as %s.\n%s", req.Verdict, req.Rationale)

	switch req.Format {
	case "whatsapp":
		return "✓ " + base + "\n\nℹ️ Verify sources before sharing."
	case "sms":
		return fmt.Sprintf("FC: Claim marked %s. Check sources.", req.Verdict)
	case "social":
		return fmt.Sprintf("🔍 Fact-check: %s #FactCheck", req.Verdict)
	}
	return base
}

func supported(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}
