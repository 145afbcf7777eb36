package review

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/events"
	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

var (
	ErrNothingToEscalate = errors.New("nothing to escalate")
	ErrNoTarget          = errors.New("claimId or clusterId is required")
)

type Store interface {
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	EscalateClaims(ctx context.Context, ids []string) (int64, error)
	UpdateAnalysisVerdict(ctx context.Context, claimID string, verdict models.Verdict) error
	UpdateClaimStatus(ctx context.Context, id string, next models.ClaimStatus) error
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event)
}

type EscalateRequest struct {
	ClaimID   string `json:"claimId"`
	ClusterID string `json:"clusterId"`
	Reason    string `json:"reason"`
}

type EscalateResult struct {
	Message   string `json:"message"`
	Escalated int64  `json:"escalated"`
}

type ResolveRequest struct {
	ClaimID string         `json:"claimId"`
	Verdict models.Verdict `json:"verdict"`
	Notes   string         `json:"notes"`
}

// Service handles the reviewer workflow. Manual escalation is always
// allowed; ShouldEscalate only drives the automatic path.
type Service struct {
	store     Store
	publisher Publisher
}

func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Escalate marks a claim, or every member of a cluster, for review. A claim
// id takes precedence when both are given.
func (s *Service) Escalate(ctx context.Context, actor string, req EscalateRequest) (*EscalateResult, error) {
	var (
		ids        []string
		targetType models.TargetType
		targetID   string
	)

	switch {
	case req.ClaimID != "":
		if _, err := s.store.GetClaim(ctx, req.ClaimID); err != nil {
			return nil, err
		}
		ids = []string{req.ClaimID}
		targetType, targetID = models.TargetClaim, req.ClaimID
	case req.ClusterID != "":
		cluster, err := s.store.GetCluster(ctx, req.ClusterID)
		if err != nil {
			return nil, err
		}
		ids = cluster.ClaimIDs
		targetType, targetID = models.TargetCluster, req.ClusterID
	default:
		return nil, ErrNoTarget
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%s %s: %w", targetType, targetID, ErrNothingToEscalate)
	}

	n, err := s.store.EscalateClaims(ctx, ids)
	if err != nil {
		return nil, err
	}

	metrics.EscalationsTotal.WithLabelValues("manual").Inc()
	s.audit(ctx, &models.AuditLog{
		ActorID:    actor,
		Action:     models.AuditEscalate,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata: map[string]any{
			"reason":   req.Reason,
			"claimIds": ids,
		},
	})
	for _, id := range ids {
		s.publish(ctx, events.Event{Type: events.TypeClaimEscalated, ClaimID: id, Status: models.StatusEscalated})
	}

	logger.Info("Escalated for review",
		zap.String("target_type", string(targetType)),
		zap.String("target_id", targetID),
		zap.Int64("claims", n),
	)

	message := "Claim escalated for review"
	if targetType == models.TargetCluster {
		message = fmt.Sprintf("Cluster escalated for review (%d claims)", n)
	}
	return &EscalateResult{Message: message, Escalated: n}, nil
}

// AutoEscalate records a policy-driven escalation. The caller has already
// moved the claim to escalated.
func (s *Service) AutoEscalate(ctx context.Context, a *models.Analysis) {
	metrics.EscalationsTotal.WithLabelValues("automatic").Inc()
	s.audit(ctx, &models.AuditLog{
		ActorID:    models.SystemActor,
		Action:     models.AuditEscalate,
		TargetType: models.TargetClaim,
		TargetID:   a.ClaimID,
		Metadata: map[string]any{
			"reason":     "automatic",
			"riskScore":  a.RiskScore,
			"confidence": a.Confidence,
		},
	})
}

// Resolve overwrites the stored verdict and returns the claim to analyzed.
func (s *Service) Resolve(ctx context.Context, actor string, req ResolveRequest) error {
	if req.ClaimID == "" {
		return ErrNoTarget
	}
	if _, err := models.ParseVerdict(string(req.Verdict)); err != nil {
		return err
	}

	if err := s.store.UpdateAnalysisVerdict(ctx, req.ClaimID, req.Verdict); err != nil {
		return err
	}
	if err := s.store.UpdateClaimStatus(ctx, req.ClaimID, models.StatusAnalyzed); err != nil {
		return err
	}

	s.audit(ctx, &models.AuditLog{
		ActorID:    actor,
		Action:     models.AuditResolve,
		TargetType: models.TargetClaim,
		TargetID:   req.ClaimID,
		Metadata: map[string]any{
			"verdict": string(req.Verdict),
			"notes":   req.Notes,
		},
	})
	s.publish(ctx, events.Event{
		Type:    events.TypeClaimResolved,
		ClaimID: req.ClaimID,
		Status:  models.StatusAnalyzed,
		Verdict: req.Verdict,
	})

	logger.Info("Claim resolved",
		zap.String("claim_id", req.ClaimID),
		zap.String("verdict", string(req.Verdict)),
	)
	return nil
}

func (s *Service) audit(ctx context.Context, entry *models.AuditLog) {
	if err := s.store.InsertAuditLog(ctx, entry); err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", string(entry.Action)),
			zap.String("target_id", entry.TargetID),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, e)
	}
}
