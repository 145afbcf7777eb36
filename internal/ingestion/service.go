package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/similarity"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/tasks"
	"github.com/infosage/backend/pkg/logger"
)

const (
	MaxTextLength = 10000
	// ClusterHintThreshold is the similarity above which a new claim
	// inherits the cluster of its nearest neighbour.
	ClusterHintThreshold = 0.8
)

var languagePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})?$`)

// ValidationError names the request field that was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type CreateRequest struct {
	Text          string                `json:"text"`
	SourceType    models.SourceType     `json:"sourceType"`
	SourceLink    string                `json:"sourceLink"`
	Language      string                `json:"language"`
	Geo           *models.GeoHint       `json:"geo"`
	MediaAnalysis *models.MediaAnalysis `json:"mediaAnalysis"`
}

type Store interface {
	InsertClaim(ctx context.Context, claim *models.Claim) error
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type Embedder interface {
	Embed(ctx context.Context, text, language string) []float32
}

type Submitter interface {
	Submit(t tasks.Task) error
}

// Service accepts new claims. Creation never waits on analysis: the claim is
// stored with status new and analysis is queued as a detached task.
type Service struct {
	store     Store
	embedder  Embedder
	similar   similarity.Searcher
	submitter Submitter
}

func NewService(store Store, embedder Embedder, similar similarity.Searcher, submitter Submitter) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		similar:   similar,
		submitter: submitter,
	}
}

// Validate normalizes req in place and reports the first invalid field.
func (r *CreateRequest) Validate() error {
	r.Text = strings.TrimSpace(strings.ReplaceAll(r.Text, "\x00", ""))
	if r.Text == "" {
		return &ValidationError{Field: "text", Message: "Claim text is required"}
	}
	if utf8.RuneCountInString(r.Text) > MaxTextLength {
		return &ValidationError{Field: "text", Message: fmt.Sprintf("Claim text exceeds %d characters", MaxTextLength)}
	}

	if r.SourceType == "" {
		r.SourceType = models.SourceManual
	}
	if !r.SourceType.Valid() {
		return &ValidationError{Field: "sourceType", Message: fmt.Sprintf("Unknown source type %q", r.SourceType)}
	}

	if r.SourceLink != "" && !isValidURL(r.SourceLink) {
		return &ValidationError{Field: "sourceLink", Message: "Invalid URL format"}
	}

	if r.Language == "" {
		r.Language = "en"
	}
	if !languagePattern.MatchString(r.Language) {
		return &ValidationError{Field: "language", Message: "Invalid language code"}
	}
	r.Language = strings.ToLower(r.Language)

	if g := r.Geo; g != nil {
		if g.Lat < -90 || g.Lat > 90 {
			return &ValidationError{Field: "geo.lat", Message: "Latitude must be within [-90, 90]"}
		}
		if g.Lng < -180 || g.Lng > 180 {
			return &ValidationError{Field: "geo.lng", Message: "Longitude must be within [-180, 180]"}
		}
	}
	return nil
}

// CreateClaim validates, embeds and stores a claim, then queues its
// analysis. Embedding and similarity failures never block creation.
func (s *Service) CreateClaim(ctx context.Context, actor string, req CreateRequest) (*models.Claim, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	claim := &models.Claim{
		ID:            uuid.New().String(),
		Text:          req.Text,
		CanonicalText: Canonicalize(req.Text),
		SourceType:    req.SourceType,
		SourceLink:    req.SourceLink,
		Language:      req.Language,
		Status:        models.StatusNew,
		Mentions:      1,
		Geo:           req.Geo,
		MediaAnalysis: req.MediaAnalysis,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	claim.Embedding = s.embedder.Embed(ctx, claim.CanonicalText, claim.Language)
	claim.ClusterID = s.clusterHint(ctx, claim)

	if err := s.store.InsertClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}
	metrics.ClaimsCreated.WithLabelValues(string(claim.SourceType)).Inc()

	if err := s.store.InsertAuditLog(ctx, &models.AuditLog{
		ActorID:    actor,
		Action:     models.AuditCreate,
		TargetType: models.TargetClaim,
		TargetID:   claim.ID,
		Metadata:   map[string]any{"sourceType": string(claim.SourceType)},
	}); err != nil {
		logger.Error("Failed to write audit log", zap.String("claim_id", claim.ID), zap.Error(err))
	}

	if s.submitter != nil {
		if err := s.submitter.Submit(tasks.Task{ClaimID: claim.ID, Actor: actor}); err != nil {
			logger.Warn("Failed to queue claim analysis",
				zap.String("claim_id", claim.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Claim created",
		zap.String("claim_id", claim.ID),
		zap.String("source_type", string(claim.SourceType)),
		zap.String("cluster_hint", claim.ClusterID),
	)
	return claim, nil
}

// clusterHint returns the cluster of the most similar existing claim, if
// any is above the hint threshold.
func (s *Service) clusterHint(ctx context.Context, claim *models.Claim) string {
	if s.similar == nil || !claim.HasEmbedding() {
		return ""
	}

	matches, err := s.similar.FindSimilar(ctx, claim.Embedding, ClusterHintThreshold)
	if err != nil {
		logger.Warn("Similarity lookup failed",
			zap.String("stage", "similarity"),
			zap.Error(err),
		)
		return ""
	}
	for _, m := range matches {
		if m.Claim.ClusterID != "" {
			return m.Claim.ClusterID
		}
	}
	return ""
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
