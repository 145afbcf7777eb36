package builder

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/kg/neo4j"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

type Graph interface {
	RecordAnalysis(ctx context.Context, rec *neo4j.ClaimRecord) error
	RelatedClaims(ctx context.Context, claimID string, limit int) ([]neo4j.RelatedClaim, error)
}

// Builder turns an analyzed claim into graph nodes. A nil graph makes every
// call a no-op so the graph stays optional.
type Builder struct {
	graph Graph
}

func NewBuilder(graph Graph) *Builder {
	return &Builder{graph: graph}
}

func (b *Builder) Enabled() bool {
	return b != nil && b.graph != nil
}

// Record writes the claim, its cluster, the people identified by research
// or media analysis and the cited sources.
func (b *Builder) Record(ctx context.Context, claim *models.Claim, a *models.Analysis, research *models.ResearchResult) error {
	if !b.Enabled() {
		return nil
	}

	rec := BuildRecord(claim, a, research)
	if err := b.graph.RecordAnalysis(ctx, rec); err != nil {
		return err
	}

	logger.Info("Claim added to narrative graph",
		zap.String("claim_id", claim.ID),
		zap.Int("people", len(rec.People)),
		zap.Int("sources", len(rec.Sources)),
	)
	return nil
}

// Related returns claims connected to claimID, or an empty list when the
// graph is disabled.
func (b *Builder) Related(ctx context.Context, claimID string, limit int) ([]neo4j.RelatedClaim, error) {
	if !b.Enabled() {
		return []neo4j.RelatedClaim{}, nil
	}
	return b.graph.RelatedClaims(ctx, claimID, limit)
}

func BuildRecord(claim *models.Claim, a *models.Analysis, research *models.ResearchResult) *neo4j.ClaimRecord {
	rec := &neo4j.ClaimRecord{
		ClaimID:    claim.ID,
		Text:       claim.Text,
		SourceType: string(claim.SourceType),
		ClusterID:  claim.ClusterID,
	}
	if a != nil {
		rec.Verdict = string(a.Verdict)
		rec.RiskScore = a.RiskScore
		rec.Sources = sources(a.Sources)
	}

	var people []neo4j.Person
	if research != nil {
		for _, p := range research.PeopleInfo {
			people = append(people, neo4j.Person{Name: p.Name, Title: p.Title})
		}
	}
	if claim.MediaAnalysis != nil {
		for _, p := range claim.MediaAnalysis.People {
			people = append(people, neo4j.Person{Name: p.Name})
		}
	}
	rec.People = deduplicatePeople(people)
	return rec
}

// deduplicatePeople drops blank and repeated names, comparing
// case-insensitively. The first entry carrying a title wins.
func deduplicatePeople(people []neo4j.Person) []neo4j.Person {
	unique := []neo4j.Person{}
	seen := make(map[string]int)

	for _, p := range people {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		key := strings.ToLower(p.Name)
		if i, ok := seen[key]; ok {
			if unique[i].Title == "" {
				unique[i].Title = p.Title
			}
			continue
		}
		seen[key] = len(unique)
		unique = append(unique, p)
	}
	return unique
}

func sources(evidence []models.EvidenceSource) []neo4j.Source {
	out := []neo4j.Source{}
	seen := make(map[string]bool)
	for _, s := range evidence {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, neo4j.Source{URL: s.URL, Title: s.Title, Reliability: string(s.Reliability)})
	}
	return out
}
