package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/infosage/backend/pkg/circuitbreaker"
	"github.com/infosage/backend/pkg/logger"
	"github.com/infosage/backend/pkg/retry"
)

// Client stores the narrative graph: claims linked to their cluster, the
// people they mention and the sources cited against them.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Person struct {
	Name  string
	Title string
}

type Source struct {
	URL         string
	Title       string
	Reliability string
}

// ClaimRecord is everything written for one analyzed claim.
type ClaimRecord struct {
	ClaimID    string
	Text       string
	SourceType string
	ClusterID  string
	Verdict    string
	RiskScore  float64
	People     []Person
	Sources    []Source
}

// RelatedClaim is a claim connected to another through a shared person or
// cluster.
type RelatedClaim struct {
	ClaimID string   `json:"claimId"`
	Text    string   `json:"text"`
	Verdict string   `json:"verdict"`
	Via     []string `json:"via"`
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

const (
	mergeClaimQuery = `
		MERGE (c:Claim {id: $claim_id})
		SET c.text = $text,
		    c.source_type = $source_type,
		    c.verdict = $verdict,
		    c.risk_score = $risk_score,
		    c.updated_at = timestamp()
		WITH c
		OPTIONAL MATCH (c)-[old:IN_CLUSTER|MENTIONS|CITES]->()
		DELETE old
	`
	mergeClusterQuery = `
		MATCH (c:Claim {id: $claim_id})
		MERGE (k:Cluster {id: $cluster_id})
		MERGE (c)-[:IN_CLUSTER]->(k)
	`
	mergePeopleQuery = `
		MATCH (c:Claim {id: $claim_id})
		UNWIND $people AS person
		MERGE (p:Person {name: person.name})
		SET p.title = coalesce(person.title, p.title)
		MERGE (c)-[:MENTIONS]->(p)
	`
	mergeSourcesQuery = `
		MATCH (c:Claim {id: $claim_id})
		UNWIND $sources AS source
		MERGE (s:Source {url: source.url})
		SET s.title = source.title,
		    s.reliability = source.reliability
		MERGE (c)-[:CITES]->(s)
	`
)

// RecordAnalysis replaces the claim's outgoing edges with the ones in rec.
func (c *Client) RecordAnalysis(ctx context.Context, rec *ClaimRecord) error {
	params := recordParams(rec)

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			if _, err := tx.Run(ctx, mergeClaimQuery, params); err != nil {
				return nil, err
			}
			if rec.ClusterID != "" {
				if _, err := tx.Run(ctx, mergeClusterQuery, params); err != nil {
					return nil, err
				}
			}
			if len(rec.People) > 0 {
				if _, err := tx.Run(ctx, mergePeopleQuery, params); err != nil {
					return nil, err
				}
			}
			if len(rec.Sources) > 0 {
				if _, err := tx.Run(ctx, mergeSourcesQuery, params); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record claim graph: %w", err)
	}

	logger.Debug("Claim graph recorded",
		zap.String("claim_id", rec.ClaimID),
		zap.Int("people", len(rec.People)),
		zap.Int("sources", len(rec.Sources)),
	)
	return nil
}

func recordParams(rec *ClaimRecord) map[string]any {
	people := make([]map[string]any, 0, len(rec.People))
	for _, p := range rec.People {
		entry := map[string]any{"name": p.Name}
		if p.Title != "" {
			entry["title"] = p.Title
		}
		people = append(people, entry)
	}

	sources := make([]map[string]any, 0, len(rec.Sources))
	for _, s := range rec.Sources {
		sources = append(sources, map[string]any{
			"url":         s.URL,
			"title":       s.Title,
			"reliability": s.Reliability,
		})
	}

	return map[string]any{
		"claim_id":    rec.ClaimID,
		"text":        rec.Text,
		"source_type": rec.SourceType,
		"cluster_id":  rec.ClusterID,
		"verdict":     rec.Verdict,
		"risk_score":  rec.RiskScore,
		"people":      people,
		"sources":     sources,
	}
}

// RelatedClaims returns claims sharing a person or cluster with claimID,
// most connected first.
func (c *Client) RelatedClaims(ctx context.Context, claimID string, limit int) ([]RelatedClaim, error) {
	if limit <= 0 {
		limit = 20
	}

	var related []RelatedClaim
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		related = related[:0]

		query := `
			MATCH (c:Claim {id: $claim_id})-[:MENTIONS|IN_CLUSTER]->(n)<-[:MENTIONS|IN_CLUSTER]-(other:Claim)
			WHERE other.id <> c.id
			WITH other, collect(DISTINCT coalesce(n.name, 'cluster:' + n.id)) AS via
			RETURN other.id AS id, other.text AS text, other.verdict AS verdict, via
			ORDER BY size(via) DESC, other.id
			LIMIT $limit
		`

		result, err := session.Run(ctx, query, map[string]any{
			"claim_id": claimID,
			"limit":    limit,
		})
		if err != nil {
			return fmt.Errorf("failed to query related claims: %w", err)
		}

		for result.Next(ctx) {
			related = append(related, relatedFromRecord(result.Record()))
		}
		if err := result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Related claims loaded", zap.String("claim_id", claimID), zap.Int("count", len(related)))
	return related, nil
}

func relatedFromRecord(record *neo4j.Record) RelatedClaim {
	id, _ := record.Get("id")
	text, _ := record.Get("text")
	verdict, _ := record.Get("verdict")
	via, _ := record.Get("via")

	rc := RelatedClaim{Via: []string{}}
	rc.ClaimID, _ = id.(string)
	rc.Text, _ = text.(string)
	rc.Verdict, _ = verdict.(string)
	if items, ok := via.([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				rc.Via = append(rc.Via, s)
			}
		}
	}
	return rc
}

// Reset removes every node this service writes.
func (c *Client) Reset(ctx context.Context) error {
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, `
			MATCH (n)
			WHERE n:Claim OR n:Cluster OR n:Person OR n:Source
			DETACH DELETE n
		`, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to reset graph: %w", err)
	}
	logger.Info("Narrative graph cleared")
	return nil
}
