package models

import (
	"fmt"
	"time"
)

type SourceType string

const (
	SourceRSS      SourceType = "rss"
	SourceTwitter  SourceType = "twitter"
	SourceTelegram SourceType = "telegram"
	SourceYouTube  SourceType = "youtube"
	SourceImage    SourceType = "image"
	SourceVideo    SourceType = "video"
	SourceWeb      SourceType = "web"
	SourceManual   SourceType = "manual"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceRSS, SourceTwitter, SourceTelegram, SourceYouTube, SourceImage, SourceVideo, SourceWeb, SourceManual:
		return true
	}
	return false
}

type ClaimStatus string

const (
	StatusNew       ClaimStatus = "new"
	StatusAnalyzing ClaimStatus = "analyzing"
	StatusAnalyzed  ClaimStatus = "analyzed"
	StatusEscalated ClaimStatus = "escalated"
)

func (s ClaimStatus) Valid() bool {
	switch s {
	case StatusNew, StatusAnalyzing, StatusAnalyzed, StatusEscalated:
		return true
	}
	return false
}

// CanTransition reports whether a claim may move from s to next. Staying in
// the same state is allowed so re-runs are idempotent.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	if s == next || next == StatusEscalated {
		return true
	}
	switch s {
	case StatusNew:
		return next == StatusAnalyzing
	case StatusAnalyzing:
		return next == StatusAnalyzed
	case StatusEscalated:
		return next == StatusAnalyzed
	}
	return false
}

type Verdict string

const (
	VerdictTrue         Verdict = "true"
	VerdictFalse        Verdict = "false"
	VerdictMixed        Verdict = "mixed"
	VerdictUnverified   Verdict = "unverified"
	VerdictMisleading   Verdict = "misleading"
	VerdictOutOfContext Verdict = "out-of-context"
	VerdictSatire       Verdict = "satire"
)

var Verdicts = []Verdict{
	VerdictTrue, VerdictFalse, VerdictMixed, VerdictUnverified,
	VerdictMisleading, VerdictOutOfContext, VerdictSatire,
}

func ParseVerdict(s string) (Verdict, error) {
	for _, v := range Verdicts {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown verdict %q", s)
}

type Sentiment string

const (
	SentimentFear      Sentiment = "fear"
	SentimentAnger     Sentiment = "anger"
	SentimentNeutral   Sentiment = "neutral"
	SentimentHope      Sentiment = "hope"
	SentimentSadness   Sentiment = "sadness"
	SentimentConfusion Sentiment = "confusion"
	SentimentSurprise  Sentiment = "surprise"
	SentimentDisgust   Sentiment = "disgust"
	SentimentTrust     Sentiment = "trust"
)

func ParseSentiment(s string) (Sentiment, error) {
	switch v := Sentiment(s); v {
	case SentimentFear, SentimentAnger, SentimentNeutral, SentimentHope, SentimentSadness,
		SentimentConfusion, SentimentSurprise, SentimentDisgust, SentimentTrust:
		return v, nil
	}
	return "", fmt.Errorf("unknown sentiment %q", s)
}

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

type Trend string

const (
	TrendAccelerating Trend = "accelerating"
	TrendStable       Trend = "stable"
	TrendDeclining    Trend = "declining"
)

type GeoHint struct {
	Country string  `json:"country,omitempty"`
	Region  string  `json:"region,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// MediaAnalysis is the payload produced by the external vision service for
// image and video claims.
type MediaAnalysis struct {
	OCRText   string          `json:"ocrText,omitempty"`
	People    []MediaPerson   `json:"people,omitempty"`
	Objects   []string        `json:"objects,omitempty"`
	Scene     string          `json:"scene,omitempty"`
	Forensics *MediaForensics `json:"forensics,omitempty"`
	Summary   string          `json:"summary,omitempty"`
}

type MediaPerson struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

type MediaForensics struct {
	Manipulated bool     `json:"manipulated"`
	Flags       []string `json:"flags,omitempty"`
	Score       float64  `json:"score,omitempty"`
}

type Claim struct {
	ID            string         `json:"_id"`
	Text          string         `json:"text"`
	CanonicalText string         `json:"canonicalText"`
	SourceType    SourceType     `json:"sourceType"`
	SourceLink    string         `json:"sourceLink,omitempty"`
	Language      string         `json:"language"`
	Status        ClaimStatus    `json:"status"`
	Mentions      int            `json:"mentions"`
	SpreadCount   int            `json:"spreadCount"`
	Geo           *GeoHint       `json:"geo,omitempty"`
	MediaAnalysis *MediaAnalysis `json:"mediaAnalysis,omitempty"`
	ClusterID     string         `json:"clusterId,omitempty"`
	Embedding     []float32      `json:"-"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (c *Claim) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

type Features struct {
	Sentiment              Sentiment `json:"sentiment"`
	ManipulationLikelihood float64   `json:"manipulationLikelihood"`
	SourceReliability      float64   `json:"sourceReliability"`
	SpreadVelocity         float64   `json:"spreadVelocity"`
	Toxicity               float64   `json:"toxicity"`
}

type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

type EvidenceSource struct {
	Type        string      `json:"type"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Reliability Reliability `json:"reliability"`
	Snippet     string      `json:"snippet,omitempty"`
	Date        string      `json:"date,omitempty"`
}

type PersonInfo struct {
	Name          string   `json:"name"`
	Title         string   `json:"title,omitempty"`
	VerifiedFacts []string `json:"verifiedFacts,omitempty"`
	RelevantNews  string   `json:"relevantNews,omitempty"`
}

type ImageOrigin struct {
	Found               bool     `json:"found"`
	OriginalSource      string   `json:"originalSource,omitempty"`
	DateFirstSeen       string   `json:"dateFirstSeen,omitempty"`
	PreviousUsage       []string `json:"previousUsage,omitempty"`
	IsManipulated       bool     `json:"isManipulated"`
	ManipulationDetails string   `json:"manipulationDetails,omitempty"`
}

type FactCheckHit struct {
	Organization string `json:"organization"`
	Verdict      string `json:"verdict,omitempty"`
	URL          string `json:"url,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

type SearchResult struct {
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Type        string      `json:"type,omitempty"`
	Reliability Reliability `json:"reliability,omitempty"`
	Snippet     string      `json:"snippet,omitempty"`
	Date        string      `json:"date,omitempty"`
	Verdict     string      `json:"verdict,omitempty"`
}

// ClaimAssessment is a verdict produced as a byproduct of web research.
type ClaimAssessment struct {
	Verdict     Verdict  `json:"verdict"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	KeyEvidence []string `json:"keyEvidence,omitempty"`
}

// ResearchResult is the structured context gathered before synthesizing a
// verdict.
type ResearchResult struct {
	SearchResults    []SearchResult   `json:"searchResults,omitempty"`
	PeopleInfo       []PersonInfo     `json:"peopleInfo,omitempty"`
	ImageOrigin      *ImageOrigin     `json:"imageOrigin,omitempty"`
	FactCheckResults []FactCheckHit   `json:"factCheckResults,omitempty"`
	ClaimAnalysis    *ClaimAssessment `json:"claimAnalysis,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// WebSearchResults is the persisted subset of a ResearchResult.
type WebSearchResults struct {
	PeopleInfo       []PersonInfo   `json:"peopleInfo,omitempty"`
	ImageOrigin      *ImageOrigin   `json:"imageOrigin,omitempty"`
	FactCheckResults []FactCheckHit `json:"factCheckResults,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
}

type MentionPoint struct {
	T          time.Time `json:"t"`
	Count      int       `json:"count"`
	Sources    int       `json:"sources"`
	Engagement float64   `json:"engagement"`
	Trend      string    `json:"trend"`
}

type Charts struct {
	RiskTrend        []float64      `json:"riskTrend"`
	MentionsOverTime []MentionPoint `json:"mentionsOverTime"`
}

type Analysis struct {
	ID                string            `json:"_id"`
	ClaimID           string            `json:"claimId"`
	Verdict           Verdict           `json:"verdict"`
	VerdictPercentage int               `json:"verdictPercentage"`
	Confidence        float64           `json:"confidence"`
	RiskScore         float64           `json:"riskScore"`
	Rationale         string            `json:"rationale"`
	KeyFindings       []string          `json:"keyFindings"`
	Features          Features          `json:"features"`
	Sources           []EvidenceSource  `json:"sources"`
	WebSearch         *WebSearchResults `json:"webSearchResults,omitempty"`
	Charts            Charts            `json:"charts"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

type Cluster struct {
	ID            string         `json:"_id"`
	Title         string         `json:"title"`
	Summary       string         `json:"summary"`
	ClaimIDs      []string       `json:"claimIds"`
	RiskScore     float64        `json:"riskScore"`
	RiskTier      RiskTier       `json:"riskTier"`
	Trend         Trend          `json:"trend"`
	GeoSpread     map[string]int `json:"geoSpread"`
	ChannelSpread map[string]int `json:"channelSpread"`
	TotalMentions int            `json:"totalMentions"`
	Tags          []string       `json:"tags"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type AuditAction string

const (
	AuditCreate   AuditAction = "create"
	AuditAnalyze  AuditAction = "analyze"
	AuditUpdate   AuditAction = "update"
	AuditEscalate AuditAction = "escalate"
	AuditResolve  AuditAction = "resolve"
	AuditPublish  AuditAction = "publish"
	AuditDelete   AuditAction = "delete"
	AuditReset    AuditAction = "reset"
)

type TargetType string

const (
	TargetClaim    TargetType = "claim"
	TargetCluster  TargetType = "cluster"
	TargetAnalysis TargetType = "analysis"
	TargetSystem   TargetType = "system"
)

type AuditLog struct {
	ID         int64          `json:"id"`
	ActorID    string         `json:"actorId"`
	Action     AuditAction    `json:"action"`
	TargetType TargetType     `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// SystemActor attributes automated actions in the audit log.
const SystemActor = "system"

type ClaimFilter struct {
	Status     ClaimStatus
	SourceType SourceType
	ClusterID  string
	Search     string
	Limit      int
	Offset     int
}

type ClusterFilter struct {
	RiskTier RiskTier
	Trend    Trend
	Limit    int
	Offset   int
}

type AuditFilter struct {
	ActorID    string
	Action     AuditAction
	TargetType TargetType
	TargetID   string
	Limit      int
	Offset     int
}
