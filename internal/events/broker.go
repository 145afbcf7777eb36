package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
)

const (
	TypeAnalysisCompleted = "analysis.completed"
	TypeAnalysisFailed    = "analysis.failed"
	TypeClaimEscalated    = "claim.escalated"
	TypeClaimResolved     = "claim.resolved"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before further events to it are dropped.
const subscriberBuffer = 8

type Event struct {
	Type      string             `json:"type"`
	ClaimID   string             `json:"claimId"`
	Status    models.ClaimStatus `json:"status,omitempty"`
	Verdict   models.Verdict     `json:"verdict,omitempty"`
	RiskScore float64            `json:"riskScore,omitempty"`
	Error     string             `json:"error,omitempty"`
	At        time.Time          `json:"at"`
}

func Topic(claimID string) string {
	return "claim:" + claimID
}

// Mirror forwards events to an external bus such as Redis pub/sub.
type Mirror interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Broker fans claim events out to in-process subscribers and, when a
// mirror is set, to other instances.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	mirror Mirror
}

func NewBroker(mirror Mirror) *Broker {
	return &Broker{
		subs:   make(map[string]map[chan Event]struct{}),
		mirror: mirror,
	}
}

// Publish never blocks on subscribers.
func (b *Broker) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	topic := Topic(e.ClaimID)

	b.mu.RLock()
	for ch := range b.subs[topic] {
		select {
		case ch <- e:
		default:
			logger.Warn("Dropping event for slow subscriber",
				zap.String("topic", topic),
				zap.String("type", e.Type),
			)
		}
	}
	b.mu.RUnlock()

	if b.mirror == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	if err := b.mirror.Publish(ctx, topic, payload); err != nil {
		logger.Warn("Failed to mirror event", zap.String("topic", topic), zap.Error(err))
	}
}

// Subscribe follows one claim. The returned cancel func must be called to
// release the subscription; it closes the channel.
func (b *Broker) Subscribe(claimID string) (<-chan Event, func()) {
	topic := Topic(claimID)
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan Event]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Broker) Subscribers(claimID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[Topic(claimID)])
}
