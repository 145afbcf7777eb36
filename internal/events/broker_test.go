package events

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/infosage/backend/internal/cache/redis"
	"github.com/infosage/backend/internal/storage/models"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBroker_DeliversByClaim(t *testing.T) {
	b := NewBroker(nil)

	c1, cancel1 := b.Subscribe("c1")
	defer cancel1()
	c2, cancel2 := b.Subscribe("c2")
	defer cancel2()

	b.Publish(context.Background(), Event{Type: TypeAnalysisCompleted, ClaimID: "c1", Verdict: models.VerdictFalse})

	e := receive(t, c1)
	assert.Equal(t, TypeAnalysisCompleted, e.Type)
	assert.Equal(t, models.VerdictFalse, e.Verdict)
	assert.False(t, e.At.IsZero())

	select {
	case <-c2:
		t.Fatal("c2 must not receive c1 events")
	default:
	}
}

func TestBroker_CancelClosesAndUnregisters(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("c1")
	assert.Equal(t, 1, b.Subscribers("c1"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers("c1"))

	b.Publish(context.Background(), Event{Type: TypeAnalysisFailed, ClaimID: "c1"})
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(nil)
	_, cancel := b.Subscribe("c1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(context.Background(), Event{Type: TypeAnalysisCompleted, ClaimID: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBroker_MirrorsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	rc, err := rediscache.NewClient(mr.Host(), port, "", 0, "infosage")
	require.NoError(t, err)
	defer rc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := rc.Subscribe(ctx, Topic("c9"))
	require.NoError(t, err)

	NewBroker(rc).Publish(ctx, Event{Type: TypeClaimEscalated, ClaimID: "c9", Status: models.StatusEscalated})

	select {
	case msg := <-msgs:
		var e Event
		require.NoError(t, json.Unmarshal(msg, &e))
		assert.Equal(t, TypeClaimEscalated, e.Type)
		assert.Equal(t, models.StatusEscalated, e.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no mirrored event")
	}
}
