package llm

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/infosage/backend/internal/metrics"
)

// Gate bounds the number of AI calls in flight across the process. Waiters
// are admitted in FIFO order. An optional limiter paces call starts.
type Gate struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	max      int64
	inFlight atomic.Int64
}

// NewGate creates a gate admitting maxConcurrent calls at once. A positive
// requestsPerSecond additionally paces admissions.
func NewGate(maxConcurrent int, requestsPerSecond float64) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	g := &Gate{
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
		max: int64(maxConcurrent),
	}
	if requestsPerSecond > 0 {
		burst := maxConcurrent
		g.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return g
}

// Do runs fn once a slot is free. It returns ctx.Err() if the context ends
// while waiting.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	metrics.LLMGateInFlight.Set(float64(g.inFlight.Add(1)))
	defer func() {
		metrics.LLMGateInFlight.Set(float64(g.inFlight.Add(-1)))
	}()

	return fn()
}

func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

func (g *Gate) Capacity() int64 {
	return g.max
}
