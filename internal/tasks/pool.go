package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/pkg/logger"
)

var (
	ErrNotRunning = errors.New("task pool is not running")
	ErrQueueFull  = errors.New("task queue is full")
)

type Task struct {
	ClaimID string
	Actor   string
}

// Handler processes a task. Errors are logged; the handler is expected to
// record its own failure state.
type Handler func(ctx context.Context, t Task) error

type Config struct {
	Workers   int
	QueueSize int
	TaskTimeout time.Duration
}

// Pool runs tasks on a fixed set of workers, detached from the request that
// submitted them.
type Pool struct {
	cfg     Config
	handler Handler
	queue   chan Task

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex

	processed atomic.Int64
	failed    atomic.Int64
}

func NewPool(cfg Config, handler Handler) (*Pool, error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	return &Pool{cfg: cfg, handler: handler}, nil
}

func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return errors.New("task pool is already running")
	}

	// Stop closes the queue, so every start gets a fresh one.
	p.queue = make(chan Task, p.cfg.QueueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running.Store(true)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(p.ctx, i, p.queue)
	}

	logger.Info("Task pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_size", p.cfg.QueueSize),
	)
	return nil
}

// Submit queues a task without blocking.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return ErrNotRunning
	}

	select {
	case p.queue <- t:
		metrics.TaskQueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		return fmt.Errorf("claim %s: %w", t.ClaimID, ErrQueueFull)
	}
}

// Stop stops accepting tasks and waits for queued ones to finish. When ctx
// ends first, in-flight tasks are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Task pool stopped",
			zap.Int64("processed", p.processed.Load()),
			zap.Int64("failed", p.failed.Load()),
		)
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		logger.Warn("Task pool stop timed out, in-flight tasks cancelled")
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context, id int, queue <-chan Task) {
	defer p.wg.Done()

	for t := range queue {
		metrics.TaskQueueDepth.Set(float64(len(queue)))
		p.run(ctx, id, t)
	}
}

func (p *Pool) run(parent context.Context, id int, t Task) {
	ctx, cancel := context.WithTimeout(parent, p.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			logger.Error("Task panicked",
				zap.Int("worker", id),
				zap.String("claim_id", t.ClaimID),
				zap.Any("panic", r),
			)
		}
	}()

	p.processed.Add(1)
	if err := p.handler(ctx, t); err != nil {
		p.failed.Add(1)
		logger.Warn("Background task failed",
			zap.Int("worker", id),
			zap.String("claim_id", t.ClaimID),
			zap.Error(err),
		)
	}
}

type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Queued    int   `json:"queued"`
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Queued:    len(p.queue),
	}
}
