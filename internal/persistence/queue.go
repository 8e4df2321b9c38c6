// Package persistence runs fire-and-forget side effects (state saves,
// downstream event publishing) off the bidding hot path.
package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Run after Close when the queue has drained
var ErrClosed = errors.New("queue closed")

// Job is a unit of asynchronous work
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue is a bounded worker pool with per-job retries. Enqueue never
// blocks; when the buffer is full the job is dropped and logged.
type Queue struct {
	jobs    chan Job
	workers int
	retries int
	backoff time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Config controls queue sizing and retry behaviour
type Config struct {
	Workers    int
	BufferSize int
	Retries    int
	Backoff    time.Duration
	Timeout    time.Duration
}

// NewQueue creates a queue; zero config fields get defaults
func NewQueue(cfg Config, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:    make(chan Job, cfg.BufferSize),
		workers: cfg.Workers,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Enqueue schedules a job without blocking. It returns false when the
// queue is closed or full.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.jobs <- job:
		return true
	default:
		q.logger.Error("persistence queue full, dropping job", "job", job.Name)
		return false
	}
}

// Run processes jobs until Close is called and the buffer drains, or ctx
// is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					q.process(ctx, job)
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// Close stops accepting jobs; Run returns once queued jobs finish
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

func (q *Queue) process(ctx context.Context, job Job) {
	delay := q.backoff
	var err error
	for attempt := 0; attempt <= q.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
		}

		jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
		err = job.Run(jobCtx)
		cancel()
		if err == nil {
			return
		}
		q.logger.Warn("job attempt failed", "job", job.Name, "attempt", attempt+1, "error", err)
	}
	q.logger.Error("persistence failure", "job", job.Name, "attempts", q.retries+1, "error", err)
}
