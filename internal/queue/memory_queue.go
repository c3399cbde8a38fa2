package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("queue closed")

// MemoryQueue is an in-process worker pool used when Kafka is not available.
// Delivery is at-most-once: tasks pending at shutdown are lost and picked up
// again by the retry sweep.
type MemoryQueue struct {
	tasks   chan Task
	runner  *Runner
	workers int
	logger  *zap.Logger

	done   chan struct{}
	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
	wg     sync.WaitGroup
}

// NewMemoryQueue creates a pool; the runner's requeue target is set to the pool itself
func NewMemoryQueue(runner *Runner, workers, buffer int, logger *zap.Logger) *MemoryQueue {
	if workers < 1 {
		workers = 1
	}
	q := &MemoryQueue{
		tasks:   make(chan Task, buffer),
		runner:  runner,
		workers: workers,
		logger:  logger,
		done:    make(chan struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}
	runner.SetRequeue(q)
	return q
}

// Start launches the workers; they stop when ctx is done or Close is called
func (q *MemoryQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case task := <-q.tasks:
					if err := q.runner.Process(ctx, task); err != nil {
						q.logger.Error("Worker failed to process task",
							zap.Int("worker", worker),
							zap.String("task_id", task.ID),
							zap.Error(err),
						)
					}
				}
			}
		}(i)
	}

	q.logger.Info("In-memory worker pool started", zap.Int("workers", q.workers))
}

// Enqueue adds task to the pool, after delay when positive
func (q *MemoryQueue) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if delay <= 0 {
		return q.push(ctx, task)
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, timer)
		if q.closed {
			return
		}
		if err := q.push(context.Background(), task); err != nil {
			q.logger.Error("Failed to release delayed task", zap.String("task_id", task.ID), zap.Error(err))
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// push must be called with mu held
func (q *MemoryQueue) push(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// buffer full: hand off without holding up the caller
	go func() {
		select {
		case q.tasks <- task:
		case <-q.done:
		}
	}()
	return nil
}

// Close stops accepting tasks, cancels pending delays and waits for workers
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = nil
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
