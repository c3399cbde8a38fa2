package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-sync-service/internal/domain"

	"github.com/google/uuid"
)

// Task asks a worker to sync one record with the external inventory
type Task struct {
	ID       string            `json:"task_id"`
	Kind     domain.RecordKind `json:"kind"`
	RecordID int64             `json:"record_id"`
	// Attempt counts deliveries of this task by the host runner, starting at 1
	Attempt    int       `json:"attempt"`
	NotBefore  time.Time `json:"not_before,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewTask creates the first delivery of a sync task for a record
func NewTask(kind domain.RecordKind, recordID int64) Task {
	return Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		RecordID:   recordID,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Key groups deliveries of the same record onto one partition
func (t Task) Key() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.RecordID)
}

// Next returns the redelivery of t
func (t Task) Next() Task {
	next := t
	next.Attempt++
	next.NotBefore = time.Time{}
	next.EnqueuedAt = time.Now().UTC()
	return next
}

// Enqueuer hands tasks to the durable queue, optionally delayed
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task, delay time.Duration) error
}

// Handler processes one delivered task
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// ExhaustionHandler is told when the host runner gives up on a task
type ExhaustionHandler interface {
	OnExhausted(ctx context.Context, task Task, cause error) error
}

// DeadLetterSink stores tasks the runner gave up on
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, task Task, cause error) error
}

// RetryableError asks the runner to redeliver the task after Delay
type RetryableError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// PermanentError tells the runner not to redeliver the task
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the runner drops the task without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
