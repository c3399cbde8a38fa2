package queue

import (
	"context"
	"sync"
	"time"
)

type recordingEnqueuer struct {
	mu     sync.Mutex
	tasks  []Task
	delays []time.Duration
	err    error
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.tasks = append(e.tasks, task)
	e.delays = append(e.delays, delay)
	return nil
}

type handlerFunc func(ctx context.Context, task Task) error

func (f handlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

type recordingSink struct {
	mu        sync.Mutex
	exhausted []Task
	dead      []Task
}

func (s *recordingSink) OnExhausted(ctx context.Context, task Task, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exhausted = append(s.exhausted, task)
	return nil
}

func (s *recordingSink) DeadLetter(ctx context.Context, task Task, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, task)
	return nil
}
