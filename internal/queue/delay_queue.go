package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DelayQueue parks tasks until their ready time
type DelayQueue interface {
	Schedule(ctx context.Context, task Task, readyAt time.Time) error
	// Due removes and returns up to limit tasks whose ready time has passed
	Due(ctx context.Context, now time.Time, limit int) ([]Task, error)
}

// RedisDelayQueue keeps delayed tasks in a sorted set scored by ready time
type RedisDelayQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDelayQueue creates a delay queue stored under key
func NewRedisDelayQueue(client *redis.Client, key string) *RedisDelayQueue {
	return &RedisDelayQueue{client: client, key: key}
}

func (q *RedisDelayQueue) Schedule(ctx context.Context, task Task, readyAt time.Time) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = q.client.ZAdd(ctx, q.key, &redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis zadd error: %w", err)
	}
	return nil
}

// Due claims each member with ZREM so concurrent pumps never release a task twice
func (q *RedisDelayQueue) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore error: %w", err)
	}

	tasks := make([]Task, 0, len(members))
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return tasks, fmt.Errorf("redis zrem error: %w", err)
		}
		if removed == 0 {
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// MemoryDelayQueue is a process-local DelayQueue
type MemoryDelayQueue struct {
	mu    sync.Mutex
	items []delayedTask
}

type delayedTask struct {
	task    Task
	readyAt time.Time
}

// NewMemoryDelayQueue creates an empty delay queue
func NewMemoryDelayQueue() *MemoryDelayQueue {
	return &MemoryDelayQueue{}
}

func (q *MemoryDelayQueue) Schedule(ctx context.Context, task Task, readyAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, delayedTask{task: task, readyAt: readyAt})
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].readyAt.Before(q.items[j].readyAt)
	})
	return nil
}

func (q *MemoryDelayQueue) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Task
	remaining := q.items[:0]
	for _, item := range q.items {
		if !item.readyAt.After(now) && len(due) < limit {
			due = append(due, item.task)
			continue
		}
		remaining = append(remaining, item)
	}
	q.items = remaining
	return due, nil
}

// Len returns the number of parked tasks
func (q *MemoryDelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
