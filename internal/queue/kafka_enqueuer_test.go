package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"stock-sync-service/internal/domain"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProducer(t *testing.T) (*mocks.SyncProducer, *Producer) {
	t.Helper()
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer := NewProducer(mock, zap.NewNop())
	producer.baseDelay = time.Millisecond
	return mock, producer
}

func TestKafkaEnqueuer_EnqueueImmediate(t *testing.T) {
	mock, producer := newTestProducer(t)
	defer producer.Close()

	task := NewTask(domain.KindMovement, 42)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var got Task
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.ID != task.ID || got.RecordID != 42 || got.Kind != domain.KindMovement {
			return errors.New("unexpected task payload")
		}
		return nil
	})

	enqueuer := NewKafkaEnqueuer(producer, nil, "stock.sync.tasks", "stock.sync.dlq", zap.NewNop())
	require.NoError(t, enqueuer.Enqueue(context.Background(), task, 0))
}

func TestKafkaEnqueuer_DelayWithoutDelayQueueSetsNotBefore(t *testing.T) {
	mock, producer := newTestProducer(t)
	defer producer.Close()

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var got Task
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.NotBefore.Before(time.Now().Add(50 * time.Second)) {
			return errors.New("not_before was not pushed out by the delay")
		}
		return nil
	})

	enqueuer := NewKafkaEnqueuer(producer, nil, "stock.sync.tasks", "stock.sync.dlq", zap.NewNop())
	require.NoError(t, enqueuer.Enqueue(context.Background(), NewTask(domain.KindScan, 1), time.Minute))
}

func TestKafkaEnqueuer_DelayedTasksArePumped(t *testing.T) {
	mock, producer := newTestProducer(t)
	defer producer.Close()

	delayed := NewMemoryDelayQueue()
	enqueuer := NewKafkaEnqueuer(producer, delayed, "stock.sync.tasks", "stock.sync.dlq", zap.NewNop())

	ctx := context.Background()
	require.NoError(t, enqueuer.Enqueue(ctx, NewTask(domain.KindScan, 1), time.Minute))
	assert.Equal(t, 1, delayed.Len())

	count, err := enqueuer.PublishDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	mock.ExpectSendMessageAndSucceed()
	count, err = enqueuer.PublishDue(ctx, time.Now().Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, delayed.Len())
}

func TestKafkaEnqueuer_FailedPumpReschedules(t *testing.T) {
	mock, producer := newTestProducer(t)
	defer producer.Close()

	delayed := NewMemoryDelayQueue()
	enqueuer := NewKafkaEnqueuer(producer, delayed, "stock.sync.tasks", "stock.sync.dlq", zap.NewNop())

	ctx := context.Background()
	require.NoError(t, delayed.Schedule(ctx, NewTask(domain.KindScan, 1), time.Now().Add(-time.Second)))

	brokerDown := errors.New("broker down")
	for i := 0; i < 3; i++ {
		mock.ExpectSendMessageAndFail(brokerDown)
	}

	_, err := enqueuer.PublishDue(ctx, time.Now(), 10)
	assert.Error(t, err)
	assert.Equal(t, 1, delayed.Len())
}

func TestKafkaEnqueuer_DeadLetter(t *testing.T) {
	mock, producer := newTestProducer(t)
	defer producer.Close()

	task := NewTask(domain.KindMovement, 5)
	task.Attempt = 3
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var letter deadLetter
		if err := json.Unmarshal(value, &letter); err != nil {
			return err
		}
		if letter.Task.ID != task.ID || letter.Error != "timeout" {
			return errors.New("unexpected dead letter")
		}
		return nil
	})

	enqueuer := NewKafkaEnqueuer(producer, nil, "stock.sync.tasks", "stock.sync.dlq", zap.NewNop())
	require.NoError(t, enqueuer.DeadLetter(context.Background(), task, errors.New("timeout")))
}

func TestMemoryDelayQueue_DueOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryDelayQueue()
	now := time.Now()

	first := NewTask(domain.KindScan, 1)
	second := NewTask(domain.KindScan, 2)
	later := NewTask(domain.KindScan, 3)

	require.NoError(t, q.Schedule(ctx, second, now.Add(-time.Second)))
	require.NoError(t, q.Schedule(ctx, later, now.Add(time.Hour)))
	require.NoError(t, q.Schedule(ctx, first, now.Add(-time.Minute)))

	due, err := q.Due(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, first.ID, due[0].ID)

	due, err = q.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, second.ID, due[0].ID)
	assert.Equal(t, 1, q.Len())
}

func TestDecodeTask(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"task_id":"t1","kind":"scan","record_id":3,"attempt":2}`},
		{name: "defaults attempt", payload: `{"task_id":"t1","kind":"movement","record_id":3}`},
		{name: "not json", payload: `nope`, wantErr: true},
		{name: "missing record", payload: `{"task_id":"t1","kind":"scan"}`, wantErr: true},
		{name: "unknown kind", payload: `{"task_id":"t1","kind":"order","record_id":3}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := DecodeTask([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, task.Attempt, 1)
			assert.EqualValues(t, 3, task.RecordID)
		})
	}
}
