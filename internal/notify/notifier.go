package notify

import (
	"context"
	"sync"
	"time"

	"stock-sync-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FailureNotice tells operators a sync attempt failed
type FailureNotice struct {
	EventID    string            `json:"event_id"`
	Kind       domain.RecordKind `json:"kind"`
	RecordID   int64             `json:"record_id"`
	SKU        string            `json:"sku"`
	ErrorType  domain.ErrorType  `json:"error_type"`
	Message    string            `json:"message"`
	Attempts   int               `json:"attempts"`
	Permanent  bool              `json:"permanent"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewFailureNotice builds a notice from a record's current state
func NewFailureNotice(record domain.SyncRecord, permanent bool) FailureNotice {
	state := record.State()
	return FailureNotice{
		EventID:    uuid.New().String(),
		Kind:       record.Kind(),
		RecordID:   record.RecordID(),
		SKU:        record.ProductSKU(),
		ErrorType:  state.ErrorType,
		Message:    state.ErrorMessage,
		Attempts:   state.Attempts,
		Permanent:  permanent,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier delivers failure notices. Delivery is best effort.
type Notifier interface {
	NotifyFailure(ctx context.Context, notice FailureNotice) error
}

// LogNotifier writes notices to the log only
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyFailure(ctx context.Context, notice FailureNotice) error {
	n.logger.Warn("Stock sync failed",
		zap.String("kind", string(notice.Kind)),
		zap.Int64("record_id", notice.RecordID),
		zap.String("sku", notice.SKU),
		zap.String("error_type", string(notice.ErrorType)),
		zap.String("message", notice.Message),
		zap.Int("attempts", notice.Attempts),
		zap.Bool("permanent", notice.Permanent),
	)
	return nil
}

// InMemoryNotifier keeps notices for inspection
type InMemoryNotifier struct {
	mu      sync.Mutex
	notices []FailureNotice
}

func NewInMemoryNotifier() *InMemoryNotifier {
	return &InMemoryNotifier{}
}

func (n *InMemoryNotifier) NotifyFailure(ctx context.Context, notice FailureNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

// Notices returns a copy of the recorded notices
func (n *InMemoryNotifier) Notices() []FailureNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]FailureNotice(nil), n.notices...)
}
