package domain

import (
	"fmt"
	"time"
)

// SyncStatus is the lifecycle state of a sync record
type SyncStatus string

const (
	StatusPending    SyncStatus = "pending"
	StatusProcessing SyncStatus = "processing"
	StatusSynced     SyncStatus = "synced"
	StatusFailed     SyncStatus = "failed"
)

// RecordKind distinguishes the concrete sync record types
type RecordKind string

const (
	KindScan     RecordKind = "scan"
	KindMovement RecordKind = "movement"
)

// ParseRecordKind validates a kind coming from a task payload or URL
func ParseRecordKind(value string) (RecordKind, error) {
	switch RecordKind(value) {
	case KindScan, KindMovement:
		return RecordKind(value), nil
	default:
		return "", fmt.Errorf("unknown record kind: %q", value)
	}
}

// Metadata is the open audit bag stored alongside a sync record
type Metadata map[string]interface{}

// SyncState holds the lifecycle fields shared by every sync record kind.
// Only the processor and the retry scheduler mutate it after creation.
type SyncState struct {
	Status            SyncStatus
	Attempts          int
	LastSyncAttemptAt *time.Time
	ProcessedAt       *time.Time
	ErrorType         ErrorType
	ErrorMessage      string
	Metadata          Metadata
}

// StaleClaimMessage is stored on records whose processing claim expired
const StaleClaimMessage = "sync attempt did not finish before its processing claim expired"

// NewPendingState returns the state every record is created with
func NewPendingState(metadata Metadata) SyncState {
	if metadata == nil {
		metadata = Metadata{}
	}
	return SyncState{
		Status:   StatusPending,
		Metadata: metadata,
	}
}

// IsTerminal reports whether the record must never be processed again
func (s *SyncState) IsTerminal() bool {
	return s.Status == StatusSynced || s.ProcessedAt != nil
}

// BeginAttempt moves the record into processing and counts the attempt.
// It must be called before the external call is issued.
func (s *SyncState) BeginAttempt(now time.Time) {
	at := now
	s.Status = StatusProcessing
	s.Attempts++
	s.LastSyncAttemptAt = &at
}

// MarkSynced records a successful external write
func (s *SyncState) MarkSynced(now time.Time, echo Metadata) {
	at := now
	s.Status = StatusSynced
	s.ProcessedAt = &at
	s.ErrorType = ErrorTypeNone
	s.ErrorMessage = ""
	s.MergeMetadata(echo)
}

// MarkFailed records a categorized failure, leaving attempt bookkeeping untouched
func (s *SyncState) MarkFailed(errorType ErrorType, message string) {
	s.Status = StatusFailed
	s.ErrorType = errorType
	s.ErrorMessage = message
}

// ResetForRetry puts a failed record back in the queue-able state.
// Error fields are kept so the last failure stays visible until the next attempt resolves it.
func (s *SyncState) ResetForRetry() {
	s.Status = StatusPending
}

// ExpireClaim turns an abandoned processing claim into a failure the retry
// sweep can pick up. An earlier failure category is kept.
func (s *SyncState) ExpireClaim() {
	s.Status = StatusFailed
	if s.ErrorType == ErrorTypeNone {
		s.ErrorType = ErrorTypeUnknown
	}
	s.ErrorMessage = StaleClaimMessage
}

// IsStaleClaim reports whether the record is processing with a claim older than staleBefore
func (s *SyncState) IsStaleClaim(staleBefore time.Time) bool {
	if s.Status != StatusProcessing || s.ProcessedAt != nil {
		return false
	}
	return s.LastSyncAttemptAt == nil || s.LastSyncAttemptAt.Before(staleBefore)
}

// MergeMetadata copies entries into the record's metadata
func (s *SyncState) MergeMetadata(values Metadata) {
	if len(values) == 0 {
		return
	}
	if s.Metadata == nil {
		s.Metadata = Metadata{}
	}
	for key, value := range values {
		s.Metadata[key] = value
	}
}

// SyncRecord is the contract the processor and retry scheduler are written against
type SyncRecord interface {
	Kind() RecordKind
	RecordID() int64
	ProductSKU() string
	State() *SyncState
}
