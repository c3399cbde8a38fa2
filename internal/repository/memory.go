package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stock-sync-service/internal/domain"
)

// InMemoryStore is a Store kept in process memory, used by tests and local runs.
// WithinTx serializes transactions and restores a snapshot when fn fails.
type InMemoryStore struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	data *memoryData
	inTx bool
}

type memoryData struct {
	scans     map[int64]*domain.ScanRecord
	movements map[int64]*domain.StockMovement
	locations map[string]*domain.Location
	nextScan  int64
	nextMove  int64
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		mu:   &sync.Mutex{},
		txMu: &sync.Mutex{},
		data: &memoryData{
			scans:     make(map[int64]*domain.ScanRecord),
			movements: make(map[int64]*domain.StockMovement),
			locations: make(map[string]*domain.Location),
		},
	}
}

// WithinTx runs fn and rolls back every write it made when it returns an error
func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	tx := &InMemoryStore{mu: s.mu, txMu: s.txMu, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		*s.data = *snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *InMemoryStore) CreateScan(ctx context.Context, record *domain.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.nextScan++
	record.ID = s.data.nextScan
	s.data.scans[record.ID] = cloneScan(record)
	return nil
}

func (s *InMemoryStore) CreateMovement(ctx context.Context, movement *domain.StockMovement) error {
	if movement.FromLocationID == movement.ToLocationID {
		return fmt.Errorf("failed to create stock movement: source and destination are the same location")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.nextMove++
	movement.ID = s.data.nextMove
	s.data.movements[movement.ID] = cloneMovement(movement)
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, kind domain.RecordKind, id int64) (domain.SyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case domain.KindScan:
		if record, ok := s.data.scans[id]; ok {
			return cloneScan(record), nil
		}
	case domain.KindMovement:
		if movement, ok := s.data.movements[id]; ok {
			return cloneMovement(movement), nil
		}
	default:
		return nil, fmt.Errorf("unknown record kind: %q", kind)
	}
	return nil, domain.ErrRecordNotFound
}

func (s *InMemoryStore) SaveState(ctx context.Context, record domain.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.data.state(record.Kind(), record.RecordID())
	if err != nil {
		return err
	}
	*state = cloneState(*record.State())
	return nil
}

func (s *InMemoryStore) BeginAttempt(ctx context.Context, kind domain.RecordKind, id int64, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.data.state(kind, id)
	if err != nil {
		return false, err
	}
	if state.ProcessedAt != nil {
		return false, nil
	}

	switch state.Status {
	case domain.StatusPending, domain.StatusFailed:
	case domain.StatusProcessing:
		if state.LastSyncAttemptAt != nil && !state.LastSyncAttemptAt.Before(staleBefore) {
			return false, nil
		}
	default:
		return false, nil
	}

	state.BeginAttempt(now)
	return true, nil
}

func (s *InMemoryStore) TransitionStatus(ctx context.Context, kind domain.RecordKind, id int64, from []domain.SyncStatus, to domain.SyncStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.data.state(kind, id)
	if err != nil {
		return false, err
	}
	if state.ProcessedAt != nil || !containsStatus(from, state.Status) {
		return false, nil
	}
	state.Status = to
	return true, nil
}

func (s *InMemoryStore) ExpireClaim(ctx context.Context, kind domain.RecordKind, id int64, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.data.state(kind, id)
	if err != nil {
		return false, err
	}
	if !state.IsStaleClaim(staleBefore) {
		return false, nil
	}
	state.ExpireClaim()
	return true, nil
}

func (s *InMemoryStore) ListRetryable(ctx context.Context, since, staleBefore time.Time) ([]domain.SyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scans []*domain.ScanRecord
	for _, record := range s.data.scans {
		if retryable(&record.SyncState, staleBefore) && !record.CreatedAt.Before(since) {
			scans = append(scans, cloneScan(record))
		}
	}
	sort.Slice(scans, func(i, j int) bool { return scans[i].CreatedAt.Before(scans[j].CreatedAt) })

	var movements []*domain.StockMovement
	for _, movement := range s.data.movements {
		if retryable(&movement.SyncState, staleBefore) && !movement.CreatedAt.Before(since) {
			movements = append(movements, cloneMovement(movement))
		}
	}
	sort.Slice(movements, func(i, j int) bool { return movements[i].CreatedAt.Before(movements[j].CreatedAt) })

	records := make([]domain.SyncRecord, 0, len(scans)+len(movements))
	for _, record := range scans {
		records = append(records, record)
	}
	for _, movement := range movements {
		records = append(records, movement)
	}
	return records, nil
}

func (s *InMemoryStore) FindLocation(ctx context.Context, externalID string) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	location, ok := s.data.locations[externalID]
	if !ok {
		return nil, domain.ErrLocationNotFound
	}
	copied := *location
	return &copied, nil
}

func (s *InMemoryStore) UpsertLocation(ctx context.Context, location *domain.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *location
	s.data.locations[location.ExternalID] = &copied
	return nil
}

func (s *InMemoryStore) MarkLocationUsed(ctx context.Context, externalID, code string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	location, ok := s.data.locations[externalID]
	if !ok {
		location = &domain.Location{ExternalID: externalID, IsActive: true}
		s.data.locations[externalID] = location
	}
	if code != "" {
		location.Code = code
	}
	location.MarkUsed(now)
	return nil
}

func (s *InMemoryStore) ListActiveLocations(ctx context.Context) ([]*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var locations []*domain.Location
	for _, location := range s.data.locations {
		if location.IsActive {
			copied := *location
			locations = append(locations, &copied)
		}
	}
	sort.SliceStable(locations, func(i, j int) bool {
		if locations[i].UseCount != locations[j].UseCount {
			return locations[i].UseCount > locations[j].UseCount
		}
		return locations[i].Code < locations[j].Code
	})
	return locations, nil
}

func retryable(state *domain.SyncState, staleBefore time.Time) bool {
	return (state.Status == domain.StatusFailed && state.ProcessedAt == nil) || state.IsStaleClaim(staleBefore)
}

func (d *memoryData) state(kind domain.RecordKind, id int64) (*domain.SyncState, error) {
	switch kind {
	case domain.KindScan:
		if record, ok := d.scans[id]; ok {
			return &record.SyncState, nil
		}
	case domain.KindMovement:
		if movement, ok := d.movements[id]; ok {
			return &movement.SyncState, nil
		}
	default:
		return nil, fmt.Errorf("unknown record kind: %q", kind)
	}
	return nil, domain.ErrRecordNotFound
}

func (d *memoryData) clone() *memoryData {
	copied := &memoryData{
		scans:     make(map[int64]*domain.ScanRecord, len(d.scans)),
		movements: make(map[int64]*domain.StockMovement, len(d.movements)),
		locations: make(map[string]*domain.Location, len(d.locations)),
		nextScan:  d.nextScan,
		nextMove:  d.nextMove,
	}
	for id, record := range d.scans {
		copied.scans[id] = cloneScan(record)
	}
	for id, movement := range d.movements {
		copied.movements[id] = cloneMovement(movement)
	}
	for id, location := range d.locations {
		loc := *location
		copied.locations[id] = &loc
	}
	return copied
}

func cloneScan(record *domain.ScanRecord) *domain.ScanRecord {
	copied := *record
	copied.SyncState = cloneState(record.SyncState)
	return &copied
}

func cloneMovement(movement *domain.StockMovement) *domain.StockMovement {
	copied := *movement
	copied.SyncState = cloneState(movement.SyncState)
	return &copied
}

func cloneState(state domain.SyncState) domain.SyncState {
	copied := state
	if state.LastSyncAttemptAt != nil {
		at := *state.LastSyncAttemptAt
		copied.LastSyncAttemptAt = &at
	}
	if state.ProcessedAt != nil {
		at := *state.ProcessedAt
		copied.ProcessedAt = &at
	}
	copied.Metadata = make(domain.Metadata, len(state.Metadata))
	for key, value := range state.Metadata {
		copied.Metadata[key] = value
	}
	return copied
}
