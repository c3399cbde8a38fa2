package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"stock-sync-service/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore implements Store on SQLite following the single writer principle:
// every write, and every transaction, holds the writer mutex.
type SQLiteStore struct {
	db     *sql.DB
	q      execer
	mu     *sync.Mutex
	inTx   bool
	logger *zap.Logger
}

// NewSQLiteStore opens the ledger at path and creates the schema
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:     db,
		q:      db,
		mu:     &sync.Mutex{},
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scan_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		sku TEXT NOT NULL,
		barcode TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		action TEXT NOT NULL,
		created_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		last_sync_attempt_at TEXT,
		processed_at TEXT,
		sync_error_type TEXT NOT NULL DEFAULT '',
		sync_error_message TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		CHECK(quantity >= 1),
		CHECK(sync_attempts >= 0),
		CHECK(action IN ('increase', 'decrease')),
		CHECK(sync_status IN ('pending', 'processing', 'synced', 'failed'))
	);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		sku TEXT NOT NULL,
		from_location_id TEXT NOT NULL,
		from_location_code TEXT NOT NULL DEFAULT '',
		to_location_id TEXT NOT NULL,
		to_location_code TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL,
		type TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		last_sync_attempt_at TEXT,
		processed_at TEXT,
		sync_error_type TEXT NOT NULL DEFAULT '',
		sync_error_message TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		CHECK(quantity >= 1),
		CHECK(sync_attempts >= 0),
		CHECK(from_location_id <> to_location_id),
		CHECK(type IN ('bay_refill', 'manual_transfer', 'scan_adjustment')),
		CHECK(sync_status IN ('pending', 'processing', 'synced', 'failed'))
	);

	CREATE TABLE IF NOT EXISTS locations (
		external_id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		use_count INTEGER NOT NULL DEFAULT 0,
		last_used_at TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		CHECK(is_active IN (0, 1))
	);

	CREATE INDEX IF NOT EXISTS idx_scan_records_status ON scan_records(sync_status, created_at);
	CREATE INDEX IF NOT EXISTS idx_stock_movements_status ON stock_movements(sync_status, created_at);
	CREATE INDEX IF NOT EXISTS idx_locations_use_count ON locations(is_active, use_count);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) lockWriter() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx runs fn inside a single SQLite transaction
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &SQLiteStore{db: s.db, q: tx, mu: s.mu, inTx: true, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateScan inserts a scan record and assigns its id
func (s *SQLiteStore) CreateScan(ctx context.Context, record *domain.ScanRecord) error {
	unlock := s.lockWriter()
	defer unlock()

	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO scan_records (user_id, product_id, sku, barcode, quantity, action, created_at,
			sync_status, sync_attempts, last_sync_attempt_at, processed_at, sync_error_type, sync_error_message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.UserID, record.ProductID, record.SKU, record.Barcode, record.Quantity, string(record.Action),
		formatTime(record.CreatedAt),
		string(record.Status), record.Attempts, formatTimePtr(record.LastSyncAttemptAt), formatTimePtr(record.ProcessedAt),
		string(record.ErrorType), record.ErrorMessage, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create scan record: %w", err)
	}

	record.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read scan record id: %w", err)
	}
	return nil
}

// CreateMovement inserts a stock movement and assigns its id
func (s *SQLiteStore) CreateMovement(ctx context.Context, movement *domain.StockMovement) error {
	unlock := s.lockWriter()
	defer unlock()

	metadata, err := encodeMetadata(movement.Metadata)
	if err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO stock_movements (user_id, product_id, sku, from_location_id, from_location_code,
			to_location_id, to_location_code, quantity, type, notes, created_at,
			sync_status, sync_attempts, last_sync_attempt_at, processed_at, sync_error_type, sync_error_message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		movement.UserID, movement.ProductID, movement.SKU,
		movement.FromLocationID, movement.FromLocationCode, movement.ToLocationID, movement.ToLocationCode,
		movement.Quantity, string(movement.Type), movement.Notes, formatTime(movement.CreatedAt),
		string(movement.Status), movement.Attempts, formatTimePtr(movement.LastSyncAttemptAt), formatTimePtr(movement.ProcessedAt),
		string(movement.ErrorType), movement.ErrorMessage, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create stock movement: %w", err)
	}

	movement.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read stock movement id: %w", err)
	}
	return nil
}

const stateColumns = `sync_status, sync_attempts, last_sync_attempt_at, processed_at, sync_error_type, sync_error_message, metadata`

const scanColumns = `id, user_id, product_id, sku, barcode, quantity, action, created_at, ` + stateColumns

const movementColumns = `id, user_id, product_id, sku, from_location_id, from_location_code, to_location_id, to_location_code,
	quantity, type, notes, created_at, ` + stateColumns

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// stateRow collects the raw lifecycle columns before conversion
type stateRow struct {
	status       string
	attempts     int
	lastAttempt  sql.NullString
	processedAt  sql.NullString
	errorType    string
	errorMessage string
	metadata     string
}

func (r *stateRow) dest() []interface{} {
	return []interface{}{&r.status, &r.attempts, &r.lastAttempt, &r.processedAt, &r.errorType, &r.errorMessage, &r.metadata}
}

func (r *stateRow) toState() (domain.SyncState, error) {
	metadata, err := decodeMetadata(r.metadata)
	if err != nil {
		return domain.SyncState{}, err
	}
	return domain.SyncState{
		Status:            domain.SyncStatus(r.status),
		Attempts:          r.attempts,
		LastSyncAttemptAt: parseTimePtr(r.lastAttempt),
		ProcessedAt:       parseTimePtr(r.processedAt),
		ErrorType:         domain.ErrorType(r.errorType),
		ErrorMessage:      r.errorMessage,
		Metadata:          metadata,
	}, nil
}

func scanScanRecord(row rowScanner) (*domain.ScanRecord, error) {
	var record domain.ScanRecord
	var action, createdAt string
	var state stateRow

	dest := append([]interface{}{
		&record.ID, &record.UserID, &record.ProductID, &record.SKU, &record.Barcode, &record.Quantity, &action, &createdAt,
	}, state.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	syncState, err := state.toState()
	if err != nil {
		return nil, err
	}
	record.Action = domain.ScanAction(action)
	record.CreatedAt = parseTime(createdAt)
	record.SyncState = syncState
	return &record, nil
}

func scanMovement(row rowScanner) (*domain.StockMovement, error) {
	var movement domain.StockMovement
	var movementType, createdAt string
	var state stateRow

	dest := append([]interface{}{
		&movement.ID, &movement.UserID, &movement.ProductID, &movement.SKU,
		&movement.FromLocationID, &movement.FromLocationCode, &movement.ToLocationID, &movement.ToLocationCode,
		&movement.Quantity, &movementType, &movement.Notes, &createdAt,
	}, state.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	syncState, err := state.toState()
	if err != nil {
		return nil, err
	}
	movement.Type = domain.MovementType(movementType)
	movement.CreatedAt = parseTime(createdAt)
	movement.SyncState = syncState
	return &movement, nil
}

// FindByID loads a record fresh from the database
func (s *SQLiteStore) FindByID(ctx context.Context, kind domain.RecordKind, id int64) (domain.SyncRecord, error) {
	var (
		record domain.SyncRecord
		err    error
	)

	switch kind {
	case domain.KindScan:
		row := s.q.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scan_records WHERE id = ?`, id)
		record, err = scanScanRecord(row)
	case domain.KindMovement:
		row := s.q.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id = ?`, id)
		record, err = scanMovement(row)
	default:
		return nil, fmt.Errorf("unknown record kind: %q", kind)
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get %s record %d: %w", kind, id, err)
	}
	return record, nil
}

// SaveState writes the lifecycle fields of record
func (s *SQLiteStore) SaveState(ctx context.Context, record domain.SyncRecord) error {
	table, err := tableFor(record.Kind())
	if err != nil {
		return err
	}

	unlock := s.lockWriter()
	defer unlock()

	state := record.State()
	metadata, err := encodeMetadata(state.Metadata)
	if err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE `+table+`
		SET sync_status = ?, sync_attempts = ?, last_sync_attempt_at = ?, processed_at = ?,
		    sync_error_type = ?, sync_error_message = ?, metadata = ?
		WHERE id = ?
	`,
		string(state.Status), state.Attempts, formatTimePtr(state.LastSyncAttemptAt), formatTimePtr(state.ProcessedAt),
		string(state.ErrorType), state.ErrorMessage, metadata, record.RecordID(),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s record state: %w", record.Kind(), err)
	}

	return requireAffected(result, domain.ErrRecordNotFound)
}

// BeginAttempt claims a record for processing in a single conditional update
func (s *SQLiteStore) BeginAttempt(ctx context.Context, kind domain.RecordKind, id int64, now, staleBefore time.Time) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	unlock := s.lockWriter()
	defer unlock()

	result, err := s.q.ExecContext(ctx, `
		UPDATE `+table+`
		SET sync_status = 'processing', sync_attempts = sync_attempts + 1, last_sync_attempt_at = ?
		WHERE id = ? AND processed_at IS NULL AND (
			sync_status IN ('pending', 'failed')
			OR (sync_status = 'processing' AND (last_sync_attempt_at IS NULL OR last_sync_attempt_at < ?))
		)
	`, formatTime(now), id, formatTime(staleBefore))
	if err != nil {
		return false, fmt.Errorf("failed to claim %s record %d: %w", kind, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// TransitionStatus updates sync_status only when it currently holds one of from
func (s *SQLiteStore) TransitionStatus(ctx context.Context, kind domain.RecordKind, id int64, from []domain.SyncStatus, to domain.SyncStatus) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	if len(from) == 0 {
		return false, nil
	}

	unlock := s.lockWriter()
	defer unlock()

	args := []interface{}{string(to), id}
	placeholders := ""
	for i, status := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(status))
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE `+table+` SET sync_status = ? WHERE id = ? AND processed_at IS NULL AND sync_status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition %s record %d: %w", kind, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// ExpireClaim fails a processing record whose claim is older than staleBefore.
// An earlier error category is kept; otherwise the record becomes unknown.
func (s *SQLiteStore) ExpireClaim(ctx context.Context, kind domain.RecordKind, id int64, staleBefore time.Time) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	unlock := s.lockWriter()
	defer unlock()

	result, err := s.q.ExecContext(ctx, `
		UPDATE `+table+`
		SET sync_status = 'failed',
		    sync_error_type = CASE WHEN sync_error_type = '' THEN ? ELSE sync_error_type END,
		    sync_error_message = ?
		WHERE id = ? AND processed_at IS NULL AND sync_status = 'processing'
		  AND (last_sync_attempt_at IS NULL OR last_sync_attempt_at < ?)
	`, string(domain.ErrorTypeUnknown), domain.StaleClaimMessage, id, formatTime(staleBefore))
	if err != nil {
		return false, fmt.Errorf("failed to expire claim on %s record %d: %w", kind, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

const retryableWhere = `created_at >= ? AND processed_at IS NULL AND (
		sync_status = 'failed'
		OR (sync_status = 'processing' AND (last_sync_attempt_at IS NULL OR last_sync_attempt_at < ?))
	)`

// ListRetryable returns failed and stale processing scan records and movements
// created at or after since
func (s *SQLiteStore) ListRetryable(ctx context.Context, since, staleBefore time.Time) ([]domain.SyncRecord, error) {
	var records []domain.SyncRecord

	scanRows, err := s.q.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scan_records WHERE `+retryableWhere+` ORDER BY created_at`,
		formatTime(since), formatTime(staleBefore),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable scan records: %w", err)
	}
	for scanRows.Next() {
		record, err := scanScanRecord(scanRows)
		if err != nil {
			scanRows.Close()
			return nil, fmt.Errorf("failed to scan scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := scanRows.Err(); err != nil {
		scanRows.Close()
		return nil, err
	}
	scanRows.Close()

	movementRows, err := s.q.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE `+retryableWhere+` ORDER BY created_at`,
		formatTime(since), formatTime(staleBefore),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable stock movements: %w", err)
	}
	defer movementRows.Close()
	for movementRows.Next() {
		movement, err := scanMovement(movementRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		records = append(records, movement)
	}

	return records, movementRows.Err()
}

// FindLocation retrieves a location by its external id
func (s *SQLiteStore) FindLocation(ctx context.Context, externalID string) (*domain.Location, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT external_id, code, use_count, last_used_at, is_active FROM locations WHERE external_id = ?`,
		externalID,
	)
	location, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLocationNotFound
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return location, nil
}

// UpsertLocation inserts or replaces a location
func (s *SQLiteStore) UpsertLocation(ctx context.Context, location *domain.Location) error {
	unlock := s.lockWriter()
	defer unlock()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO locations (external_id, code, use_count, last_used_at, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			code = excluded.code,
			use_count = excluded.use_count,
			last_used_at = excluded.last_used_at,
			is_active = excluded.is_active
	`, location.ExternalID, location.Code, location.UseCount, formatTimePtr(location.LastUsedAt), boolToInt(location.IsActive))
	if err != nil {
		return fmt.Errorf("failed to upsert location: %w", err)
	}
	return nil
}

// MarkLocationUsed bumps use_count and last_used_at, creating the location when unknown
func (s *SQLiteStore) MarkLocationUsed(ctx context.Context, externalID, code string, now time.Time) error {
	unlock := s.lockWriter()
	defer unlock()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO locations (external_id, code, use_count, last_used_at, is_active)
		VALUES (?, ?, 1, ?, 1)
		ON CONFLICT(external_id) DO UPDATE SET
			code = CASE WHEN excluded.code <> '' THEN excluded.code ELSE locations.code END,
			use_count = locations.use_count + 1,
			last_used_at = excluded.last_used_at
	`, externalID, code, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to mark location used: %w", err)
	}
	return nil
}

// ListActiveLocations returns active locations, most used first
func (s *SQLiteStore) ListActiveLocations(ctx context.Context) ([]*domain.Location, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT external_id, code, use_count, last_used_at, is_active
		FROM locations
		WHERE is_active = 1
		ORDER BY use_count DESC, last_used_at DESC, code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*domain.Location
	for rows.Next() {
		location, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, location)
	}
	return locations, rows.Err()
}

func scanLocation(row rowScanner) (*domain.Location, error) {
	var location domain.Location
	var lastUsed sql.NullString
	var active int
	if err := row.Scan(&location.ExternalID, &location.Code, &location.UseCount, &lastUsed, &active); err != nil {
		return nil, err
	}
	location.LastUsedAt = parseTimePtr(lastUsed)
	location.IsActive = active == 1
	return &location, nil
}

func tableFor(kind domain.RecordKind) (string, error) {
	switch kind {
	case domain.KindScan:
		return "scan_records", nil
	case domain.KindMovement:
		return "stock_movements", nil
	default:
		return "", fmt.Errorf("unknown record kind: %q", kind)
	}
}

func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func encodeMetadata(metadata domain.Metadata) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(raw), nil
}

func decodeMetadata(raw string) (domain.Metadata, error) {
	metadata := domain.Metadata{}
	if raw == "" {
		return metadata, nil
	}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(timeLayout, value)
	return t
}

func parseTimePtr(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t := parseTime(value.String)
	return &t
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
