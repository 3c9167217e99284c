/*
Package sqlite provides a SQLite-backed implementation of the loyalty storage interfaces.

PURPOSE:
  Production persistence for loyalty balances, processed-event markers,
  manual adjustments and the webhook delivery log. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  loyalty.Store:       Balances and processed-event markers
  loyalty.TxStore:     Atomic marker + credit commits
  loyalty.AdminStore:  Entry listing and manual adjustments
  loyalty.DeliveryLog: Recent webhook deliveries

KEY TABLES:
  loyalty_points:     One row per customer; points has a CHECK (points >= 0)
  processed_events:   Write-once markers; event_key is the PRIMARY KEY
  point_adjustments:  Audit trail of manual admin adjustments
  webhook_deliveries: Recent deliveries for the admin activity view

  processed_events is dedicated to markers. Nothing else writes to it, so
  its primary key can never collide with unrelated bookkeeping rows.

IDEMPOTENCY:
  MarkProcessed relies on the processed_events primary key. A duplicate
  insert surfaces as loyalty.ErrDuplicateEventKey; the processor uses that
  to drop redeliveries without touching balances.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus a single pooled connection.
  SQLite allows one writer at a time anyway, and ":memory:" databases
  exist per-connection, so the cap keeps tests on one real database.
  Transaction stores run their statements against the open *sql.Tx
  directly and never take the mutex, which WithTx already holds.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency
  and crash recovery.

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  processor := loyalty.NewProcessor(store)

SEE ALSO:
  - loyalty/store.go: Interface definitions
  - loyalty/processor.go: The order processor built on these interfaces
  - loyalty/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pointsmith/loyalty-engine/loyalty"
)

const defaultListLimit = 50

// Store implements all loyalty storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer anyway, and ":memory:"
	// databases live and die with their connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Balances (one row per customer)
	CREATE TABLE IF NOT EXISTS loyalty_points (
		customer_id TEXT PRIMARY KEY,
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		updated_at TEXT NOT NULL
	);

	-- Processed-event markers (write-once; the primary key IS the guard)
	CREATE TABLE IF NOT EXISTS processed_events (
		event_key TEXT PRIMARY KEY,
		recorded_at TEXT NOT NULL
	);

	-- Manual adjustments (audit trail, append-only)
	CREATE TABLE IF NOT EXISTS point_adjustments (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		op TEXT NOT NULL,
		amount INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_customer
		ON point_adjustments(customer_id, created_at);

	-- Webhook deliveries (recent activity for the admin view)
	CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_key TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		shop_domain TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL DEFAULT 0,
		customer_id TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_received
		ON webhook_deliveries(received_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by *sql.DB and *sql.Tx so the statement helpers can
// serve both the plain and the transactional store.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// =============================================================================
// CORE STORE (loyalty.Store interface)
// =============================================================================

// GetBalance returns the entry for a customer, or nil when absent.
func (s *Store) GetBalance(ctx context.Context, customerID loyalty.CustomerID) (*loyalty.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getBalance(ctx, s.db, customerID)
}

// UpsertAdd credits delta points to a customer, creating the row if needed.
func (s *Store) UpsertAdd(ctx context.Context, customerID loyalty.CustomerID, delta int64, at time.Time) (loyalty.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return upsertAdd(ctx, s.db, customerID, delta, at)
}

// MarkProcessed inserts the write-once marker for an event key.
func (s *Store) MarkProcessed(ctx context.Context, eventKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return markProcessed(ctx, s.db, eventKey, at)
}

// IsProcessed reports whether an event key has been recorded.
func (s *Store) IsProcessed(ctx context.Context, eventKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return isProcessed(ctx, s.db, eventKey)
}

func getBalance(ctx context.Context, db dbtx, customerID loyalty.CustomerID) (*loyalty.Entry, error) {
	var (
		points    int64
		updatedAt string
	)

	err := db.QueryRowContext(ctx,
		"SELECT points, updated_at FROM loyalty_points WHERE customer_id = ?",
		string(customerID),
	).Scan(&points, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query balance: %w", err)
	}

	at, _ := time.Parse(time.RFC3339, updatedAt)
	return &loyalty.Entry{CustomerID: customerID, Points: points, UpdatedAt: at}, nil
}

func upsertAdd(ctx context.Context, db dbtx, customerID loyalty.CustomerID, delta int64, at time.Time) (loyalty.Entry, error) {
	if delta <= 0 {
		return loyalty.Entry{}, fmt.Errorf("delta must be positive, got %d: %w", delta, loyalty.ErrInvalidDelta)
	}

	query := `
		INSERT INTO loyalty_points (customer_id, points, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			points = loyalty_points.points + excluded.points,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		string(customerID), delta, at.UTC().Format(time.RFC3339))
	if err != nil {
		return loyalty.Entry{}, fmt.Errorf("failed to credit points: %w", err)
	}

	entry, err := getBalance(ctx, db, customerID)
	if err != nil {
		return loyalty.Entry{}, err
	}
	if entry == nil {
		return loyalty.Entry{}, fmt.Errorf("balance for %s missing after upsert", customerID)
	}
	return *entry, nil
}

func markProcessed(ctx context.Context, db dbtx, eventKey string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO processed_events (event_key, recorded_at) VALUES (?, ?)",
		eventKey, at.UTC().Format(time.RFC3339))

	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("event %s: %w", eventKey, loyalty.ErrDuplicateEventKey)
		}
		return fmt.Errorf("failed to record marker: %w", err)
	}
	return nil
}

func isProcessed(ctx context.Context, db dbtx, eventKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_events WHERE event_key = ?",
		eventKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check marker: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// TRANSACTIONAL STORE (loyalty.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Errors from fn
// roll everything back and are returned unchanged so sentinel checks on
// them still work.
func (s *Store) WithTx(ctx context.Context, fn func(store loyalty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation against the open transaction. It must not
// touch the parent store's mutex, which WithTx already holds.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetBalance(ctx context.Context, customerID loyalty.CustomerID) (*loyalty.Entry, error) {
	return getBalance(ctx, ts.tx, customerID)
}

func (ts *txStore) UpsertAdd(ctx context.Context, customerID loyalty.CustomerID, delta int64, at time.Time) (loyalty.Entry, error) {
	return upsertAdd(ctx, ts.tx, customerID, delta, at)
}

func (ts *txStore) MarkProcessed(ctx context.Context, eventKey string, at time.Time) error {
	return markProcessed(ctx, ts.tx, eventKey, at)
}

func (ts *txStore) IsProcessed(ctx context.Context, eventKey string) (bool, error) {
	return isProcessed(ctx, ts.tx, eventKey)
}

// =============================================================================
// ADMIN STORE (loyalty.AdminStore interface)
// =============================================================================

// ListEntries returns one page of entries plus the total match count.
func (s *Store) ListEntries(ctx context.Context, opts loyalty.ListOptions) ([]loyalty.Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := ""
	args := []any{}
	if opts.Search != "" {
		where = "WHERE customer_id LIKE ?"
		args = append(args, "%"+opts.Search+"%")
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loyalty_points "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT customer_id, points, updated_at
		FROM loyalty_points ` + where + `
		ORDER BY updated_at DESC, customer_id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []loyalty.Entry
	for rows.Next() {
		var (
			customerID string
			points     int64
			updatedAt  string
		)
		if err := rows.Scan(&customerID, &points, &updatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan entry: %w", err)
		}
		at, _ := time.Parse(time.RFC3339, updatedAt)
		entries = append(entries, loyalty.Entry{
			CustomerID: loyalty.CustomerID(customerID),
			Points:     points,
			UpdatedAt:  at,
		})
	}
	return entries, total, rows.Err()
}

// ApplyAdjustment applies a manual adjustment and its audit record in one
// transaction. Rule violations from loyalty.NextPoints pass through
// unwrapped so callers can classify them.
func (s *Store) ApplyAdjustment(ctx context.Context, adj loyalty.Adjustment) (loyalty.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return loyalty.Entry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var current int64
	cur, err := getBalance(ctx, sqlTx, adj.CustomerID)
	if err != nil {
		return loyalty.Entry{}, err
	}
	if cur != nil {
		current = cur.Points
	}

	next, err := loyalty.NextPoints(current, adj)
	if err != nil {
		return loyalty.Entry{}, err
	}

	if adj.ID == "" {
		adj.ID = uuid.NewString()
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	createdAt := adj.CreatedAt.UTC().Format(time.RFC3339)

	query := `
		INSERT INTO loyalty_points (customer_id, points, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			points = excluded.points,
			updated_at = excluded.updated_at
	`

	_, err = sqlTx.ExecContext(ctx, query, string(adj.CustomerID), next, createdAt)
	if err != nil {
		return loyalty.Entry{}, fmt.Errorf("failed to write adjusted balance: %w", err)
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO point_adjustments (id, customer_id, op, amount, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		adj.ID, string(adj.CustomerID), string(adj.Op), adj.Amount, adj.Note, createdAt,
	)
	if err != nil {
		return loyalty.Entry{}, fmt.Errorf("failed to record adjustment: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return loyalty.Entry{}, fmt.Errorf("failed to commit adjustment: %w", err)
	}

	return loyalty.Entry{CustomerID: adj.CustomerID, Points: next, UpdatedAt: adj.CreatedAt}, nil
}

// ListAdjustments returns a customer's adjustment history, newest first.
func (s *Store) ListAdjustments(ctx context.Context, customerID loyalty.CustomerID, limit int) ([]loyalty.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, op, amount, note, created_at
		FROM point_adjustments
		WHERE customer_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, string(customerID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []loyalty.Adjustment
	for rows.Next() {
		var (
			adj       loyalty.Adjustment
			op        string
			createdAt string
		)
		if err := rows.Scan(&adj.ID, &op, &adj.Amount, &adj.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		adj.CustomerID = customerID
		adj.Op = loyalty.AdjustmentOp(op)
		adj.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// =============================================================================
// DELIVERY LOG (loyalty.DeliveryLog interface)
// =============================================================================

// RecordDelivery appends one received webhook delivery.
func (s *Store) RecordDelivery(ctx context.Context, d loyalty.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO webhook_deliveries
			(event_key, topic, shop_domain, status, reason, points, customer_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.EventKey, d.Topic, d.ShopDomain,
		string(d.Status), string(d.Reason),
		d.Points, string(d.CustomerID),
		d.ReceivedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// RecentDeliveries returns the latest deliveries, newest first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]loyalty.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, event_key, topic, shop_domain, status, reason, points, customer_id, received_at
		FROM webhook_deliveries
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []loyalty.Delivery
	for rows.Next() {
		var (
			d          loyalty.Delivery
			status     string
			reason     string
			customerID string
			receivedAt string
		)
		if err := rows.Scan(&d.ID, &d.EventKey, &d.Topic, &d.ShopDomain,
			&status, &reason, &d.Points, &customerID, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Status = loyalty.Status(status)
		d.Reason = loyalty.Reason(reason)
		d.CustomerID = loyalty.CustomerID(customerID)
		d.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// Helper functions

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
