/*
memory.go - In-memory loyalty store for tests and local development

PURPOSE:
  A map-backed implementation of the loyalty store interfaces. Keeps the
  same contracts as the SQLite store (unique marker inserts, non-negative
  balances, newest-first listings) so tests exercise real semantics.

TYPES:
  Memory:   Store + AdminStore + DeliveryLog backed by maps
  TxMemory: Memory plus WithTx via snapshot and restore

CONCURRENCY:
  One RWMutex guards everything. TxMemory.WithTx holds the write lock for
  the whole transaction and hands fn a view that reuses the already-held
  lock, so a transaction observes and produces a consistent state.

SEE ALSO:
  - loyalty/store.go: The contracts implemented here
  - store/sqlite/sqlite.go: The production implementation
*/
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pointsmith/loyalty-engine/loyalty"
)

const defaultListLimit = 50

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory is a map-backed loyalty store. Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	entries     map[loyalty.CustomerID]loyalty.Entry
	processed   map[string]time.Time
	adjustments map[loyalty.CustomerID][]loyalty.Adjustment
	deliveries  []loyalty.Delivery
	nextDelID   int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[loyalty.CustomerID]loyalty.Entry),
		processed:   make(map[string]time.Time),
		adjustments: make(map[loyalty.CustomerID][]loyalty.Adjustment),
	}
}

// ===== CORE STORE =====

func (s *Memory) GetBalance(ctx context.Context, customerID loyalty.CustomerID) (*loyalty.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBalanceLocked(customerID), nil
}

func (s *Memory) UpsertAdd(ctx context.Context, customerID loyalty.CustomerID, delta int64, at time.Time) (loyalty.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertAddLocked(customerID, delta, at)
}

func (s *Memory) MarkProcessed(ctx context.Context, eventKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markProcessedLocked(eventKey, at)
}

func (s *Memory) IsProcessed(ctx context.Context, eventKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[eventKey]
	return ok, nil
}

// ===== LOCKED VARIANTS - shared with the transaction view =====

func (s *Memory) getBalanceLocked(customerID loyalty.CustomerID) *loyalty.Entry {
	e, ok := s.entries[customerID]
	if !ok {
		return nil
	}
	return &e
}

func (s *Memory) upsertAddLocked(customerID loyalty.CustomerID, delta int64, at time.Time) (loyalty.Entry, error) {
	if delta <= 0 {
		return loyalty.Entry{}, fmt.Errorf("delta must be positive, got %d: %w", delta, loyalty.ErrInvalidDelta)
	}
	e := s.entries[customerID]
	e.CustomerID = customerID
	e.Points += delta
	e.UpdatedAt = at
	s.entries[customerID] = e
	return e, nil
}

func (s *Memory) markProcessedLocked(eventKey string, at time.Time) error {
	if _, ok := s.processed[eventKey]; ok {
		return fmt.Errorf("event %s: %w", eventKey, loyalty.ErrDuplicateEventKey)
	}
	s.processed[eventKey] = at
	return nil
}

// ===== ADMIN STORE =====

func (s *Memory) ListEntries(ctx context.Context, opts loyalty.ListOptions) ([]loyalty.Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]loyalty.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if opts.Search != "" && !strings.Contains(string(e.CustomerID), opts.Search) {
			continue
		}
		matches = append(matches, e)
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].CustomerID < matches[j].CustomerID
	})

	total := len(matches)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if opts.Offset >= total {
		return []loyalty.Entry{}, total, nil
	}
	end := opts.Offset + limit
	if end > total {
		end = total
	}
	page := make([]loyalty.Entry, end-opts.Offset)
	copy(page, matches[opts.Offset:end])
	return page, total, nil
}

func (s *Memory) ApplyAdjustment(ctx context.Context, adj loyalty.Adjustment) (loyalty.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if e, ok := s.entries[adj.CustomerID]; ok {
		current = e.Points
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

	e := loyalty.Entry{CustomerID: adj.CustomerID, Points: next, UpdatedAt: adj.CreatedAt}
	s.entries[adj.CustomerID] = e
	s.adjustments[adj.CustomerID] = append(s.adjustments[adj.CustomerID], adj)
	return e, nil
}

func (s *Memory) ListAdjustments(ctx context.Context, customerID loyalty.CustomerID, limit int) ([]loyalty.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}
	history := s.adjustments[customerID]
	out := make([]loyalty.Adjustment, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// ===== DELIVERY LOG =====

func (s *Memory) RecordDelivery(ctx context.Context, d loyalty.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDelID++
	d.ID = s.nextDelID
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *Memory) RecentDeliveries(ctx context.Context, limit int) ([]loyalty.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}
	out := make([]loyalty.Delivery, 0, limit)
	for i := len(s.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.deliveries[i])
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory adds WithTx on top of Memory. A transaction runs under the
// write lock against a snapshot-protected view; if fn fails, the state is
// restored wholesale.
type TxMemory struct {
	*Memory
}

// NewTxMemory returns an empty transactional in-memory store.
func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (s *TxMemory) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(&txMemoryView{m: s.Memory}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	entries   map[loyalty.CustomerID]loyalty.Entry
	processed map[string]time.Time
}

func (s *Memory) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		entries:   make(map[loyalty.CustomerID]loyalty.Entry, len(s.entries)),
		processed: make(map[string]time.Time, len(s.processed)),
	}
	for k, v := range s.entries {
		snap.entries[k] = v
	}
	for k, v := range s.processed {
		snap.processed[k] = v
	}
	return snap
}

func (s *Memory) restoreLocked(snap memSnapshot) {
	s.entries = snap.entries
	s.processed = snap.processed
}

// txMemoryView exposes the core store operations against a Memory whose
// lock is already held by WithTx. It must never take the lock itself.
type txMemoryView struct {
	m *Memory
}

func (v *txMemoryView) GetBalance(ctx context.Context, customerID loyalty.CustomerID) (*loyalty.Entry, error) {
	return v.m.getBalanceLocked(customerID), nil
}

func (v *txMemoryView) UpsertAdd(ctx context.Context, customerID loyalty.CustomerID, delta int64, at time.Time) (loyalty.Entry, error) {
	return v.m.upsertAddLocked(customerID, delta, at)
}

func (v *txMemoryView) MarkProcessed(ctx context.Context, eventKey string, at time.Time) error {
	return v.m.markProcessedLocked(eventKey, at)
}

func (v *txMemoryView) IsProcessed(ctx context.Context, eventKey string) (bool, error) {
	_, ok := v.m.processed[eventKey]
	return ok, nil
}
