/*
store.go - Persistence interfaces for the loyalty ledger

PURPOSE:
  Defines the contract between the domain logic and the database. The
  interfaces are split by capability so a minimal store can back the
  processor while richer stores add admin queries and transactions.

KEY INTERFACES:
  Store:       What the order processor needs (balance, award, markers)
  TxStore:     Adds atomic multi-write transactions
  AdminStore:  Adds the merchant-facing queries and manual adjustments
  DeliveryLog: Best-effort log of received webhook deliveries

IDEMPOTENCY CONTRACT:
  MarkProcessed is a uniqueness-enforcing insert. A duplicate event key
  MUST surface as ErrDuplicateEventKey - never a silent no-op - because
  the processor uses that error to tell "first delivery" apart from
  "redelivery" under concurrency. The database unique constraint, not any
  in-process check, is the source of truth.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store (all interfaces)
  - loyalty/store: In-memory store for tests and local development

EXAMPLE:
  err := store.MarkProcessed(ctx, loyalty.EventKey(orderID), time.Now())
  if errors.Is(err, loyalty.ErrDuplicateEventKey) {
      // already awarded, drop the redelivery
  }
*/
package loyalty

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// CORE STORE - What the order processor needs
// =============================================================================

// Store persists loyalty balances and processed-event markers.
type Store interface {
	// GetBalance returns the entry for a customer, or nil when the customer
	// has never earned points.
	GetBalance(ctx context.Context, customerID CustomerID) (*Entry, error)

	// UpsertAdd credits delta points (delta > 0), creating the entry if it
	// does not exist, and stamps UpdatedAt. Returns the resulting entry.
	UpsertAdd(ctx context.Context, customerID CustomerID, delta int64, at time.Time) (Entry, error)

	// MarkProcessed inserts the write-once marker for an event key.
	// Returns ErrDuplicateEventKey if the key was already recorded.
	MarkProcessed(ctx context.Context, eventKey string, at time.Time) error

	// IsProcessed reports whether an event key has been recorded.
	IsProcessed(ctx context.Context, eventKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic marker + award commits
// =============================================================================

// TxStore wraps Store with transaction support.
// The processor uses it to commit the marker insert and the balance credit
// as a single atomic write when the backing store can provide that.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, every write fn made is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// ADMIN STORE - Merchant-facing queries and manual adjustments
// =============================================================================

// ListOptions pages and filters the admin entry listing.
type ListOptions struct {
	Limit  int
	Offset int
	Search string // substring match on customer id
}

// AdminStore extends Store with the operations behind the admin API.
type AdminStore interface {
	Store

	// ListEntries returns one page of entries plus the total count.
	ListEntries(ctx context.Context, opts ListOptions) ([]Entry, int, error)

	// ApplyAdjustment applies a manual adjustment and records it, both in
	// one atomic write. Returns the resulting entry.
	ApplyAdjustment(ctx context.Context, adj Adjustment) (Entry, error)

	// ListAdjustments returns a customer's adjustment history, newest first.
	ListAdjustments(ctx context.Context, customerID CustomerID, limit int) ([]Adjustment, error)
}

// DeliveryLog records received webhook deliveries for operational
// visibility. Failures to record are logged by callers, never fatal.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d Delivery) error
	RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
}

// =============================================================================
// ADJUSTMENT ARITHMETIC - Shared by every store implementation
// =============================================================================

// NextPoints returns the balance after applying adj to current, enforcing
// the non-negative balance invariant. Store implementations call this so
// the rules live in exactly one place.
func NextPoints(current int64, adj Adjustment) (int64, error) {
	switch adj.Op {
	case AdjustAdd:
		if adj.Amount <= 0 {
			return 0, fmt.Errorf("add amount must be positive, got %d: %w", adj.Amount, ErrInvalidDelta)
		}
		return current + adj.Amount, nil
	case AdjustSubtract:
		if adj.Amount <= 0 {
			return 0, fmt.Errorf("subtract amount must be positive, got %d: %w", adj.Amount, ErrInvalidDelta)
		}
		if current < adj.Amount {
			return 0, &InsufficientPointsError{
				CustomerID: adj.CustomerID,
				Available:  current,
				Requested:  adj.Amount,
			}
		}
		return current - adj.Amount, nil
	case AdjustSet:
		if adj.Amount < 0 {
			return 0, fmt.Errorf("set amount must be non-negative, got %d: %w", adj.Amount, ErrInvalidDelta)
		}
		return adj.Amount, nil
	default:
		return 0, fmt.Errorf("unknown adjustment op %q: %w", adj.Op, ErrInvalidDelta)
	}
}
