/*
errors.go - Centralized error types for the loyalty ledger

PURPOSE:
  All domain errors in one place. Store implementations map database-level
  failures (unique constraint violations) onto these sentinels so callers
  can branch with errors.Is without knowing which store is behind them.

ERROR CATEGORIES:
  1. Idempotency errors - duplicate event key on marker insert
  2. Validation errors  - bad deltas, balance would go negative
  3. Everything else    - wrapped store failures, surfaced as-is

USAGE:
  err := store.MarkProcessed(ctx, key, now)
  if errors.Is(err, loyalty.ErrDuplicateEventKey) {
      // another delivery already claimed this order
  }
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateEventKey is returned when a processed-event marker with the
	// same event key already exists. This is the expected signal for webhook
	// redelivery and for losing a concurrent-delivery race.
	ErrDuplicateEventKey = errors.New("duplicate event key")

	// ErrInvalidDelta is returned when an award or adjustment amount violates
	// its contract (non-positive award, negative set, unknown op).
	ErrInvalidDelta = errors.New("invalid points delta")

	// ErrInsufficientPoints is returned when a subtract adjustment would take
	// a balance below zero.
	ErrInsufficientPoints = errors.New("insufficient points")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError reports how far a subtract overshot the balance.
type InsufficientPointsError struct {
	CustomerID CustomerID
	Available  int64
	Requested  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for %s: available %d, requested %d",
		e.CustomerID, e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDelta) ||
		errors.Is(err, ErrInsufficientPoints)
}

// IsConflict returns true if the error means the write lost to an earlier
// identical write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateEventKey)
}
