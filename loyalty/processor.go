/*
processor.go - Order event processing with at-most-once point awards

PURPOSE:
  Takes a webhook's order-created event and decides whether to award
  points, exactly once per order, no matter how many times the platform
  delivers the event.

DECISION LADDER (evaluated in order, first match wins):
  1. Topic is not orders/create        -> rejected (unsupported_topic)
  2. Order id missing                  -> no-op   (malformed_input)
  3. No customer attached              -> no-op   (no_customer)
  4. Computed points <= 0              -> no-op   (below_threshold)
  5. Marker already recorded           -> no-op   (already_processed)
  6. Marker insert hits unique key     -> no-op   (already_processed)
  7. Any store error                   -> failed  (store_failure)
  Otherwise                            -> accepted, points credited

CONCURRENCY:
  Two deliveries of the same order can race past the IsProcessed
  pre-check. The marker insert is the real gate: the store's unique
  constraint lets exactly one delivery through and hands every other one
  ErrDuplicateEventKey. The loser must not touch the ledger.

  Below-threshold orders write no marker. Re-evaluating a redelivery of
  such an order is deterministic and yields the same no-op, so the marker
  would buy nothing.

SEE ALSO:
  - store.go: Store and TxStore contracts the processor relies on
  - points.go: The subtotal-to-points rule and event key format
*/
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Processor turns order-created events into loyalty point awards.
// It is safe for concurrent use: cross-delivery coordination lives in the
// store's unique marker constraint, not in process memory.
type Processor struct {
	store Store
	tx    TxStore // non-nil when the store supports transactions
}

// NewProcessor builds a processor on top of a store. When the store also
// implements TxStore, the marker insert and the balance credit are
// committed in one transaction.
func NewProcessor(store Store) *Processor {
	p := &Processor{store: store}
	if tx, ok := store.(TxStore); ok {
		p.tx = tx
	}
	return p
}

// Process runs one order event through the decision ladder.
// The returned error is non-nil only when Result.Status is StatusFailed,
// so callers can map it straight to a retryable server error.
func (p *Processor) Process(ctx context.Context, ev OrderEvent) (Result, error) {
	// Only order creation awards points. Everything else is rejected so
	// the webhook endpoint can answer with a client error.
	if ev.Topic != TopicOrdersCreate {
		return Result{Status: StatusRejected, Reason: ReasonUnsupportedTopic}, nil
	}

	// Without an order id there is no event key, and without an event key
	// the delivery cannot be made idempotent. A payload problem, not a
	// server fault: retrying would not fix it.
	if ev.OrderID == "" {
		return Result{Status: StatusNoOp, Reason: ReasonMalformedInput}, nil
	}

	// Guest checkouts carry no customer. Nobody to credit.
	if ev.Customer == nil || ev.Customer.ID == "" {
		return Result{Status: StatusNoOp, Reason: ReasonNoCustomer}, nil
	}
	customerID := CustomerID(ev.Customer.ID)

	// Unparseable, negative and sub-threshold subtotals all land at zero
	// points. No marker is written for these.
	points := AwardForSubtotal(ev.SubtotalPrice)
	if points <= 0 {
		return Result{Status: StatusNoOp, Reason: ReasonBelowThreshold, CustomerID: customerID}, nil
	}

	eventKey := EventKey(ev.OrderID)

	// Cheap pre-check for the common redelivery case. Not authoritative:
	// two concurrent deliveries can both pass it. The marker insert below
	// is the actual gate.
	done, err := p.store.IsProcessed(ctx, eventKey)
	if err != nil {
		return p.failed(customerID, fmt.Errorf("checking marker %s: %w", eventKey, err))
	}
	if done {
		return Result{Status: StatusNoOp, Reason: ReasonAlreadyProcessed, CustomerID: customerID}, nil
	}

	err = p.commit(ctx, eventKey, customerID, points, time.Now().UTC())
	if errors.Is(err, ErrDuplicateEventKey) {
		// Lost the race to another delivery of the same order. The winner
		// credited the points; this delivery must not touch the ledger.
		return Result{Status: StatusNoOp, Reason: ReasonAlreadyProcessed, CustomerID: customerID}, nil
	}
	if err != nil {
		return p.failed(customerID, fmt.Errorf("committing award for %s: %w", eventKey, err))
	}

	return Result{
		Status:        StatusAccepted,
		CustomerID:    customerID,
		PointsAwarded: points,
	}, nil
}

// commit records the marker and credits the points. With a TxStore both
// writes land together or not at all. Without one the marker goes first:
// a crash between the two writes can lose an award, but a redelivery can
// never double-award.
func (p *Processor) commit(ctx context.Context, eventKey string, customerID CustomerID, points int64, at time.Time) error {
	if p.tx != nil {
		return p.tx.WithTx(ctx, func(s Store) error {
			if err := s.MarkProcessed(ctx, eventKey, at); err != nil {
				return err
			}
			_, err := s.UpsertAdd(ctx, customerID, points, at)
			return err
		})
	}
	if err := p.store.MarkProcessed(ctx, eventKey, at); err != nil {
		return err
	}
	_, err := p.store.UpsertAdd(ctx, customerID, points, at)
	return err
}

func (p *Processor) failed(customerID CustomerID, err error) (Result, error) {
	return Result{Status: StatusFailed, Reason: ReasonStoreFailure, CustomerID: customerID}, err
}
