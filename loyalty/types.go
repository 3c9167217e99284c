/*
Package loyalty implements the merchant loyalty points ledger.

PURPOSE:
  This package contains the domain types and the order-event processor for
  a points program: customers earn points when orders are created, merchants
  can adjust balances manually, and every order event is awarded at most once
  no matter how many times the platform delivers it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: One customer's balance (non-negative, mutated in place)
  - ProcessedEvent: Write-once marker proving an order was already awarded
  - Adjustment: Manual add/subtract/set performed by a merchant admin
  - OrderEvent: The decoded order-created payload handed to the processor
  - Result: The processor's outcome (accepted / no-op / rejected / failed)

DESIGN PRINCIPLES:
  1. At-most-once: The ProcessedEvent marker is the serialization point.
     Award writes happen only after the marker insert succeeds.
  2. Non-negative balances: Entries never go below zero. Only explicit
     admin subtract/set operations can lower a balance.
  3. Type safety: CustomerID is a distinct type so it cannot be confused
     with order ids or event keys.

SEE ALSO:
  - processor.go: The decision ladder that turns an OrderEvent into a Result
  - store.go: Persistence interfaces
  - points.go: Subtotal-to-points computation and event key derivation
*/
package loyalty

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// CustomerID is the platform's customer identifier, treated as opaque.
type CustomerID string

// TopicOrdersCreate is the only webhook topic the processor awards points for.
const TopicOrdersCreate = "orders/create"

// =============================================================================
// LEDGER RECORDS
// =============================================================================

// Entry is one customer's loyalty balance. At most one Entry exists per
// customer; it is created on the first award and then mutated in place.
type Entry struct {
	CustomerID CustomerID
	Points     int64
	UpdatedAt  time.Time
}

// ProcessedEvent marks an order event whose award has been applied.
// Existence of the marker means the award happened exactly once; markers
// are never updated or deleted.
type ProcessedEvent struct {
	EventKey   string
	RecordedAt time.Time
}

// =============================================================================
// MANUAL ADJUSTMENTS
// =============================================================================

type AdjustmentOp string

const (
	AdjustAdd      AdjustmentOp = "add"
	AdjustSubtract AdjustmentOp = "subtract"
	AdjustSet      AdjustmentOp = "set"
)

// Adjustment is a manual balance change performed by a merchant admin.
// It is recorded alongside the balance mutation as an audit trail.
type Adjustment struct {
	ID         string
	CustomerID CustomerID
	Op         AdjustmentOp
	Amount     int64
	Note       string
	CreatedAt  time.Time
}

// =============================================================================
// INBOUND EVENT
// =============================================================================

// OrderEvent is the decoded order-created payload handed to the processor.
// Customer is nil when the order was placed without a customer account
// (guest checkout), which is a legal payload, not an error.
type OrderEvent struct {
	Topic         string
	ShopDomain    string
	OrderID       string
	Customer      *OrderCustomer
	SubtotalPrice string
}

// OrderCustomer identifies the account that placed the order.
type OrderCustomer struct {
	ID string
}

// =============================================================================
// PROCESSOR OUTCOME
// =============================================================================

// Status classifies how a delivery was settled.
type Status string

const (
	StatusAccepted Status = "accepted" // points were awarded
	StatusNoOp     Status = "no-op"    // settled without touching the ledger
	StatusRejected Status = "rejected" // caller sent something we never handle
	StatusFailed   Status = "failed"   // store failure, safe to redeliver
)

// Reason explains a non-accepted status.
type Reason string

const (
	ReasonNoCustomer       Reason = "no_customer"
	ReasonBelowThreshold   Reason = "below_threshold"
	ReasonAlreadyProcessed Reason = "already_processed"
	ReasonUnsupportedTopic Reason = "unsupported_topic"
	ReasonMalformedInput   Reason = "malformed_input"
	ReasonStoreFailure     Reason = "store_failure"
)

// Result is the processor's outcome for one delivery. CustomerID and
// PointsAwarded are set when the award happened; Reason is set for every
// status except accepted.
type Result struct {
	Status        Status
	Reason        Reason
	CustomerID    CustomerID
	PointsAwarded int64
}

// =============================================================================
// DELIVERY LOG
// =============================================================================

// Delivery is one received webhook delivery, kept for operational
// visibility. Recording a Delivery is best-effort and never changes how
// the event itself was settled.
type Delivery struct {
	ID         int64
	EventKey   string
	Topic      string
	ShopDomain string
	Status     Status
	Reason     Reason
	Points     int64
	CustomerID CustomerID
	ReceivedAt time.Time
}
