/*
points.go - Award computation and event key derivation

PURPOSE:
  The two pure functions at the heart of the program: how many points an
  order subtotal earns, and which idempotency key identifies the order's
  created event.

AWARD RULE:
  One point per SpendPerPoint (10) currency units of subtotal, rounded
  down. "9.99" earns 0, "10.00" earns 1, "50.00" earns 5.

  Subtotals arrive as decimal strings from the platform. They are parsed
  with shopspring/decimal so "0.30"-class values never pick up binary
  floating point artifacts. Anything that cannot earn points - garbage,
  empty strings, negative refund-shaped subtotals - computes to 0.
*/
package loyalty

import "github.com/shopspring/decimal"

// SpendPerPoint is the subtotal spend that earns one point.
const SpendPerPoint = 10

var spendPerPoint = decimal.NewFromInt(SpendPerPoint)

// AwardForSubtotal returns floor(subtotal / SpendPerPoint) for a decimal
// subtotal string, never below zero. Unparseable and negative inputs
// both return 0.
func AwardForSubtotal(subtotal string) int64 {
	d, err := decimal.NewFromString(subtotal)
	if err != nil {
		return 0
	}
	points := d.Div(spendPerPoint).Floor().IntPart()
	if points < 0 {
		return 0
	}
	return points
}

// EventKey derives the idempotency key recorded for an order-created event.
// The key is namespaced so markers from other event families can never
// collide with it.
func EventKey(orderID string) string {
	return "order_" + orderID + "_processed"
}
