/*
webhooks.go - Shopify webhook intake

PURPOSE:
  Receives order webhooks, verifies their signature, maps the payload to
  a domain event and runs it through the processor. The HTTP status code
  is the redelivery contract with Shopify:

    200  accepted or deliberate no-op; Shopify stops redelivering
    401  bad signature; the delivery is not ours to process
    422  unsupported topic; misconfigured subscription, do not retry
    500  store failure; Shopify retries and the marker makes that safe

PAYLOAD TOLERANCE:
  Shopify ids can exceed 2^53, so they are never decoded through float64.
  Money and id fields are accepted as either JSON strings or numbers;
  anything unreadable degrades to a zero value and the processor decides
  what that means. A body that does not parse at all is answered 200 as a
  malformed-input no-op: retrying a bad payload cannot fix it.

SEE ALSO:
  - loyalty/processor.go: The decision ladder behind this endpoint
  - shopify/webhook.go: Header names and signature verification
*/
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pointsmith/loyalty-engine/loyalty"
	"github.com/pointsmith/loyalty-engine/shopify"
)

// maxWebhookBody caps how much of a delivery is read. Order payloads are
// a few KB; anything near the cap is not a real order.
const maxWebhookBody = 1 << 20

// HandleShopifyWebhook processes one webhook delivery.
// POST /webhooks/shopify
func (h *Handler) HandleShopifyWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	if h.WebhookSecret != "" {
		if !shopify.VerifyWebhookHMAC(body, h.WebhookSecret, r.Header.Get(shopify.HeaderHMAC)) {
			writeError(w, http.StatusUnauthorized, "Invalid webhook signature", nil)
			return
		}
	}

	ev := parseOrderEvent(
		r.Header.Get(shopify.HeaderTopic),
		r.Header.Get(shopify.HeaderShopDomain),
		body,
	)

	result, procErr := h.Processor.Process(r.Context(), ev)
	if procErr != nil {
		log.Printf("webhook processing failed (topic=%s order=%s): %v", ev.Topic, ev.OrderID, procErr)
	}

	h.recordDelivery(r, ev, result)
	observeWebhook(result, time.Since(start))

	writeJSON(w, statusCodeFor(result.Status), toWebhookResultDTO(result))
}

// statusCodeFor maps a processing outcome to the HTTP status Shopify's
// redelivery logic keys off.
func statusCodeFor(status loyalty.Status) int {
	switch status {
	case loyalty.StatusAccepted, loyalty.StatusNoOp:
		return http.StatusOK
	case loyalty.StatusRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// recordDelivery logs the delivery for the admin activity view.
// Best-effort: a full delivery log must never fail a webhook.
func (h *Handler) recordDelivery(r *http.Request, ev loyalty.OrderEvent, result loyalty.Result) {
	eventKey := ""
	if ev.OrderID != "" {
		eventKey = loyalty.EventKey(ev.OrderID)
	}
	err := h.Store.RecordDelivery(r.Context(), loyalty.Delivery{
		EventKey:   eventKey,
		Topic:      ev.Topic,
		ShopDomain: ev.ShopDomain,
		Status:     result.Status,
		Reason:     result.Reason,
		Points:     result.PointsAwarded,
		CustomerID: result.CustomerID,
	})
	if err != nil {
		log.Printf("failed to record webhook delivery: %v", err)
	}
}

// =============================================================================
// PAYLOAD PARSING
// =============================================================================

// flexString decodes a JSON string or number into a string. Numbers keep
// their literal digits, so 64-bit Shopify ids survive intact.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

type orderPayload struct {
	ID            flexString `json:"id"`
	SubtotalPrice flexString `json:"subtotal_price"`
	Customer      *struct {
		ID flexString `json:"id"`
	} `json:"customer"`
}

// parseOrderEvent maps a raw delivery to a domain event. It never fails:
// an unreadable body yields an event without an order id, which the
// processor treats as malformed input.
func parseOrderEvent(topic, shopDomain string, body []byte) loyalty.OrderEvent {
	ev := loyalty.OrderEvent{Topic: topic, ShopDomain: shopDomain}

	var p orderPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ev
	}

	ev.OrderID = string(p.ID)
	ev.SubtotalPrice = string(p.SubtotalPrice)
	if p.Customer != nil && p.Customer.ID != "" {
		ev.Customer = &loyalty.OrderCustomer{ID: string(p.Customer.ID)}
	}
	return ev
}
