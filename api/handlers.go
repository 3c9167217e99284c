/*
handlers.go - HTTP API handlers for the loyalty service

PURPOSE:
  Exposes the loyalty ledger and the shop inventory via REST. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic in the loyalty and shopify packages.

ENDPOINTS:
  Points:
    GET    /api/points                    List balances (paged, searchable)
    GET    /api/points/{id}               One customer's balance
    POST   /api/points/{id}/adjust        Manual adjustment (add/subtract/set)
    GET    /api/points/{id}/adjustments   Adjustment history

  Webhooks:
    POST   /webhooks/shopify              Order webhook intake (webhooks.go)
    GET    /api/webhooks/recent           Recent deliveries

  Inventory:
    GET    /api/inventory/variants        Paged variant listing
    GET    /api/inventory/locations       Stock locations
    POST   /api/inventory/quantities      Absolute quantity writes

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (ledger, adjustments, delivery log)
  - Processor: The order event processor
  - Inventory: Shopify Admin API client (nil when unconfigured)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Webhook signature failures
  - 404: Unknown routes only; unknown customers read as zero balances
  - 422: Rejected webhooks, refused inventory writes
  - 500: Store failures (webhook deliveries get retried)
  - 503: Inventory endpoints without Shopify credentials

SEE ALSO:
  - dto.go: Request/response data structures
  - webhooks.go: The webhook intake endpoint
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pointsmith/loyalty-engine/loyalty"
	"github.com/pointsmith/loyalty-engine/shopify"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AdminBackend is everything the HTTP layer needs from persistence.
type AdminBackend interface {
	loyalty.AdminStore
	loyalty.DeliveryLog
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     AdminBackend
	Processor *loyalty.Processor

	// Inventory is nil when no Shopify credentials are configured; the
	// inventory endpoints then answer 503.
	Inventory *shopify.Client

	// WebhookSecret enables signature verification when non-empty.
	WebhookSecret string

	// Metrics controls whether the router exposes /metrics.
	Metrics bool
}

// NewHandler creates a handler on top of a store. The processor picks up
// the store's transaction support automatically.
func NewHandler(store AdminBackend) *Handler {
	return &Handler{
		Store:     store,
		Processor: loyalty.NewProcessor(store),
		Metrics:   true,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// POINTS HANDLERS
// =============================================================================

// ListPoints returns one page of balances.
// GET /api/points?limit=&offset=&q=
func (h *Handler) ListPoints(w http.ResponseWriter, r *http.Request) {
	opts := loyalty.ListOptions{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
		Search: r.URL.Query().Get("q"),
	}

	entries, total, err := h.Store.ListEntries(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list balances", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}

	writeJSON(w, http.StatusOK, ListEntriesResponse{
		Entries: dtos,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetPoints returns one customer's balance. Customers without an entry
// read as zero, matching what the ledger would answer.
// GET /api/points/{id}
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	customerID := loyalty.CustomerID(chi.URLParam(r, "id"))

	entry, err := h.Store.GetBalance(r.Context(), customerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusOK, EntryDTO{CustomerID: string(customerID)})
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// Adjust applies a manual adjustment to a customer's balance.
// POST /api/points/{id}/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	customerID := loyalty.CustomerID(chi.URLParam(r, "id"))

	var req AdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Store.ApplyAdjustment(r.Context(), loyalty.Adjustment{
		CustomerID: customerID,
		Op:         loyalty.AdjustmentOp(req.Op),
		Amount:     req.Amount,
		Note:       req.Note,
	})
	if err != nil {
		if errors.Is(err, loyalty.ErrInsufficientPoints) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Not enough points to subtract",
				Code:    "insufficient_points",
				Details: err.Error(),
			})
			return
		}
		if loyalty.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid adjustment", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to apply adjustment", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// ListAdjustments returns a customer's adjustment history, newest first.
// GET /api/points/{id}/adjustments?limit=
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	customerID := loyalty.CustomerID(chi.URLParam(r, "id"))
	limit := queryInt(r, "limit", 50)

	adjustments, err := h.Store.ListAdjustments(r.Context(), customerID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list adjustments", err)
		return
	}

	dtos := make([]AdjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecentWebhooks returns the latest webhook deliveries, newest first.
// GET /api/webhooks/recent?limit=
func (h *Handler) RecentWebhooks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	deliveries, err := h.Store.RecentDeliveries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries", err)
		return
	}

	dtos := make([]DeliveryDTO, len(deliveries))
	for i, d := range deliveries {
		dtos[i] = toDeliveryDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListVariants returns one page of product variants from the shop.
// GET /api/inventory/variants?q=&after=&first=
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	if h.Inventory == nil {
		writeError(w, http.StatusServiceUnavailable, "Shopify is not configured", nil)
		return
	}

	q := r.URL.Query()
	page, err := h.Inventory.Variants(r.Context(), q.Get("q"), q.Get("after"), queryInt(r, "first", 50))
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to list variants", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListLocations returns the shop's stock locations.
// GET /api/inventory/locations
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	if h.Inventory == nil {
		writeError(w, http.StatusServiceUnavailable, "Shopify is not configured", nil)
		return
	}

	locations, err := h.Inventory.Locations(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to list locations", err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

// SetQuantitiesRequest is the request to write absolute quantities.
type SetQuantitiesRequest struct {
	Reason     string                  `json:"reason,omitempty"`
	Quantities []shopify.QuantityInput `json:"quantities"`
}

// SetQuantities writes absolute available quantities to the shop.
// POST /api/inventory/quantities
func (h *Handler) SetQuantities(w http.ResponseWriter, r *http.Request) {
	if h.Inventory == nil {
		writeError(w, http.StatusServiceUnavailable, "Shopify is not configured", nil)
		return
	}

	var req SetQuantitiesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Quantities) == 0 {
		writeError(w, http.StatusBadRequest, "No quantities given", nil)
		return
	}

	userErrors, err := h.Inventory.SetQuantities(r.Context(), req.Reason, req.Quantities)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to set quantities", err)
		return
	}
	if len(userErrors) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Shop refused some quantity writes",
			Code:    "user_errors",
			Details: userErrors,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"updated": len(req.Quantities),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
