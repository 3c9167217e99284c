/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

FIELD CASING:
  The webhook result uses camelCase (pointsAwarded, customerId) because
  the platform-facing contract predates this service and embedded-app
  clients already parse it. Admin endpoints use snake_case like the rest
  of the API.

SEE ALSO:
  - handlers.go: Uses these types
  - webhooks.go: Webhook payload parsing and result mapping
*/
package api

import (
	"time"

	"github.com/pointsmith/loyalty-engine/loyalty"
)

// =============================================================================
// WEBHOOK TYPES
// =============================================================================

// WebhookResultDTO is the body returned for every webhook delivery.
type WebhookResultDTO struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	PointsAwarded int64  `json:"pointsAwarded,omitempty"`
	CustomerID    string `json:"customerId,omitempty"`
}

func toWebhookResultDTO(result loyalty.Result) WebhookResultDTO {
	return WebhookResultDTO{
		Status:        string(result.Status),
		Reason:        string(result.Reason),
		PointsAwarded: result.PointsAwarded,
		CustomerID:    string(result.CustomerID),
	}
}

// DeliveryDTO is one received webhook delivery in the activity view.
type DeliveryDTO struct {
	ID         int64  `json:"id"`
	EventKey   string `json:"event_key,omitempty"`
	Topic      string `json:"topic"`
	ShopDomain string `json:"shop_domain,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Points     int64  `json:"points,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	ReceivedAt string `json:"received_at"`
}

func toDeliveryDTO(d loyalty.Delivery) DeliveryDTO {
	return DeliveryDTO{
		ID:         d.ID,
		EventKey:   d.EventKey,
		Topic:      d.Topic,
		ShopDomain: d.ShopDomain,
		Status:     string(d.Status),
		Reason:     string(d.Reason),
		Points:     d.Points,
		CustomerID: string(d.CustomerID),
		ReceivedAt: d.ReceivedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// POINTS TYPES
// =============================================================================

// EntryDTO represents one customer's balance.
// A customer without an entry serializes with points 0 and no updated_at.
type EntryDTO struct {
	CustomerID string `json:"customer_id"`
	Points     int64  `json:"points"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func toEntryDTO(e loyalty.Entry) EntryDTO {
	dto := EntryDTO{
		CustomerID: string(e.CustomerID),
		Points:     e.Points,
	}
	if !e.UpdatedAt.IsZero() {
		dto.UpdatedAt = e.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// ListEntriesResponse is one page of balances.
type ListEntriesResponse struct {
	Entries []EntryDTO `json:"entries"`
	Total   int        `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
}

// AdjustRequest is the request to manually adjust a customer's balance.
type AdjustRequest struct {
	Op     string `json:"op"`
	Amount int64  `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// AdjustmentDTO is one entry in a customer's adjustment history.
type AdjustmentDTO struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Op         string `json:"op"`
	Amount     int64  `json:"amount"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toAdjustmentDTO(a loyalty.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:         a.ID,
		CustomerID: string(a.CustomerID),
		Op:         string(a.Op),
		Amount:     a.Amount,
		Note:       a.Note,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
