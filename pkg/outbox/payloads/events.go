package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
)

// OrderCreatedEvent announces a freshly materialized order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID      `json:"order_id"`
	OrderNumber     int64          `json:"order_number"`
	UserID          *uuid.UUID     `json:"user_id,omitempty"`
	Email           string         `json:"email"`
	Currency        enums.Currency `json:"currency"`
	TotalCents      int64          `json:"total_cents"`
	ItemCount       int            `json:"item_count"`
	PaymentIntentID string         `json:"payment_intent_id"`
}

// CancelledItem carries the per-line quantities a restock consumer needs.
type CancelledItem struct {
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Quantity  int        `json:"quantity"`
}

// OrderCancelledEvent is emitted when a settled order is voided after a
// failed payment. Consumers use the item list to return stock.
type OrderCancelledEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	OrderNumber     int64           `json:"order_number"`
	PaymentIntentID string          `json:"payment_intent_id"`
	CancelledAt     time.Time       `json:"cancelled_at"`
	Reason          string          `json:"reason,omitempty"`
	Items           []CancelledItem `json:"items"`
}

// PaymentFailedEvent mirrors the gateway's failure notice for alerting.
type PaymentFailedEvent struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	FailureMessage  string    `json:"failure_message,omitempty"`
}
