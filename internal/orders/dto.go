package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
)

// SessionAddress is one normalized postal address from the gateway session.
type SessionAddress struct {
	Name       string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Country    string
}

// SessionSnapshot is the normalized form of a completed gateway session.
// Amounts are the gateway's authoritative minor-currency integers; the
// materializer converts them to decimals and never recomputes them from
// cart state.
type SessionSnapshot struct {
	SessionID       string
	PaymentIntentID string
	CartID          uuid.UUID
	UserID          *uuid.UUID
	SessionKey      *string
	Email           string
	Phone           *string
	Currency        string
	SubtotalCents   int64
	TaxCents        int64
	ShippingCents   int64
	TotalCents      int64
	Shipping        SessionAddress
	Billing         SessionAddress
	RawPayload      json.RawMessage
}

// TrackInput identifies a guest order lookup.
type TrackInput struct {
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
}

// AddressDTO is the transport shape for a snapshotted order address.
type AddressDTO struct {
	Name       string  `json:"name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// OrderItemDTO is one purchased line as snapshotted at materialization.
type OrderItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// OrderDTO is the full order detail returned to its owner.
type OrderDTO struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Email       string            `json:"email"`
	Phone       *string           `json:"phone,omitempty"`
	Currency    enums.Currency    `json:"currency"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Tax         decimal.Decimal   `json:"tax"`
	ShippingFee decimal.Decimal   `json:"shipping_fee"`
	Total       decimal.Decimal   `json:"total"`
	Shipping    AddressDTO        `json:"shipping_address"`
	Billing     AddressDTO        `json:"billing_address"`
	Items       []OrderItemDTO    `json:"items"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OrderSummaryDTO is the list-view shape.
type OrderSummaryDTO struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Currency    enums.Currency    `json:"currency"`
	Total       decimal.Decimal   `json:"total"`
	ItemCount   int               `json:"item_count"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OrderList pages a user's order history newest-first.
type OrderList struct {
	Orders     []OrderSummaryDTO `json:"orders"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// FromModel converts a loaded order into its detail DTO.
func FromModel(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	return &OrderDTO{
		ID:          order.ID,
		OrderNumber: order.FormattedNumber(),
		Status:      order.Status,
		Email:       order.Email,
		Phone:       order.Phone,
		Currency:    order.Currency,
		Subtotal:    order.Subtotal,
		Tax:         order.Tax,
		ShippingFee: order.ShippingFee,
		Total:       order.Total,
		Shipping: AddressDTO{
			Name:       order.ShippingName,
			Line1:      order.ShippingLine1,
			Line2:      order.ShippingLine2,
			City:       order.ShippingCity,
			State:      order.ShippingState,
			PostalCode: order.ShippingPostalCode,
			Country:    order.ShippingCountry,
		},
		Billing: AddressDTO{
			Name:       order.BillingName,
			Line1:      order.BillingLine1,
			Line2:      order.BillingLine2,
			City:       order.BillingCity,
			State:      order.BillingState,
			PostalCode: order.BillingPostalCode,
			Country:    order.BillingCountry,
		},
		Items:       items,
		CancelledAt: order.CancelledAt,
		CreatedAt:   order.CreatedAt,
	}
}

// SummaryFromModel converts a loaded order into its list-view shape.
func SummaryFromModel(order *models.Order) OrderSummaryDTO {
	return OrderSummaryDTO{
		ID:          order.ID,
		OrderNumber: order.FormattedNumber(),
		Status:      order.Status,
		Currency:    order.Currency,
		Total:       order.Total,
		ItemCount:   len(order.Items),
		CreatedAt:   order.CreatedAt,
	}
}
