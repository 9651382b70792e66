package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Order is the immutable record materialized after a payment settles.
// Amounts are copied from the gateway's authoritative session totals and
// contact/address fields are snapshotted, so later catalog or account edits
// never rewrite order history. UserID is nil for guest purchases.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber int64             `gorm:"column:order_number;not null;uniqueIndex"`
	UserID      *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'processing'"`
	Currency    enums.Currency    `gorm:"column:currency;type:text;not null;default:'usd'"`

	Email string  `gorm:"column:email;not null;index"`
	Phone *string `gorm:"column:phone"`

	ShippingName       string  `gorm:"column:shipping_name;not null;default:''"`
	ShippingLine1      string  `gorm:"column:shipping_line1;not null;default:''"`
	ShippingLine2      *string `gorm:"column:shipping_line2"`
	ShippingCity       string  `gorm:"column:shipping_city;not null;default:''"`
	ShippingState      string  `gorm:"column:shipping_state;not null;default:''"`
	ShippingPostalCode string  `gorm:"column:shipping_postal_code;not null;default:''"`
	ShippingCountry    string  `gorm:"column:shipping_country;not null;default:''"`

	BillingName       string  `gorm:"column:billing_name;not null;default:''"`
	BillingLine1      string  `gorm:"column:billing_line1;not null;default:''"`
	BillingLine2      *string `gorm:"column:billing_line2"`
	BillingCity       string  `gorm:"column:billing_city;not null;default:''"`
	BillingState      string  `gorm:"column:billing_state;not null;default:''"`
	BillingPostalCode string  `gorm:"column:billing_postal_code;not null;default:''"`
	BillingCountry    string  `gorm:"column:billing_country;not null;default:''"`

	Subtotal    decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax         decimal.Decimal `gorm:"column:tax;type:numeric(12,2);not null"`
	ShippingFee decimal.Decimal `gorm:"column:shipping_fee;type:numeric(12,2);not null"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`

	Items       []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment     *Payment    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CancelledAt *time.Time  `gorm:"column:cancelled_at"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// FormattedNumber renders the human-facing order reference.
func (o *Order) FormattedNumber() string {
	if o == nil {
		return ""
	}
	return fmt.Sprintf("CL-%d", o.OrderNumber)
}
