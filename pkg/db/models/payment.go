package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Payment records the gateway settlement backing an order. The unique
// payment intent id is the idempotency anchor: at most one Payment (and
// therefore one Order) can ever exist per intent. RawPayload preserves the
// gateway's session object verbatim for audits and disputes.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Provider          string              `gorm:"column:provider;not null;default:'stripe'"`
	PaymentIntentID   string              `gorm:"column:payment_intent_id;not null;uniqueIndex"`
	CheckoutSessionID string              `gorm:"column:checkout_session_id;not null;index"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          enums.Currency      `gorm:"column:currency;type:text;not null;default:'usd'"`
	RawPayload        json.RawMessage     `gorm:"column:raw_payload;type:jsonb"`
	FailureMessage    *string             `gorm:"column:failure_message"`
	FailedAt          *time.Time          `gorm:"column:failed_at"`
	Order             *Order              `gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
