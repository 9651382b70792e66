package checkout

import (
	"github.com/google/uuid"

	"github.com/jordanmaier/copperline-backend/internal/cart"
)

// Actor identifies who is checking out: the cart owner plus the contact
// email when the caller is authenticated.
type Actor struct {
	Owner cart.Owner
	Email *string
}

// SessionResult carries the gateway handles the client needs to redirect.
type SessionResult struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	CheckoutURL       string `json:"checkout_url"`
}

// VerificationStatus is the polling outcome reported to the success page.
type VerificationStatus string

const (
	VerificationSuccess VerificationStatus = "success"
	VerificationPending VerificationStatus = "pending"
	VerificationFailed  VerificationStatus = "failed"
)

// VerificationResult reports where a checkout session landed. OrderID and
// OrderNumber are set only once the webhook has materialized the order.
type VerificationResult struct {
	Status      VerificationStatus `json:"status"`
	OrderID     *uuid.UUID         `json:"order_id,omitempty"`
	OrderNumber *string            `json:"order_number,omitempty"`
	Message     *string            `json:"message,omitempty"`
}
