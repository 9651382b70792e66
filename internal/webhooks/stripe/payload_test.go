package stripewebhook

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
)

func TestNormalizeSessionCollectedInformationFallback(t *testing.T) {
	raw := `{
		"id": "cs_collected",
		"payment_intent": "pi_collected",
		"collected_information": {
			"shipping_details": {
				"name": "Riley Chen",
				"phone": "+15550142",
				"address": {"line1": "4 Birch Rd", "line2": "Unit 2", "city": "Eugene", "state": "OR", "postal_code": "97401", "country": "US"}
			}
		},
		"customer_email": "riley@example.com"
	}`
	snapshot, err := normalizeSession(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if snapshot.Shipping.Name != "Riley Chen" || snapshot.Shipping.Line1 != "4 Birch Rd" {
		t.Fatalf("expected nested shipping details, got %+v", snapshot.Shipping)
	}
	if snapshot.Shipping.Line2 == nil || *snapshot.Shipping.Line2 != "Unit 2" {
		t.Fatalf("expected line2 preserved, got %v", snapshot.Shipping.Line2)
	}
	if snapshot.Billing.Line1 != "4 Birch Rd" {
		t.Fatalf("expected billing to fall back to shipping, got %+v", snapshot.Billing)
	}
	if snapshot.Email != "riley@example.com" {
		t.Fatalf("expected customer_email fallback, got %q", snapshot.Email)
	}
	if snapshot.Phone == nil || *snapshot.Phone != "+15550142" {
		t.Fatalf("expected shipping phone fallback, got %v", snapshot.Phone)
	}
}

func TestNormalizeSessionCustomerAddressFallback(t *testing.T) {
	raw := `{
		"id": "cs_customer_only",
		"payment_intent": {"id": "pi_customer_only"},
		"customer_details": {
			"name": "Sam Okafor",
			"email": "sam@example.com",
			"address": {"line1": "77 Cedar Way", "city": "Bend", "state": "OR", "postal_code": "97701", "country": "US"}
		}
	}`
	snapshot, err := normalizeSession(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if snapshot.PaymentIntentID != "pi_customer_only" {
		t.Fatalf("expected object intent reference, got %q", snapshot.PaymentIntentID)
	}
	if snapshot.Shipping.Name != "Sam Okafor" || snapshot.Shipping.Line1 != "77 Cedar Way" {
		t.Fatalf("expected customer address as shipping, got %+v", snapshot.Shipping)
	}
	if snapshot.Billing.Line1 != "77 Cedar Way" {
		t.Fatalf("expected billing from customer details, got %+v", snapshot.Billing)
	}
}

func TestNormalizeSessionMetadataParsing(t *testing.T) {
	cartID := uuid.New()
	raw := `{
		"id": "cs_meta",
		"payment_intent": null,
		"metadata": {"cart_id": "` + cartID.String() + `", "user_id": "not-a-uuid", "session_key": "guest-token-1"}
	}`
	snapshot, err := normalizeSession(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if snapshot.PaymentIntentID != "" {
		t.Fatalf("expected empty intent for null reference, got %q", snapshot.PaymentIntentID)
	}
	if snapshot.CartID != cartID {
		t.Fatalf("expected cart id parsed, got %s", snapshot.CartID)
	}
	if snapshot.UserID != nil {
		t.Fatalf("expected malformed user id skipped, got %v", snapshot.UserID)
	}
	if snapshot.SessionKey == nil || *snapshot.SessionKey != "guest-token-1" {
		t.Fatalf("expected session key copied, got %v", snapshot.SessionKey)
	}
}

func TestNormalizeSessionPrefersCustomerDetailsEmail(t *testing.T) {
	raw := `{
		"id": "cs_email",
		"customer_email": "fallback@example.com",
		"customer_details": {"email": "primary@example.com"}
	}`
	snapshot, err := normalizeSession(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if snapshot.Email != "primary@example.com" {
		t.Fatalf("expected customer_details email to win, got %q", snapshot.Email)
	}
}

func TestNormalizeSessionRejectsMalformedPayload(t *testing.T) {
	_, err := normalizeSession(json.RawMessage(`{"id": `))
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
