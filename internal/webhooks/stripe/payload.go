package stripewebhook

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jordanmaier/copperline-backend/internal/orders"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
)

// sessionPayload mirrors the provider's checkout.session object, limited to
// the fields materialization needs.
type sessionPayload struct {
	ID                   string                `json:"id"`
	PaymentIntent        paymentIntentRef      `json:"payment_intent"`
	PaymentStatus        string                `json:"payment_status"`
	Currency             string                `json:"currency"`
	AmountSubtotal       int64                 `json:"amount_subtotal"`
	AmountTotal          int64                 `json:"amount_total"`
	TotalDetails         *totalDetails         `json:"total_details"`
	Metadata             map[string]string     `json:"metadata"`
	CustomerEmail        string                `json:"customer_email"`
	CustomerDetails      *customerDetails      `json:"customer_details"`
	ShippingDetails      *shippingDetails      `json:"shipping_details"`
	CollectedInformation *collectedInformation `json:"collected_information"`
}

type totalDetails struct {
	AmountShipping int64 `json:"amount_shipping"`
	AmountTax      int64 `json:"amount_tax"`
}

type address struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

type customerDetails struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Address *address `json:"address"`
}

type shippingDetails struct {
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
	Address *address `json:"address"`
}

type collectedInformation struct {
	ShippingDetails *shippingDetails `json:"shipping_details"`
}

// paymentIntentRef tolerates both wire shapes of an expandable reference: a
// bare id string or an embedded object.
type paymentIntentRef struct {
	ID string
}

func (r *paymentIntentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.ID = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

// paymentIntentPayload is the slice of a payment_intent object the failure
// handler reads.
type paymentIntentPayload struct {
	ID               string `json:"id"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// normalizeSession flattens a provider session into the materializer's
// snapshot. This is the single place that absorbs the payload's shape
// variance: shipping details may arrive as a dedicated block, nested under
// collected_information, or only as the customer's address, and email and
// phone fall back across blocks the same way.
func normalizeSession(raw json.RawMessage) (*orders.SessionSnapshot, error) {
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}

	snapshot := &orders.SessionSnapshot{
		SessionID:       payload.ID,
		PaymentIntentID: payload.PaymentIntent.ID,
		Currency:        payload.Currency,
		SubtotalCents:   payload.AmountSubtotal,
		TotalCents:      payload.AmountTotal,
		RawPayload:      append(json.RawMessage(nil), raw...),
	}
	if payload.TotalDetails != nil {
		snapshot.TaxCents = payload.TotalDetails.AmountTax
		snapshot.ShippingCents = payload.TotalDetails.AmountShipping
	}

	if value := payload.Metadata["cart_id"]; value != "" {
		if id, err := uuid.Parse(value); err == nil {
			snapshot.CartID = id
		}
	}
	if value := payload.Metadata["user_id"]; value != "" {
		if id, err := uuid.Parse(value); err == nil {
			snapshot.UserID = &id
		}
	}
	if value := payload.Metadata["session_key"]; value != "" {
		key := value
		snapshot.SessionKey = &key
	}

	snapshot.Email = payload.CustomerEmail
	if payload.CustomerDetails != nil && payload.CustomerDetails.Email != "" {
		snapshot.Email = payload.CustomerDetails.Email
	}

	shipping := payload.ShippingDetails
	if shipping == nil && payload.CollectedInformation != nil {
		shipping = payload.CollectedInformation.ShippingDetails
	}

	var shipName string
	var shipAddr *address
	if shipping != nil {
		shipName = shipping.Name
		shipAddr = shipping.Address
	}
	if shipAddr == nil && payload.CustomerDetails != nil {
		shipAddr = payload.CustomerDetails.Address
		if shipName == "" {
			shipName = payload.CustomerDetails.Name
		}
	}
	snapshot.Shipping = toSessionAddress(shipName, shipAddr)

	var billName string
	var billAddr *address
	if payload.CustomerDetails != nil {
		billName = payload.CustomerDetails.Name
		billAddr = payload.CustomerDetails.Address
	}
	if billAddr == nil {
		billAddr = shipAddr
		if billName == "" {
			billName = shipName
		}
	}
	snapshot.Billing = toSessionAddress(billName, billAddr)

	if payload.CustomerDetails != nil && payload.CustomerDetails.Phone != "" {
		phone := payload.CustomerDetails.Phone
		snapshot.Phone = &phone
	} else if shipping != nil && shipping.Phone != "" {
		phone := shipping.Phone
		snapshot.Phone = &phone
	}

	return snapshot, nil
}

func toSessionAddress(name string, addr *address) orders.SessionAddress {
	result := orders.SessionAddress{Name: name}
	if addr == nil {
		return result
	}
	result.Line1 = addr.Line1
	result.Line2 = addr.Line2
	result.City = addr.City
	result.State = addr.State
	result.PostalCode = addr.PostalCode
	result.Country = addr.Country
	return result
}
