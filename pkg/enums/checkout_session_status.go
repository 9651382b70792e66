package enums

import "fmt"

// CheckoutSessionStatus is the client-facing verdict when polling a
// checkout session after the payment redirect.
type CheckoutSessionStatus string

const (
	CheckoutSessionSuccess CheckoutSessionStatus = "success"
	CheckoutSessionPending CheckoutSessionStatus = "pending"
	CheckoutSessionFailed  CheckoutSessionStatus = "failed"
)

var checkoutSessionStatuses = map[CheckoutSessionStatus]struct{}{
	CheckoutSessionSuccess: {},
	CheckoutSessionPending: {},
	CheckoutSessionFailed:  {},
}

// String implements fmt.Stringer.
func (c CheckoutSessionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutSessionStatus.
func (c CheckoutSessionStatus) IsValid() bool {
	_, ok := checkoutSessionStatuses[c]
	return ok
}

// ParseCheckoutSessionStatus validates raw input against the known verdicts.
func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	status := CheckoutSessionStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid checkout session status %q", value)
	}
	return status, nil
}
