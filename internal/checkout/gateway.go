package checkout

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgstripe "github.com/jordanmaier/copperline-backend/pkg/stripe"
)

// SessionGateway exposes the subset of Stripe checkout operations required by
// the checkout service.
type SessionGateway interface {
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSession(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeGatewayWrapper struct{}

// NewStripeGateway wraps the provided Stripe client so the checkout service
// can be tested. Returns nil when payments are unconfigured; the service
// reports the gateway as unavailable in that case.
func NewStripeGateway(api *pkgstripe.Client) SessionGateway {
	if api == nil {
		return nil
	}
	return &stripeGatewayWrapper{}
}

func (w *stripeGatewayWrapper) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (w *stripeGatewayWrapper) GetSession(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params == nil {
		params = &stripe.CheckoutSessionParams{}
	}
	params.Context = ctx
	return session.Get(id, params)
}
