package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/internal/cart"
	"github.com/jordanmaier/copperline-backend/pkg/config"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	pkgstripe "github.com/jordanmaier/copperline-backend/pkg/stripe"
)

type cartLoader interface {
	FindByOwner(ctx context.Context, owner cart.Owner) (*models.Cart, error)
}

type paymentFinder interface {
	FindPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
}

// Service builds hosted checkout sessions and reports where they landed.
// It never writes locally: order creation belongs exclusively to the webhook
// path, so a verification poll can never race the materializer.
type Service interface {
	CreateSession(ctx context.Context, actor Actor) (*SessionResult, error)
	VerifySession(ctx context.Context, sessionID string) (*VerificationResult, error)
}

type service struct {
	cartRepo cartLoader
	payments paymentFinder
	gateway  SessionGateway
	cfg      config.CheckoutConfig
}

var centsPerUnit = decimal.NewFromInt(100)

// NewService builds the checkout service. A nil gateway is allowed so the
// rest of the API can serve while payments are unconfigured.
func NewService(cartRepo cartLoader, payments paymentFinder, gateway SessionGateway, cfg config.CheckoutConfig) (Service, error) {
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment finder required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "usd"
	}
	return &service{
		cartRepo: cartRepo,
		payments: payments,
		gateway:  gateway,
		cfg:      cfg,
	}, nil
}

func (s *service) CreateSession(ctx context.Context, actor Actor) (*SessionResult, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway is not configured")
	}
	if err := actor.Owner.Validate(); err != nil {
		return nil, err
	}

	record, err := s.cartRepo.FindByOwner(ctx, actor.Owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart for checkout")
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	params, err := s.buildSessionParams(record, actor)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	sess, err := s.gateway.CreateSession(callCtx, params)
	if err != nil {
		return nil, pkgstripe.MapError(err, "checkout session create")
	}
	return &SessionResult{
		CheckoutSessionID: sess.ID,
		CheckoutURL:       sess.URL,
	}, nil
}

// buildSessionParams snapshots the cart into gateway line items. The stock
// check here is best effort, not a reservation; the materializer's guarded
// decrement is what enforces correctness once payment settles.
func (s *service) buildSessionParams(record *models.Cart, actor Actor) (*stripe.CheckoutSessionParams, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(record.Items)+1)
	var subtotalCents, weightGrams int64

	for _, item := range record.Items {
		product := item.Product
		if product.ID == uuid.Nil || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available")
		}
		if item.Quantity > product.StockQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock for "+product.Name)
		}

		cents := product.Price.Mul(centsPerUnit)
		if !cents.IsInteger() {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("product %s price is not representable in cents", product.SKU))
		}
		unitAmount := cents.IntPart()
		subtotalCents += unitAmount * int64(item.Quantity)
		weightGrams += int64(product.WeightGrams) * int64(item.Quantity)

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.cfg.Currency),
				UnitAmount: stripe.Int64(unitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(product.Name),
				},
			},
		})
	}

	if shipping := s.shippingEstimateCents(subtotalCents, weightGrams); shipping > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.cfg.Currency),
				UnitAmount: stripe.Int64(shipping),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Shipping"),
				},
			},
		})
	}

	metadata := map[string]string{"cart_id": record.ID.String()}
	if actor.Owner.UserID != nil {
		metadata["user_id"] = actor.Owner.UserID.String()
	}
	if actor.Owner.SessionKey != nil {
		metadata["session_key"] = *actor.Owner.SessionKey
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		Metadata:   metadata,
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		ExpiresAt:  stripe.Int64(time.Now().Add(s.cfg.SessionTTL).Unix()),
	}
	if actor.Email != nil && strings.TrimSpace(*actor.Email) != "" {
		params.CustomerEmail = stripe.String(*actor.Email)
	}
	return params, nil
}

// shippingEstimateCents prices delivery as a flat base plus a per-kilogram
// rate over the cart weight, rounded up to whole kilograms. Orders at or
// above the free-shipping threshold ship free.
func (s *service) shippingEstimateCents(subtotalCents, weightGrams int64) int64 {
	if s.cfg.FreeShippingThresholdCents > 0 && subtotalCents >= s.cfg.FreeShippingThresholdCents {
		return 0
	}
	kilograms := (weightGrams + 999) / 1000
	return s.cfg.ShippingBaseCents + kilograms*s.cfg.ShippingPerKgCents
}

func (s *service) VerifySession(ctx context.Context, sessionID string) (*VerificationResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Expand: []*string{stripe.String("payment_intent")},
	}
	sess, err := s.gateway.GetSession(callCtx, sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgstripe.MapError(err, "checkout session retrieve")
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid || sess.PaymentIntent == nil {
		message := "payment was not completed"
		if sess.Status == stripe.CheckoutSessionStatusExpired {
			message = "checkout session expired"
		}
		return &VerificationResult{Status: VerificationFailed, Message: &message}, nil
	}

	payment, err := s.payments.FindPaymentByIntentID(ctx, sess.PaymentIntent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &VerificationResult{Status: VerificationPending}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment for session")
	}

	result := &VerificationResult{
		Status:  VerificationSuccess,
		OrderID: &payment.OrderID,
	}
	if payment.Order != nil {
		number := payment.Order.FormattedNumber()
		result.OrderNumber = &number
	}
	return result, nil
}
