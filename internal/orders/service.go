package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/internal/cart"
	dbpkg "github.com/jordanmaier/copperline-backend/pkg/db"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/metrics"
	"github.com/jordanmaier/copperline-backend/pkg/outbox"
	"github.com/jordanmaier/copperline-backend/pkg/outbox/payloads"
	"github.com/jordanmaier/copperline-backend/pkg/pagination"
)

// paymentIntentConstraint is the unique index guaranteeing at most one
// Payment (and so one Order) per gateway payment intent.
const paymentIntentConstraint = "idx_payments_payment_intent_id"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockDecrementer interface {
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order)
	SendPaymentFailed(ctx context.Context, order *models.Order)
}

// Service materializes orders from settled checkout sessions and serves
// order reads. Materialization is the webhook path's exclusive job: nothing
// else in the system creates orders, which is what makes the verify-poll /
// webhook race harmless.
type Service interface {
	MaterializeOrder(ctx context.Context, session SessionSnapshot) error
	MarkPaymentFailed(ctx context.Context, paymentIntentID string, raw json.RawMessage, failureMessage *string) error
	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	Track(ctx context.Context, input TrackInput) (*OrderDTO, error)
}

// ServiceParams collects the dependencies for NewService. Notifier and
// Metrics are optional.
type ServiceParams struct {
	TxRunner txRunner
	Repo     Repository
	CartRepo cart.CartRepository
	Stock    stockDecrementer
	Users    userLoader
	Outbox   outboxEmitter
	Notifier notifier
	Metrics  *metrics.PipelineMetrics
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	repo     Repository
	cartRepo cart.CartRepository
	stock    stockDecrementer
	users    userLoader
	outbox   outboxEmitter
	notifier notifier
	metrics  *metrics.PipelineMetrics
	logg     *logger.Logger
}

// NewService builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock decrementer required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       params.TxRunner,
		repo:     params.Repo,
		cartRepo: params.CartRepo,
		stock:    params.Stock,
		users:    params.Users,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// MaterializeOrder turns a settled checkout session into an Order, its
// items, and a completed Payment, all in one transaction. The unique
// payment-intent index makes concurrent materializations of the same
// session serialize: the loser's insert fails and is treated as already
// handled, never as an error.
func (s *service) MaterializeOrder(ctx context.Context, session SessionSnapshot) error {
	if strings.TrimSpace(session.PaymentIntentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if session.CartID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "session metadata is missing the cart id")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id":   session.PaymentIntentID,
		"checkout_session_id": session.SessionID,
	})

	if _, err := s.repo.FindPaymentByIntentID(ctx, session.PaymentIntentID); err == nil {
		s.skipDuplicateIntent(ctx)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment intent")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cartRepo := s.cartRepo.WithTx(tx)

		record, err := cartRepo.FindByID(ctx, session.CartID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cart not found for completed session")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart for materialization")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty for completed session")
		}

		userID := s.resolveUser(ctx, session, record)

		number, err := repo.NextOrderNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}

		order := buildOrder(session, userID, number)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		items := buildOrderItems(order.ID, record.Items)
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		for _, item := range record.Items {
			if err := s.stock.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		payment := buildPayment(order, session)
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return err
		}

		if err := cartRepo.ClearItems(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart items")
		}

		if err := s.emitOrderCreated(ctx, tx, order, payment, len(items)); err != nil {
			return err
		}
		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, paymentIntentConstraint) {
			s.skipDuplicateIntent(ctx)
			return nil
		}
		return err
	}

	s.metrics.IncOrdersCreated()
	s.logg.Info(ctx, fmt.Sprintf("order %s materialized", created.FormattedNumber()))
	if s.notifier != nil {
		s.notifier.SendOrderConfirmation(ctx, created)
	}
	return nil
}

// MarkPaymentFailed voids the order behind a failed payment intent. A
// failure that arrives before any success path ran has nothing to cancel
// and is a no-op, as is redelivery once the payment is already failed.
func (s *service) MarkPaymentFailed(ctx context.Context, paymentIntentID string, raw json.RawMessage, failureMessage *string) error {
	if strings.TrimSpace(paymentIntentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	ctx = s.logg.WithField(ctx, "payment_intent_id", paymentIntentID)

	payment, err := s.repo.FindPaymentByIntentID(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Info(ctx, "payment failure for unknown intent ignored")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status == enums.PaymentStatusFailed {
		return nil
	}

	now := time.Now().UTC()
	var cancelled *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkPaymentFailed(ctx, payment.ID, raw, failureMessage, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if err := repo.CancelOrder(ctx, payment.OrderID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		order, err := repo.FindByID(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for cancellation")
		}
		if err := s.emitPaymentFailed(ctx, tx, payment, failureMessage); err != nil {
			return err
		}
		if err := s.emitOrderCancelled(ctx, tx, payment, order, failureMessage, now); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncOrdersCancelled()
	s.logg.Info(ctx, fmt.Sprintf("order %s cancelled after payment failure", cancelled.FormattedNumber()))
	if s.notifier != nil {
		s.notifier.SendPaymentFailed(ctx, cancelled)
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderDTO, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	order, err := s.repo.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return FromModel(order), nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	rows, nextCursor, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, asOrdersError(err, "list orders")
	}
	summaries := make([]OrderSummaryDTO, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, SummaryFromModel(&rows[i]))
	}
	return &OrderList{Orders: summaries, NextCursor: nextCursor}, nil
}

// Track serves the public guest lookup: an order number plus the email it
// was placed under.
func (s *service) Track(ctx context.Context, input TrackInput) (*OrderDTO, error) {
	number, err := parseOrderNumber(input.OrderNumber)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order number")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	order, err := s.repo.FindByNumberAndEmail(ctx, number, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track order")
	}
	return FromModel(order), nil
}

// resolveUser picks the order's owner: a valid metadata user id wins, then
// the cart's owner, otherwise the order is a guest purchase. A session that
// references a user we no longer know is logged and demoted to guest rather
// than failing the materialization.
func (s *service) resolveUser(ctx context.Context, session SessionSnapshot, record *models.Cart) *uuid.UUID {
	if session.UserID != nil {
		if _, err := s.users.FindByID(ctx, *session.UserID); err == nil {
			return session.UserID
		}
		s.logg.Warn(s.logg.WithField(ctx, "user_id", session.UserID.String()), "session references unknown user; materializing as guest")
	}
	if record.UserID != nil {
		return record.UserID
	}
	return nil
}

func (s *service) skipDuplicateIntent(ctx context.Context) {
	s.metrics.IncOrdersDeduplicated()
	s.logg.Info(ctx, "payment intent already materialized; skipping")
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, itemCount int) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCreatedEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			UserID:          order.UserID,
			Email:           order.Email,
			Currency:        order.Currency,
			TotalCents:      order.Total.Mul(decimal.NewFromInt(100)).IntPart(),
			ItemCount:       itemCount,
			PaymentIntentID: payment.PaymentIntentID,
		},
		Version: 1,
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) emitPaymentFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment, failureMessage *string) error {
	data := payloads.PaymentFailedEvent{
		PaymentID:       payment.ID,
		OrderID:         payment.OrderID,
		PaymentIntentID: payment.PaymentIntentID,
	}
	if failureMessage != nil {
		data.FailureMessage = *failureMessage
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data:          data,
		Version:       1,
	}
	return s.outbox.EmitIfNotExists(ctx, tx, event)
}

func (s *service) emitOrderCancelled(ctx context.Context, tx *gorm.DB, payment *models.Payment, order *models.Order, failureMessage *string, at time.Time) error {
	items := make([]payloads.CancelledItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.CancelledItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	data := payloads.OrderCancelledEvent{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		PaymentIntentID: payment.PaymentIntentID,
		CancelledAt:     at,
		Items:           items,
	}
	if failureMessage != nil {
		data.Reason = *failureMessage
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          data,
		Version:       1,
	}
	return s.outbox.EmitIfNotExists(ctx, tx, event)
}

func buildOrder(session SessionSnapshot, userID *uuid.UUID, number int64) *models.Order {
	currency := enums.CurrencyUSD
	if parsed, err := enums.ParseCurrency(session.Currency); err == nil {
		currency = parsed
	}
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		UserID:      userID,
		Status:      enums.OrderStatusProcessing,
		Currency:    currency,
		Email:       session.Email,
		Phone:       session.Phone,

		ShippingName:       session.Shipping.Name,
		ShippingLine1:      session.Shipping.Line1,
		ShippingLine2:      session.Shipping.Line2,
		ShippingCity:       session.Shipping.City,
		ShippingState:      session.Shipping.State,
		ShippingPostalCode: session.Shipping.PostalCode,
		ShippingCountry:    session.Shipping.Country,

		BillingName:       session.Billing.Name,
		BillingLine1:      session.Billing.Line1,
		BillingLine2:      session.Billing.Line2,
		BillingCity:       session.Billing.City,
		BillingState:      session.Billing.State,
		BillingPostalCode: session.Billing.PostalCode,
		BillingCountry:    session.Billing.Country,

		Subtotal:    centsToDecimal(session.SubtotalCents),
		Tax:         centsToDecimal(session.TaxCents),
		ShippingFee: centsToDecimal(session.ShippingCents),
		Total:       centsToDecimal(session.TotalCents),
	}
}

func buildOrderItems(orderID uuid.UUID, cartItems []models.CartItem) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(cartItems))
	for _, cartItem := range cartItems {
		productID := cartItem.ProductID
		items = append(items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   &productID,
			ProductName: cartItem.Product.Name,
			ProductSKU:  cartItem.Product.SKU,
			UnitPrice:   cartItem.Product.Price,
			Quantity:    cartItem.Quantity,
			WeightGrams: cartItem.Product.WeightGrams,
			LineTotal:   cartItem.Product.Price.Mul(decimal.NewFromInt(int64(cartItem.Quantity))),
		})
	}
	return items
}

func buildPayment(order *models.Order, session SessionSnapshot) *models.Payment {
	return &models.Payment{
		ID:                uuid.New(),
		OrderID:           order.ID,
		Provider:          "stripe",
		PaymentIntentID:   session.PaymentIntentID,
		CheckoutSessionID: session.SessionID,
		Status:            enums.PaymentStatusCompleted,
		Amount:            order.Total,
		Currency:          order.Currency,
		RawPayload:        session.RawPayload,
	}
}

// centsToDecimal converts a minor-unit integer to its exact decimal form.
func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func parseOrderNumber(raw string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	trimmed = strings.TrimPrefix(trimmed, "CL-")
	return strconv.ParseInt(trimmed, 10, 64)
}

func asOrdersError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
