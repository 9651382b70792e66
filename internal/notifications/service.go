package notifications

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/mail"
)

const deliveryTimeout = 10 * time.Second

// Service sends transactional order email. Every send is fire-and-forget:
// delivery runs in the background, failures are logged, and the caller is
// never blocked or failed by a mail problem.
type Service struct {
	sender mail.Sender
	logg   *logger.Logger
	wg     sync.WaitGroup
}

// NewService builds the notifications service.
func NewService(sender mail.Sender, logg *logger.Logger) (*Service, error) {
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mail sender required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{sender: sender, logg: logg}, nil
}

// SendOrderConfirmation emails the buyer after an order materializes. Guest
// buyers get a receipt with tracking instructions; account holders are
// pointed at their order history.
func (s *Service) SendOrderConfirmation(ctx context.Context, order *models.Order) {
	if order == nil || strings.TrimSpace(order.Email) == "" {
		return
	}
	s.deliver(ctx, confirmationMessage(order))
}

// SendPaymentFailed emails the buyer after a failed payment cancels their
// order.
func (s *Service) SendPaymentFailed(ctx context.Context, order *models.Order) {
	if order == nil || strings.TrimSpace(order.Email) == "" {
		return
	}
	s.deliver(ctx, paymentFailedMessage(order))
}

// Drain blocks until all queued deliveries finish. Called on shutdown.
func (s *Service) Drain() {
	s.wg.Wait()
}

func (s *Service) deliver(ctx context.Context, msg mail.Message) {
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sendCtx, cancel := context.WithTimeout(detached, deliveryTimeout)
		defer cancel()
		if err := s.sender.Send(sendCtx, msg); err != nil {
			s.logg.Error(sendCtx, fmt.Sprintf("deliver %q", msg.Subject), err)
		}
	}()
}

func confirmationMessage(order *models.Order) mail.Message {
	number := order.FormattedNumber()
	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your purchase!\n\n")
	fmt.Fprintf(&b, "Order %s is confirmed and being prepared for shipment.\n\n", number)
	writeOrderLines(&b, order)
	if order.UserID == nil {
		fmt.Fprintf(&b, "\nKeep this email: you can track your order any time with order number %s and this email address.\n", number)
	} else {
		fmt.Fprintf(&b, "\nYou can view this order any time from your account's order history.\n")
	}
	return mail.Message{
		To:      order.Email,
		Subject: fmt.Sprintf("Order %s confirmed", number),
		Body:    b.String(),
	}
}

func paymentFailedMessage(order *models.Order) mail.Message {
	number := order.FormattedNumber()
	var b strings.Builder
	fmt.Fprintf(&b, "We could not complete the payment for order %s, so the order has been cancelled.\n\n", number)
	fmt.Fprintf(&b, "No items were shipped and nothing further will be charged for this order.\n")
	fmt.Fprintf(&b, "If you still want these items, please place a new order.\n")
	return mail.Message{
		To:      order.Email,
		Subject: fmt.Sprintf("Payment issue with order %s", number),
		Body:    b.String(),
	}
}

func writeOrderLines(b *strings.Builder, order *models.Order) {
	currency := strings.ToUpper(string(order.Currency))
	for _, item := range order.Items {
		fmt.Fprintf(b, "  %d x %s  %s %s\n", item.Quantity, item.ProductName, currency, item.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(b, "\n")
	fmt.Fprintf(b, "  Subtotal  %s %s\n", currency, order.Subtotal.StringFixed(2))
	if !order.ShippingFee.IsZero() {
		fmt.Fprintf(b, "  Shipping  %s %s\n", currency, order.ShippingFee.StringFixed(2))
	}
	if !order.Tax.IsZero() {
		fmt.Fprintf(b, "  Tax       %s %s\n", currency, order.Tax.StringFixed(2))
	}
	fmt.Fprintf(b, "  Total     %s %s\n", currency, order.Total.StringFixed(2))
}
