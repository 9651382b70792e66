package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/jordanmaier/copperline-backend/internal/orders"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/metrics"
)

type eventStore interface {
	Admit(ctx context.Context, event *models.WebhookEvent) (AdmissionResult, error)
	FindByID(ctx context.Context, id string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, message string) error
}

type ordersService interface {
	MaterializeOrder(ctx context.Context, session orders.SessionSnapshot) error
	MarkPaymentFailed(ctx context.Context, paymentIntentID string, raw json.RawMessage, failureMessage *string) error
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Events  eventStore
	Orders  ordersService
	Metrics *metrics.PipelineMetrics
	Logger  *logger.Logger
}

// Service is the idempotency gate between signature-verified provider
// deliveries and the order pipeline.
type Service struct {
	events  eventStore
	orders  ordersService
	metrics *metrics.PipelineMetrics
	logg    *logger.Logger
}

// NewService builds the webhook gate.
func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event store required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		events:  params.Events,
		orders:  params.Orders,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// HandleEvent admits, dispatches, and finalizes one verified delivery. A
// returned error tells the controller to answer 500 so the provider
// redelivers; nil means the delivery may be acknowledged.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.ID == "" || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithWebhookEventID(ctx, event.ID)

	record := &models.WebhookEvent{
		ID:       event.ID,
		Provider: "stripe",
		Type:     string(event.Type),
		Payload:  json.RawMessage(event.Data.Raw),
	}
	result, err := s.events.Admit(ctx, record)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "admit webhook event")
	}

	if result == AdmissionAlreadyExists {
		existing, err := s.events.FindByID(ctx, event.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load admitted webhook event")
		}
		if existing.Processed {
			s.metrics.IncWebhookDuplicate(string(event.Type))
			s.logg.Info(ctx, "duplicate webhook delivery acknowledged")
			return nil
		}
		// A prior attempt was admitted but never finalized (crash or
		// handler failure). The redelivery re-runs the handler; the
		// payment-intent idempotency guards make the re-run safe.
		s.logg.Info(ctx, "re-running handler for unprocessed webhook event")
	} else {
		s.metrics.IncWebhookReceived(string(event.Type))
	}

	started := time.Now()
	err = s.dispatch(ctx, event)
	s.metrics.ObserveHandlerDuration(string(event.Type), time.Since(started))
	if err != nil {
		s.metrics.IncWebhookFailed(string(event.Type))
		if markErr := s.events.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			s.logg.Error(ctx, "record webhook handler failure", markErr)
		}
		return err
	}

	if err := s.events.MarkProcessed(ctx, event.ID, time.Now().UTC()); err != nil {
		// The handler committed but the event stays unprocessed; the
		// provider's redelivery re-runs it as a guarded no-op and
		// finalizes then.
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize webhook event")
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		snapshot, err := normalizeSession(event.Data.Raw)
		if err != nil {
			return err
		}
		return s.orders.MaterializeOrder(ctx, *snapshot)

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent paymentIntentPayload
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		if intent.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		var message *string
		if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
			message = &intent.LastPaymentError.Message
		}
		return s.orders.MarkPaymentFailed(ctx, intent.ID, json.RawMessage(event.Data.Raw), message)

	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		snapshot, err := normalizeSession(event.Data.Raw)
		if err != nil {
			return err
		}
		if snapshot.PaymentIntentID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		message := "asynchronous payment failed"
		return s.orders.MarkPaymentFailed(ctx, snapshot.PaymentIntentID, json.RawMessage(event.Data.Raw), &message)

	default:
		s.logg.Info(ctx, fmt.Sprintf("ignoring webhook event type %s", event.Type))
		return nil
	}
}
