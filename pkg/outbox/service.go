package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/jordanmaier/copperline-backend/pkg/db"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

// uniqueEventAggregate guards one queued event type per aggregate.
const uniqueEventAggregate = "ux_outbox_events_event_aggregate"

// DomainEvent describes a state change to announce once its transaction
// commits.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	if e.EventType == "" || e.AggregateType == "" {
		return errors.New("event and aggregate type are required")
	}
	if e.AggregateID == uuid.Nil {
		return errors.New("aggregate id is required")
	}
	return nil
}

// row converts the event into its persisted form, wrapping the caller's
// payload in the versioned envelope the publisher ships downstream.
func (e DomainEvent) row() (models.OutboxEvent, string, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("marshal event data: %w", err)
	}

	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	version := e.Version
	if version == 0 {
		version = CurrentEnvelopeVersion
	}
	envelope := PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred,
		Actor:      e.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("marshal envelope: %w", err)
	}

	return models.OutboxEvent{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, envelope.EventID, nil
}

// Service queues domain events inside the caller's transaction, so an event
// becomes visible to the publisher only if the state change that produced it
// commits.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}

	row, eventID, err := event.row()
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       eventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists queues event unless the same (type, aggregate) pair is
// already queued, so replayed webhook deliveries cannot double-publish. The
// read-then-insert race resolves at the unique index; losing it counts as
// already queued.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.Emit(ctx, tx, event)
	if err != nil && dbpkg.IsUniqueViolation(err, uniqueEventAggregate) {
		return nil
	}
	return err
}
