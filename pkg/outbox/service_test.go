package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	"github.com/jordanmaier/copperline-backend/pkg/outbox/payloads"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY DEFAULT (lower(
    hex(randomblob(4)) || '-' || hex(randomblob(2)) || '-' ||
    hex(randomblob(2)) || '-' || hex(randomblob(2)) || '-' || hex(randomblob(6))
  )),
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create outbox_events: %v", err)
	}
	index := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate
  ON outbox_events (event_type, aggregate_type, aggregate_id);`
	if err := db.Exec(index).Error; err != nil {
		t.Fatalf("create unique index: %v", err)
	}
	return db
}

func fetchEventsForAggregate(t *testing.T, db *gorm.DB, aggregateID uuid.UUID) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	if err := db.Where("aggregate_id = ?", aggregateID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("fetch events: %v", err)
	}
	return rows
}

func TestServiceEmitQueuesEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	orderID := uuid.New()
	userID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &ActorRef{UserID: &userID},
		Version:       1,
		Data: payloads.OrderCreatedEvent{
			OrderID:         orderID,
			OrderNumber:     100042,
			Email:           "buyer@example.com",
			Currency:        enums.CurrencyUSD,
			TotalCents:      6997,
			ItemCount:       2,
			PaymentIntentID: "pi_123",
		},
	}
	if err := svc.Emit(context.Background(), db, event); err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows := fetchEventsForAggregate(t, db, orderID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.EventType != enums.EventOrderCreated {
		t.Fatalf("unexpected event type %s", row.EventType)
	}
	if row.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected aggregate type %s", row.AggregateType)
	}
	if row.PublishedAt != nil {
		t.Fatalf("expected unpublished row")
	}
	if row.AttemptCount != 0 {
		t.Fatalf("expected zero attempts, got %d", row.AttemptCount)
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Version != 1 {
		t.Fatalf("unexpected version %d", envelope.Version)
	}
	if envelope.EventID == "" {
		t.Fatalf("missing event id")
	}
	if envelope.OccurredAt.IsZero() {
		t.Fatalf("missing occurred_at")
	}
	if envelope.Actor == nil || envelope.Actor.UserID == nil || *envelope.Actor.UserID != userID {
		t.Fatalf("actor not preserved: %+v", envelope.Actor)
	}
	var payload payloads.OrderCreatedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderNumber != 100042 || payload.TotalCents != 6997 {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated})
	if err == nil {
		t.Fatalf("expected error for nil transaction")
	}
}

func TestServiceEmitIfNotExistsDeduplicates(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Version:       1,
		Data: payloads.OrderCancelledEvent{
			OrderID:     orderID,
			OrderNumber: 100043,
			CancelledAt: time.Now().UTC(),
		},
	}
	if err := svc.EmitIfNotExists(context.Background(), db, event); err != nil {
		t.Fatalf("first emit: %v", err)
	}
	if err := svc.EmitIfNotExists(context.Background(), db, event); err != nil {
		t.Fatalf("second emit: %v", err)
	}

	rows := fetchEventsForAggregate(t, db, orderID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after replay, got %d", len(rows))
	}
}

func TestRepositoryMarkFailedThenPublished(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	aggregateID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"version":1}`),
	}
	if err := repo.Insert(db, event); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows := fetchEventsForAggregate(t, db, aggregateID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	id := rows[0].ID

	if err := repo.MarkFailedTx(db, id, errors.New("publish timeout")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	rows = fetchEventsForAggregate(t, db, aggregateID)
	if rows[0].AttemptCount != 1 {
		t.Fatalf("expected attempt_count 1, got %d", rows[0].AttemptCount)
	}
	if rows[0].LastError == nil || *rows[0].LastError != "publish timeout" {
		t.Fatalf("last_error not recorded: %v", rows[0].LastError)
	}

	if err := repo.MarkPublishedTx(db, id); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	rows = fetchEventsForAggregate(t, db, aggregateID)
	if rows[0].PublishedAt == nil {
		t.Fatalf("expected published_at to be set")
	}
}

func TestRepositoryMarkTerminalCapsAttempts(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	aggregateID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"version":1}`),
	}
	if err := repo.Insert(db, event); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows := fetchEventsForAggregate(t, db, aggregateID)
	id := rows[0].ID

	if err := repo.MarkTerminalTx(db, id, errors.New("unknown event type"), 10); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}
	rows = fetchEventsForAggregate(t, db, aggregateID)
	if rows[0].AttemptCount != 10 {
		t.Fatalf("expected attempt_count 10, got %d", rows[0].AttemptCount)
	}
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	staleID := uuid.New()
	liveID := uuid.New()
	for _, aggID := range []uuid.UUID{staleID, liveID} {
		event := models.OutboxEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggID,
			Payload:       json.RawMessage(`{"version":1}`),
		}
		if err := repo.Insert(db, event); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ?", staleID).
		Update("published_at", old).Error; err != nil {
		t.Fatalf("age published row: %v", err)
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete published: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}
	if rows := fetchEventsForAggregate(t, db, staleID); len(rows) != 0 {
		t.Fatalf("stale row not removed")
	}
	if rows := fetchEventsForAggregate(t, db, liveID); len(rows) != 1 {
		t.Fatalf("live row lost")
	}
}
