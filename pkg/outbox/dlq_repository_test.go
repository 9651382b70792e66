package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
)

func setupDLQTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:outboxdlq_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY DEFAULT (lower(
    hex(randomblob(4)) || '-' || hex(randomblob(2)) || '-' ||
    hex(randomblob(2)) || '-' || hex(randomblob(2)) || '-' || hex(randomblob(6))
  )),
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME NOT NULL,
  created_at DATETIME
);`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create outbox_dlq: %v", err)
	}
	return db
}

func seedDLQEntry(t *testing.T, db *gorm.DB, failedAt time.Time) uuid.UUID {
	t.Helper()
	eventID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return NewDLQRepository(db).InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"order_number": 100042}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			AttemptCount:  10,
			FailedAt:      failedAt,
		})
	})
	if err != nil {
		t.Fatalf("insert dlq entry: %v", err)
	}
	return eventID
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	db := setupDLQTestDB(t)
	repo := NewDLQRepository(db)
	failedAt := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)

	eventID := seedDLQEntry(t, db, failedAt)

	entry, err := repo.FindByEventID(context.Background(), eventID)
	if err != nil {
		t.Fatalf("find by event id: %v", err)
	}
	if entry == nil {
		t.Fatal("expected dlq entry")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected reason %s", entry.ErrorReason)
	}
	if entry.AttemptCount != 10 {
		t.Fatalf("unexpected attempts %d", entry.AttemptCount)
	}

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown event id, got %+v", missing)
	}
}

func TestDLQRepositoryInsertTruncatesLongErrors(t *testing.T) {
	db := setupDLQTestDB(t)
	repo := NewDLQRepository(db)

	longMessage := strings.Repeat("x", maxDLQErrorLen+500)
	eventID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &longMessage,
			FailedAt:      time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	entry, err := repo.FindByEventID(context.Background(), eventID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if entry.ErrorMessage == nil || len(*entry.ErrorMessage) != maxDLQErrorLen {
		t.Fatalf("expected truncated message of %d chars", maxDLQErrorLen)
	}
}

func TestDLQRepositoryDeleteFailedBefore(t *testing.T) {
	db := setupDLQTestDB(t)
	repo := NewDLQRepository(db)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	oldID := seedDLQEntry(t, db, now.Add(-120*24*time.Hour))
	freshID := seedDLQEntry(t, db, now.Add(-time.Hour))

	deleted, err := repo.DeleteFailedBefore(context.Background(), now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("delete failed before: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 row deleted, got %d", deleted)
	}

	gone, err := repo.FindByEventID(context.Background(), oldID)
	if err != nil {
		t.Fatalf("find pruned: %v", err)
	}
	if gone != nil {
		t.Fatal("expected old entry pruned")
	}
	kept, err := repo.FindByEventID(context.Background(), freshID)
	if err != nil {
		t.Fatalf("find kept: %v", err)
	}
	if kept == nil {
		t.Fatal("expected fresh entry kept")
	}
}
