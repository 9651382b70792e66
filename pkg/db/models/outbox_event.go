package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
)

// OutboxEvent is one queued domain event, inserted in the same transaction
// as the state change it announces. PublishedAt nil marks it pending; the
// publisher stamps it after the broker accepts the message, or bumps
// AttemptCount and records LastError until the attempt budget runs out and
// the row moves to the DLQ.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`

	// Settlement tracking, written only by the publisher.
	PublishedAt  *time.Time `gorm:"column:published_at"`
	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string    `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
