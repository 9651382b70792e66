package models

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the durable admission record for provider webhooks. The
// primary key is the provider's own event id, so a redelivered event fails
// insertion and is acknowledged without re-running side effects. Processed
// stays false until the handler commits, which leaves crash-interrupted
// attempts visible for the provider's retry to pick up.
type WebhookEvent struct {
	ID           string          `gorm:"column:id;primaryKey"`
	Provider     string          `gorm:"column:provider;not null;default:'stripe'"`
	Type         string          `gorm:"column:type;not null;index"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Processed    bool            `gorm:"column:processed;not null;default:false"`
	ProcessedAt  *time.Time      `gorm:"column:processed_at"`
	ErrorMessage *string         `gorm:"column:error_message"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
