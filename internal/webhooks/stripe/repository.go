package stripewebhook

import (
	"context"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/jordanmaier/copperline-backend/pkg/db"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
)

// AdmissionResult tags the outcome of inserting a webhook event record.
type AdmissionResult string

const (
	AdmissionInserted      AdmissionResult = "inserted"
	AdmissionAlreadyExists AdmissionResult = "already_exists"
)

// EventRepository persists webhook admission records.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository builds the repository bound to the provided DB.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Admit inserts the admission record for a delivery. A duplicate event id
// is reported as AlreadyExists, not as an error: providers redeliver on
// timeout, so this path is routine. The event id primary key is the only
// unique constraint on the table, so any unique violation here is a
// redelivery.
func (r *EventRepository) Admit(ctx context.Context, event *models.WebhookEvent) (AdmissionResult, error) {
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return AdmissionAlreadyExists, nil
		}
		return "", err
	}
	return AdmissionInserted, nil
}

// FindByID loads an admission record.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed finalizes a successfully handled event and clears any
// failure note from earlier attempts.
func (r *EventRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed":     true,
			"processed_at":  at,
			"error_message": nil,
		}).Error
}

// MarkFailed records why a handler attempt failed. Processed stays false so
// the provider's redelivery re-runs the handler.
func (r *EventRepository) MarkFailed(ctx context.Context, id string, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Update("error_message", message).Error
}

// DeleteProcessedBefore prunes processed events older than the cutoff and
// reports how many rows went away.
func (r *EventRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("processed = ? AND processed_at < ?", true, cutoff).
		Delete(&models.WebhookEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
