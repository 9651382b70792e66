package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
)

// Error text is operator-facing; anything longer than this is a stack trace
// that belongs in logs, not in the table.
const maxDLQErrorLen = 1024

// DLQRepository stores outbox rows that exhausted their attempt budget or
// failed resolution. Rows land here via the publisher's batch transaction
// and leave via the retention job.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx parks one event inside the caller's transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	entry.ErrorMessage = clampErrorMessage(entry.ErrorMessage)
	return tx.Create(&entry).Error
}

// FindByEventID returns the parked entry for an event, or nil when the event
// never reached the DLQ.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Take(&entry, "event_id = ?", eventID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &entry, nil
}

// DeleteFailedBefore prunes DLQ rows parked before the cutoff. Rows this
// old have either been replayed manually or written off.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res := r.db.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.OutboxDLQ{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// clampErrorMessage caps the stored text without splitting a rune at the
// boundary.
func clampErrorMessage(msg *string) *string {
	if msg == nil || len(*msg) <= maxDLQErrorLen {
		return msg
	}
	cut := maxDLQErrorLen
	s := *msg
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	clipped := s[:cut]
	return &clipped
}
