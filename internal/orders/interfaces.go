package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/pagination"
)

// Repository defines persistence operations for order and payment tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextOrderNumber(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	FindByNumberAndEmail(ctx context.Context, orderNumber int64, email string) (*models.Order, error)
	FindPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, raw json.RawMessage, failureMessage *string, at time.Time) error
	CancelOrder(ctx context.Context, orderID uuid.UUID, at time.Time) error
}
