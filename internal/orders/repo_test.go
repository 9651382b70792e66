package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/jordanmaier/copperline-backend/pkg/db"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/pagination"
)

var orderTableSchemas = []string{
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL UNIQUE,
  user_id TEXT,
  status TEXT NOT NULL DEFAULT 'processing',
  currency TEXT NOT NULL DEFAULT 'usd',
  email TEXT NOT NULL,
  phone TEXT,
  shipping_name TEXT NOT NULL DEFAULT '',
  shipping_line1 TEXT NOT NULL DEFAULT '',
  shipping_line2 TEXT,
  shipping_city TEXT NOT NULL DEFAULT '',
  shipping_state TEXT NOT NULL DEFAULT '',
  shipping_postal_code TEXT NOT NULL DEFAULT '',
  shipping_country TEXT NOT NULL DEFAULT '',
  billing_name TEXT NOT NULL DEFAULT '',
  billing_line1 TEXT NOT NULL DEFAULT '',
  billing_line2 TEXT,
  billing_city TEXT NOT NULL DEFAULT '',
  billing_state TEXT NOT NULL DEFAULT '',
  billing_postal_code TEXT NOT NULL DEFAULT '',
  billing_country TEXT NOT NULL DEFAULT '',
  subtotal TEXT NOT NULL,
  tax TEXT NOT NULL,
  shipping_fee TEXT NOT NULL,
  total TEXT NOT NULL,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  product_name TEXT NOT NULL,
  product_sku TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  line_total TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  provider TEXT NOT NULL DEFAULT 'stripe',
  payment_intent_id TEXT NOT NULL,
  checkout_session_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  raw_payload TEXT,
  failure_message TEXT,
  failed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_payment_intent_id ON payments (payment_intent_id);`,
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:orders_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range orderTableSchemas {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, number int64, email string, userID *uuid.UUID, created time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		UserID:      userID,
		Status:      enums.OrderStatusProcessing,
		Currency:    enums.CurrencyUSD,
		Email:       email,
		Subtotal:    decimal.New(5350, -2),
		Tax:         decimal.Zero,
		ShippingFee: decimal.New(899, -2),
		Total:       decimal.New(6249, -2),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func seedOrderItem(t *testing.T, db *gorm.DB, orderID uuid.UUID, name string, created time.Time) *models.OrderItem {
	t.Helper()

	productID := uuid.New()
	item := &models.OrderItem{
		ID:          uuid.New(),
		OrderID:     orderID,
		ProductID:   &productID,
		ProductName: name,
		ProductSKU:  "CL-" + name,
		UnitPrice:   decimal.New(2400, -2),
		Quantity:    1,
		WeightGrams: 250,
		LineTotal:   decimal.New(2400, -2),
		CreatedAt:   created,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestRepositoryNextOrderNumber(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	next, err := repo.NextOrderNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100000), next, "first order ever gets the seed number")

	seedOrder(t, db, 100000, "a@example.com", nil, time.Now().UTC())
	seedOrder(t, db, 100005, "b@example.com", nil, time.Now().UTC())

	next, err = repo.NextOrderNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100006), next)
}

func TestRepositoryFindScopesToOwner(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	ownerID := uuid.New()
	now := time.Now().UTC()
	order := seedOrder(t, db, 100001, "buyer@example.com", &ownerID, now)
	seedOrderItem(t, db, order.ID, "Tee", now.Add(-2*time.Second))
	seedOrderItem(t, db, order.ID, "Mug", now.Add(-time.Second))

	found, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, found.Items, 2)
	assert.Equal(t, "Tee", found.Items[0].ProductName, "items load in purchase order")

	found, err = repo.FindByIDForUser(context.Background(), order.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindByIDForUser(context.Background(), order.ID, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryFindByNumberAndEmail(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := seedOrder(t, db, 100042, "Buyer@Example.com", nil, time.Now().UTC())

	found, err := repo.FindByNumberAndEmail(context.Background(), 100042, "  buyer@EXAMPLE.com ")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindByNumberAndEmail(context.Background(), 100042, "other@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindByNumberAndEmail(context.Background(), 999999, "buyer@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryPaymentLifecycle(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := seedOrder(t, db, 100007, "buyer@example.com", nil, time.Now().UTC())
	payment := &models.Payment{
		ID:                uuid.New(),
		OrderID:           order.ID,
		Provider:          "stripe",
		PaymentIntentID:   "pi_lifecycle",
		CheckoutSessionID: "cs_lifecycle",
		Status:            enums.PaymentStatusCompleted,
		Amount:            order.Total,
		Currency:          enums.CurrencyUSD,
		RawPayload:        json.RawMessage(`{"id": "cs_lifecycle"}`),
	}
	require.NoError(t, repo.CreatePayment(context.Background(), payment))

	// The unique intent index is the idempotency anchor: a second insert
	// for the same intent must fail.
	duplicate := &models.Payment{
		ID:                uuid.New(),
		OrderID:           order.ID,
		PaymentIntentID:   "pi_lifecycle",
		CheckoutSessionID: "cs_lifecycle",
		Status:            enums.PaymentStatusCompleted,
		Amount:            order.Total,
		Currency:          enums.CurrencyUSD,
	}
	err := repo.CreatePayment(context.Background(), duplicate)
	require.Error(t, err)
	assert.True(t, dbpkg.IsUniqueViolation(err, ""))

	found, err := repo.FindPaymentByIntentID(context.Background(), "pi_lifecycle")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, found.ID)
	require.NotNil(t, found.Order, "payment loads with its order")
	assert.Equal(t, int64(100007), found.Order.OrderNumber)

	failedAt := time.Now().UTC()
	message := "Your card was declined."
	require.NoError(t, repo.MarkPaymentFailed(context.Background(), payment.ID, json.RawMessage(`{"id": "pi_lifecycle"}`), &message, failedAt))
	require.NoError(t, repo.CancelOrder(context.Background(), order.ID, failedAt))

	found, err = repo.FindPaymentByIntentID(context.Background(), "pi_lifecycle")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, found.Status)
	require.NotNil(t, found.FailureMessage)
	assert.Equal(t, message, *found.FailureMessage)
	require.NotNil(t, found.FailedAt)
	assert.JSONEq(t, `{"id": "pi_lifecycle"}`, string(found.RawPayload))
	assert.Equal(t, enums.OrderStatusCancelled, found.Order.Status)
	require.NotNil(t, found.Order.CancelledAt)
}

func TestRepositoryListByUserPaginates(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	oldest := seedOrder(t, db, 100010, "buyer@example.com", &userID, now.Add(-2*time.Hour))
	middle := seedOrder(t, db, 100011, "buyer@example.com", &userID, now.Add(-time.Hour))
	newest := seedOrder(t, db, 100012, "buyer@example.com", &userID, now)
	otherID := uuid.New()
	seedOrder(t, db, 100013, "other@example.com", &otherID, now)

	first, cursor, err := repo.ListByUser(context.Background(), userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, newest.ID, first[0].ID)
	assert.Equal(t, middle.ID, first[1].ID)
	require.NotEmpty(t, cursor)

	second, next, err := repo.ListByUser(context.Background(), userID, pagination.Params{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, oldest.ID, second[0].ID)
	assert.Empty(t, next)

	_, _, err = repo.ListByUser(context.Background(), userID, pagination.Params{Cursor: "not-base64"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
