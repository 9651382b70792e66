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

	"github.com/jordanmaier/copperline-backend/internal/cart"
	"github.com/jordanmaier/copperline-backend/internal/catalog"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/outbox"
	"github.com/jordanmaier/copperline-backend/pkg/pagination"
)

var pipelineTableSchemas = []string{
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT UNIQUE,
  session_key TEXT UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, product_id)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
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
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate
  ON outbox_events (event_type, aggregate_type, aggregate_id);`,
}

func setupPipelineTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:pipeline_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range orderTableSchemas {
		require.NoError(t, db.Exec(stmt).Error)
	}
	for _, stmt := range pipelineTableSchemas {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type userLoaderFunc func(ctx context.Context, id uuid.UUID) (*models.User, error)

func (fn userLoaderFunc) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return fn(ctx, id)
}

func knownUsers(ids ...uuid.UUID) userLoaderFunc {
	set := map[uuid.UUID]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		if set[id] {
			return &models.User{ID: id}, nil
		}
		return nil, gorm.ErrRecordNotFound
	}
}

type recordingNotifier struct {
	confirmations []*models.Order
	failures      []*models.Order
}

func (n *recordingNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order) {
	n.confirmations = append(n.confirmations, order)
}

func (n *recordingNotifier) SendPaymentFailed(ctx context.Context, order *models.Order) {
	n.failures = append(n.failures, order)
}

func newPipelineService(t *testing.T, db *gorm.DB, users userLoader, sink *recordingNotifier) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		TxRunner: testTxRunner{db: db},
		Repo:     NewRepository(db),
		CartRepo: cart.NewRepository(db),
		Stock:    catalog.NewRepository(db),
		Users:    users,
		Outbox:   outbox.NewService(outbox.NewRepository(db), nil),
		Notifier: sink,
		Logger:   logger.New(logger.Options{ServiceName: "orders-test"}),
	})
	require.NoError(t, err)
	return svc
}

func seedPipelineProduct(t *testing.T, db *gorm.DB, sku, name, price string, stock int) *models.Product {
	t.Helper()

	amount, err := decimal.NewFromString(price)
	require.NoError(t, err)
	product := &models.Product{
		ID:            uuid.New(),
		SKU:           sku,
		Name:          name,
		Price:         amount,
		WeightGrams:   250,
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedPipelineCart(t *testing.T, db *gorm.DB, userID *uuid.UUID, sessionKey *string) *models.Cart {
	t.Helper()

	record := &models.Cart{ID: uuid.New(), UserID: userID, SessionKey: sessionKey}
	require.NoError(t, db.Create(record).Error)
	return record
}

func addPipelineItem(t *testing.T, db *gorm.DB, cartID uuid.UUID, product *models.Product, qty int, created time.Time) {
	t.Helper()

	item := &models.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: product.ID,
		Quantity:  qty,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, db.Create(item).Error)
}

func pipelineSnapshot(cartID uuid.UUID, userID *uuid.UUID, intent string) SessionSnapshot {
	line2 := "Apt 4"
	phone := "+15550100"
	return SessionSnapshot{
		SessionID:       "cs_" + intent,
		PaymentIntentID: intent,
		CartID:          cartID,
		UserID:          userID,
		Email:           "dana@example.com",
		Phone:           &phone,
		Currency:        "usd",
		SubtotalCents:   5350,
		TaxCents:        0,
		ShippingCents:   899,
		TotalCents:      6249,
		Shipping: SessionAddress{
			Name: "Dana Walsh", Line1: "12 Oak Ave", Line2: &line2,
			City: "Salem", State: "OR", PostalCode: "97301", Country: "US",
		},
		Billing: SessionAddress{
			Name: "Dana Walsh", Line1: "9 Pine St",
			City: "Portland", State: "OR", PostalCode: "97201", Country: "US",
		},
		RawPayload: json.RawMessage(`{"id": "cs_` + intent + `"}`),
	}
}

func countOutboxEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	return count
}

func TestServiceMaterializeOrderCreatesEverything(t *testing.T) {
	db := setupPipelineTestDB(t)
	userID := uuid.New()
	sink := &recordingNotifier{}
	svc := newPipelineService(t, db, knownUsers(userID), sink)

	now := time.Now().UTC()
	tee := seedPipelineProduct(t, db, "CL-TEE-01", "Copper Tee", "24.00", 5)
	mug := seedPipelineProduct(t, db, "CL-MUG-01", "Line Mug", "5.50", 3)
	record := seedPipelineCart(t, db, &userID, nil)
	addPipelineItem(t, db, record.ID, tee, 2, now.Add(-2*time.Second))
	addPipelineItem(t, db, record.ID, mug, 1, now.Add(-time.Second))

	snapshot := pipelineSnapshot(record.ID, &userID, "pi_happy")
	require.NoError(t, svc.MaterializeOrder(context.Background(), snapshot))

	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order).Error)
	assert.Equal(t, int64(100000), order.OrderNumber)
	assert.Equal(t, enums.OrderStatusProcessing, order.Status)
	require.NotNil(t, order.UserID)
	assert.Equal(t, userID, *order.UserID)
	assert.Equal(t, "dana@example.com", order.Email)
	assert.Equal(t, "12 Oak Ave", order.ShippingLine1)
	require.NotNil(t, order.ShippingLine2)
	assert.Equal(t, "Apt 4", *order.ShippingLine2)
	assert.Equal(t, "9 Pine St", order.BillingLine1)
	assert.Equal(t, "53.50", order.Subtotal.StringFixed(2))
	assert.Equal(t, "8.99", order.ShippingFee.StringFixed(2))
	assert.Equal(t, "62.49", order.Total.StringFixed(2))

	require.Len(t, order.Items, 2)
	byName := map[string]models.OrderItem{}
	for _, item := range order.Items {
		byName[item.ProductName] = item
	}
	teeLine := byName["Copper Tee"]
	assert.Equal(t, "CL-TEE-01", teeLine.ProductSKU)
	assert.Equal(t, 2, teeLine.Quantity)
	assert.Equal(t, "24.00", teeLine.UnitPrice.StringFixed(2))
	assert.Equal(t, "48.00", teeLine.LineTotal.StringFixed(2))

	var teeRow, mugRow models.Product
	require.NoError(t, db.First(&teeRow, "id = ?", tee.ID).Error)
	require.NoError(t, db.First(&mugRow, "id = ?", mug.ID).Error)
	assert.Equal(t, 3, teeRow.StockQuantity)
	assert.Equal(t, 2, mugRow.StockQuantity)

	var itemCount int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", record.ID).Count(&itemCount).Error)
	assert.Zero(t, itemCount, "cart empties on materialization")
	var cartCount int64
	require.NoError(t, db.Model(&models.Cart{}).Where("id = ?", record.ID).Count(&cartCount).Error)
	assert.Equal(t, int64(1), cartCount, "cart row survives")

	var payment models.Payment
	require.NoError(t, db.First(&payment, "payment_intent_id = ?", "pi_happy").Error)
	assert.Equal(t, order.ID, payment.OrderID)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, "cs_pi_happy", payment.CheckoutSessionID)
	assert.Equal(t, "62.49", payment.Amount.StringFixed(2))
	assert.JSONEq(t, `{"id": "cs_pi_happy"}`, string(payment.RawPayload))

	var events []models.OutboxEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	assert.Equal(t, enums.AggregateOrder, events[0].AggregateType)
	assert.Equal(t, order.ID, events[0].AggregateID)

	require.Len(t, sink.confirmations, 1)
	assert.Equal(t, order.ID, sink.confirmations[0].ID)
}

func TestServiceMaterializeOrderDuplicateIntentNoOp(t *testing.T) {
	db := setupPipelineTestDB(t)
	sink := &recordingNotifier{}
	svc := newPipelineService(t, db, knownUsers(), sink)

	product := seedPipelineProduct(t, db, "CL-TEE-01", "Copper Tee", "24.00", 5)
	key := uuid.NewString()
	record := seedPipelineCart(t, db, nil, &key)
	addPipelineItem(t, db, record.ID, product, 1, time.Now().UTC())

	snapshot := pipelineSnapshot(record.ID, nil, "pi_dup")
	require.NoError(t, svc.MaterializeOrder(context.Background(), snapshot))
	require.NoError(t, svc.MaterializeOrder(context.Background(), snapshot))

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(1), orderCount)

	var row models.Product
	require.NoError(t, db.First(&row, "id = ?", product.ID).Error)
	assert.Equal(t, 4, row.StockQuantity, "redelivery must not decrement twice")
	assert.Len(t, sink.confirmations, 1, "one confirmation per order")
}

func TestServiceMaterializeOrderCartGone(t *testing.T) {
	db := setupPipelineTestDB(t)
	svc := newPipelineService(t, db, knownUsers(), &recordingNotifier{})

	err := svc.MaterializeOrder(context.Background(), pipelineSnapshot(uuid.New(), nil, "pi_lost"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	key := uuid.NewString()
	empty := seedPipelineCart(t, db, nil, &key)
	err = svc.MaterializeOrder(context.Background(), pipelineSnapshot(empty.ID, nil, "pi_empty"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, countOutboxEvents(t, db))
}

func TestServiceMaterializeOrderUnknownUserBecomesGuest(t *testing.T) {
	db := setupPipelineTestDB(t)
	svc := newPipelineService(t, db, knownUsers(), &recordingNotifier{})

	product := seedPipelineProduct(t, db, "CL-TEE-01", "Copper Tee", "24.00", 5)
	key := uuid.NewString()
	record := seedPipelineCart(t, db, nil, &key)
	addPipelineItem(t, db, record.ID, product, 1, time.Now().UTC())

	ghost := uuid.New()
	require.NoError(t, svc.MaterializeOrder(context.Background(), pipelineSnapshot(record.ID, &ghost, "pi_ghost")))

	var order models.Order
	require.NoError(t, db.First(&order).Error)
	assert.Nil(t, order.UserID, "unknown metadata user demotes to guest")
}

func TestServiceMaterializeOrderInsufficientStockRollsBack(t *testing.T) {
	db := setupPipelineTestDB(t)
	svc := newPipelineService(t, db, knownUsers(), &recordingNotifier{})

	product := seedPipelineProduct(t, db, "CL-TEE-01", "Copper Tee", "24.00", 1)
	key := uuid.NewString()
	record := seedPipelineCart(t, db, nil, &key)
	addPipelineItem(t, db, record.ID, product, 2, time.Now().UTC())

	err := svc.MaterializeOrder(context.Background(), pipelineSnapshot(record.ID, nil, "pi_short"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v", err)

	var orderCount, paymentCount, itemCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&models.Payment{}).Count(&paymentCount).Error)
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", record.ID).Count(&itemCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, paymentCount)
	assert.Equal(t, int64(1), itemCount, "cart must survive a rolled-back attempt")

	var row models.Product
	require.NoError(t, db.First(&row, "id = ?", product.ID).Error)
	assert.Equal(t, 1, row.StockQuantity)
}

func TestServiceMarkPaymentFailedCancelsOrder(t *testing.T) {
	db := setupPipelineTestDB(t)
	sink := &recordingNotifier{}
	svc := newPipelineService(t, db, knownUsers(), sink)

	product := seedPipelineProduct(t, db, "CL-TEE-01", "Copper Tee", "24.00", 5)
	key := uuid.NewString()
	record := seedPipelineCart(t, db, nil, &key)
	addPipelineItem(t, db, record.ID, product, 1, time.Now().UTC())
	require.NoError(t, svc.MaterializeOrder(context.Background(), pipelineSnapshot(record.ID, nil, "pi_fail")))

	message := "Your card was declined."
	raw := json.RawMessage(`{"id": "pi_fail"}`)
	require.NoError(t, svc.MarkPaymentFailed(context.Background(), "pi_fail", raw, &message))

	var payment models.Payment
	require.NoError(t, db.First(&payment, "payment_intent_id = ?", "pi_fail").Error)
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)
	require.NotNil(t, payment.FailureMessage)
	assert.Equal(t, message, *payment.FailureMessage)
	require.NotNil(t, payment.FailedAt)
	assert.JSONEq(t, `{"id": "pi_fail"}`, string(payment.RawPayload))

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", payment.OrderID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	require.NotNil(t, order.CancelledAt)

	var events []models.OutboxEvent
	require.NoError(t, db.Order("created_at ASC").Find(&events).Error)
	require.Len(t, events, 3)
	types := map[enums.OutboxEventType]bool{}
	for _, event := range events {
		types[event.EventType] = true
	}
	assert.True(t, types[enums.EventOrderCreated])
	assert.True(t, types[enums.EventPaymentFailed])
	assert.True(t, types[enums.EventOrderCancelled])

	require.Len(t, sink.failures, 1)
	assert.Equal(t, order.ID, sink.failures[0].ID)

	// Redelivery of the failure event is a no-op: the payment is already
	// failed, so nothing is emitted or notified twice.
	require.NoError(t, svc.MarkPaymentFailed(context.Background(), "pi_fail", raw, &message))
	assert.Equal(t, int64(3), countOutboxEvents(t, db))
	assert.Len(t, sink.failures, 1)
}

func TestServiceMarkPaymentFailedUnknownIntentIgnored(t *testing.T) {
	db := setupPipelineTestDB(t)
	svc := newPipelineService(t, db, knownUsers(), &recordingNotifier{})

	require.NoError(t, svc.MarkPaymentFailed(context.Background(), "pi_never_seen", nil, nil))
	var paymentCount int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&paymentCount).Error)
	assert.Zero(t, paymentCount)

	err := svc.MarkPaymentFailed(context.Background(), "  ", nil, nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestServiceOrderReads(t *testing.T) {
	db := setupPipelineTestDB(t)
	userID := uuid.New()
	svc := newPipelineService(t, db, knownUsers(userID), &recordingNotifier{})

	product := seedPipelineProduct(t, db, "CL-TEE-01", "Copper Tee", "24.00", 5)
	record := seedPipelineCart(t, db, &userID, nil)
	addPipelineItem(t, db, record.ID, product, 2, time.Now().UTC())
	require.NoError(t, svc.MaterializeOrder(context.Background(), pipelineSnapshot(record.ID, &userID, "pi_reads")))

	var order models.Order
	require.NoError(t, db.First(&order).Error)

	dto, err := svc.GetOrder(context.Background(), order.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, "CL-100000", dto.OrderNumber)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, 2, dto.Items[0].Quantity)

	_, err = svc.GetOrder(context.Background(), order.ID, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "orders are invisible to non-owners")

	list, err := svc.ListOrders(context.Background(), userID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, 1, list.Orders[0].ItemCount)
	assert.Empty(t, list.NextCursor)

	tracked, err := svc.Track(context.Background(), TrackInput{OrderNumber: "cl-100000", Email: "dana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, dto.ID, tracked.ID)

	_, err = svc.Track(context.Background(), TrackInput{OrderNumber: "CL-100000", Email: "wrong@example.com"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Track(context.Background(), TrackInput{OrderNumber: "garbage", Email: "dana@example.com"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
