package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:cart_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
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
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price string, stock int) *models.Product {
	t.Helper()

	amount, err := decimal.NewFromString(price)
	require.NoError(t, err)
	product := &models.Product{
		ID:            uuid.New(),
		SKU:           sku,
		Name:          "Product " + sku,
		Price:         amount,
		WeightGrams:   250,
		StockQuantity: stock,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedCart(t *testing.T, db *gorm.DB, owner Owner) *models.Cart {
	t.Helper()

	record := newCartForOwner(owner)
	require.NoError(t, db.Create(record).Error)
	return record
}

func TestRepositoryFindByOwner(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	sessionKey := uuid.NewString()
	userCart := seedCart(t, db, UserOwner(userID))
	guestCart := seedCart(t, db, GuestOwner(sessionKey))

	found, err := repo.FindByOwner(context.Background(), UserOwner(userID))
	require.NoError(t, err)
	assert.Equal(t, userCart.ID, found.ID)

	found, err = repo.FindByOwner(context.Background(), GuestOwner(sessionKey))
	require.NoError(t, err)
	assert.Equal(t, guestCart.ID, found.ID)

	_, err = repo.FindByOwner(context.Background(), GuestOwner(uuid.NewString()))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryClearItemsKeepsCartRow(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)

	product := seedProduct(t, db, "CL-PEN-01", "4.50", 20)
	record := seedCart(t, db, UserOwner(uuid.New()))
	item := newCartItem(record.ID, product.ID, 3)
	require.NoError(t, db.Create(item).Error)

	require.NoError(t, repo.ClearItems(context.Background(), record.ID))

	var itemCount int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", record.ID).Count(&itemCount).Error)
	assert.Zero(t, itemCount)

	var cartCount int64
	require.NoError(t, db.Model(&models.Cart{}).Where("id = ?", record.ID).Count(&cartCount).Error)
	assert.Equal(t, int64(1), cartCount, "cart row must survive a clear")
}

func TestRepositoryDeleteIdleGuestCartsBefore(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)

	staleGuest := seedCart(t, db, GuestOwner(uuid.NewString()))
	freshGuest := seedCart(t, db, GuestOwner(uuid.NewString()))
	userCart := seedCart(t, db, UserOwner(uuid.New()))

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, db.Model(&models.Cart{}).Where("id IN ?", []uuid.UUID{staleGuest.ID, userCart.ID}).UpdateColumn("updated_at", old).Error)

	deleted, err := repo.DeleteIdleGuestCartsBefore(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.Cart
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	ids := map[uuid.UUID]bool{remaining[0].ID: true, remaining[1].ID: true}
	assert.True(t, ids[freshGuest.ID])
	assert.True(t, ids[userCart.ID], "user carts are never reaped")
}
