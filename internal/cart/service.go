package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service exposes cart operations for both registered and guest shoppers.
type Service interface {
	GetCart(ctx context.Context, owner Owner) (*CartDTO, error)
	AddItem(ctx context.Context, owner Owner, input AddItemInput) (*CartDTO, error)
	UpdateItem(ctx context.Context, owner Owner, itemID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, owner Owner, itemID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, owner Owner) error
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLoader
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, tx: tx, products: products}, nil
}

// GetCart returns the owner's cart, or an empty view when none exists yet.
func (s *service) GetCart(ctx context.Context, owner Owner) (*CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	record, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return EmptyCartDTO(), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return FromModel(record), nil
}

// AddItem puts a product in the cart, creating the cart row on first use.
// Adding a product already present increases its quantity.
func (s *service) AddItem(ctx context.Context, owner Owner, input AddItemInput) (*CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.products.FindActiveByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	var saved *CartDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := repo.FindByOwner(ctx, owner)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record, err = repo.Create(ctx, newCartForOwner(owner))
		}
		if err != nil {
			return err
		}

		newQty := input.Quantity
		item, err := repo.FindItem(ctx, record.ID, product.ID)
		switch {
		case err == nil:
			newQty += item.Quantity
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = nil
		default:
			return err
		}
		if newQty > product.StockQuantity {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %s", product.Name))
		}

		if item == nil {
			item = newCartItem(record.ID, product.ID, newQty)
		} else {
			item.Quantity = newQty
		}
		if _, err := repo.SaveItem(ctx, item); err != nil {
			return err
		}
		if err := repo.Touch(ctx, record.ID); err != nil {
			return err
		}

		reloaded, err := repo.FindByID(ctx, record.ID)
		if err != nil {
			return err
		}
		saved = FromModel(reloaded)
		return nil
	})
	if err != nil {
		return nil, asCartError(err, "add cart item")
	}
	return saved, nil
}

// UpdateItem replaces the quantity of an existing cart line.
func (s *service) UpdateItem(ctx context.Context, owner Owner, itemID uuid.UUID, quantity int) (*CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart item id required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var saved *CartDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, item, err := findOwnedItem(ctx, repo, owner, itemID)
		if err != nil {
			return err
		}

		product, err := s.products.FindActiveByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available")
			}
			return err
		}
		if quantity > product.StockQuantity {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %s", product.Name))
		}

		item.Quantity = quantity
		if _, err := repo.SaveItem(ctx, item); err != nil {
			return err
		}
		if err := repo.Touch(ctx, record.ID); err != nil {
			return err
		}

		reloaded, err := repo.FindByID(ctx, record.ID)
		if err != nil {
			return err
		}
		saved = FromModel(reloaded)
		return nil
	})
	if err != nil {
		return nil, asCartError(err, "update cart item")
	}
	return saved, nil
}

// RemoveItem drops a single line from the cart.
func (s *service) RemoveItem(ctx context.Context, owner Owner, itemID uuid.UUID) (*CartDTO, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart item id required")
	}

	var saved *CartDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, item, err := findOwnedItem(ctx, repo, owner, itemID)
		if err != nil {
			return err
		}
		if err := repo.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		if err := repo.Touch(ctx, record.ID); err != nil {
			return err
		}

		reloaded, err := repo.FindByID(ctx, record.ID)
		if err != nil {
			return err
		}
		saved = FromModel(reloaded)
		return nil
	})
	if err != nil {
		return nil, asCartError(err, "remove cart item")
	}
	return saved, nil
}

// Clear empties the owner's cart. Clearing a cart that never existed is a
// successful no-op.
func (s *service) Clear(ctx context.Context, owner Owner) error {
	if err := owner.Validate(); err != nil {
		return err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := repo.FindByOwner(ctx, owner)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := repo.ClearItems(ctx, record.ID); err != nil {
			return err
		}
		return repo.Touch(ctx, record.ID)
	})
	if err != nil {
		return asCartError(err, "clear cart")
	}
	return nil
}

func findOwnedItem(ctx context.Context, repo CartRepository, owner Owner, itemID uuid.UUID) (*models.Cart, *models.CartItem, error) {
	record, err := repo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, nil, err
	}
	item, err := repo.FindItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, nil, err
	}
	if item.CartID != record.ID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return record, item, nil
}

func newCartForOwner(owner Owner) *models.Cart {
	cart := &models.Cart{ID: uuid.New()}
	if owner.UserID != nil {
		id := *owner.UserID
		cart.UserID = &id
	}
	if owner.SessionKey != nil {
		key := *owner.SessionKey
		cart.SessionKey = &key
	}
	return cart
}

func newCartItem(cartID, productID uuid.UUID, qty int) *models.CartItem {
	return &models.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  qty,
	}
}

// asCartError keeps typed errors raised inside the transaction intact and
// wraps everything else as a dependency failure.
func asCartError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
