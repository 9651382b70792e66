package cart

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
)

// Owner identifies who a cart belongs to: a registered user or an anonymous
// browser session. Exactly one of the two fields is set.
type Owner struct {
	UserID     *uuid.UUID
	SessionKey *string
}

// UserOwner builds the owner form for an authenticated user.
func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: &userID}
}

// GuestOwner builds the owner form for an anonymous session key.
func GuestOwner(sessionKey string) Owner {
	key := strings.TrimSpace(sessionKey)
	return Owner{SessionKey: &key}
}

// Validate enforces the user-XOR-session ownership rule.
func (o Owner) Validate() error {
	hasUser := o.UserID != nil && *o.UserID != uuid.Nil
	hasSession := o.SessionKey != nil && strings.TrimSpace(*o.SessionKey) != ""
	if hasUser == hasSession {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart owner must be a user or a session, not both")
	}
	return nil
}

// IsUser reports whether the owner is an authenticated user.
func (o Owner) IsUser() bool {
	return o.UserID != nil && *o.UserID != uuid.Nil
}

// CartItemDTO is one cart line rendered against the live catalog.
type CartItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	InStock     bool            `json:"in_stock"`
}

// CartDTO is the cart view returned by every cart operation. ID is nil
// until a first mutation lazily creates the row.
type CartDTO struct {
	ID               *uuid.UUID      `json:"id,omitempty"`
	Items            []CartItemDTO   `json:"items"`
	ItemCount        int             `json:"item_count"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TotalWeightGrams int             `json:"total_weight_grams"`
}

// AddItemInput is the payload for adding a product to the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// EmptyCartDTO is what callers see before any cart row exists.
func EmptyCartDTO() *CartDTO {
	return &CartDTO{
		Items:    []CartItemDTO{},
		Subtotal: decimal.Zero,
	}
}

// FromModel renders the persisted cart with totals derived from current
// catalog prices. These are display estimates; authoritative order amounts
// come from the payment provider at materialization time.
func FromModel(c *models.Cart) *CartDTO {
	if c == nil {
		return EmptyCartDTO()
	}

	items := append([]models.CartItem(nil), c.Items...)
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	dto := &CartDTO{
		ID:       &c.ID,
		Items:    make([]CartItemDTO, 0, len(items)),
		Subtotal: decimal.Zero,
	}
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		lineTotal := item.Product.Price.Mul(qty)
		dto.Items = append(dto.Items, CartItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			ProductSKU:  item.Product.SKU,
			UnitPrice:   item.Product.Price,
			Quantity:    item.Quantity,
			LineTotal:   lineTotal,
			InStock:     item.Product.StockQuantity >= item.Quantity,
		})
		dto.ItemCount += item.Quantity
		dto.Subtotal = dto.Subtotal.Add(lineTotal)
		dto.TotalWeightGrams += item.Product.WeightGrams * item.Quantity
	}
	return dto
}
