package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart holds a shopper's pending selections. Exactly one of UserID and
// SessionKey is set: carts belong either to an account or to an anonymous
// browser session, never both. The row survives checkout; only its items
// are cleared when an order materializes.
type Cart struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     *uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex"`
	SessionKey *string    `gorm:"column:session_key;uniqueIndex"`
	Items      []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Owned reports whether the cart belongs to a registered user.
func (c *Cart) Owned() bool {
	return c != nil && c.UserID != nil
}
