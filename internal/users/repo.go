package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/db/models"
)

// Repository persists user accounts. Errors come back untranslated, so
// callers can match gorm.ErrRecordNotFound or the unique-email violation
// against their own taxonomy.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a repo to db, which may be a transaction handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the account described by dto and returns the stored row.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	row := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// FindByID loads one user by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var row models.User
	err := r.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByEmail loads one user by email. The column carries a unique index,
// so Take needs no ordering.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var row models.User
	err := r.db.WithContext(ctx).Take(&row, "email = ?", email).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateLastLogin stamps last_login_at without touching updated_at. Reports
// gorm.ErrRecordNotFound when the user row is gone.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
