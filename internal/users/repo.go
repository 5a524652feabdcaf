package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/db/models"
)

// Repository manages persistence for users.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	DebitPoints(ctx context.Context, userID uuid.UUID, points int) (bool, error)
	CreditPoints(ctx context.Context, userID uuid.UUID, points int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) Save(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DebitPoints takes loyalty points only while the balance covers them.
// Returns false when the balance was too low.
func (r *repository) DebitPoints(ctx context.Context, userID uuid.UUID, points int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE users
		SET loyalty_points = loyalty_points - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND loyalty_points >= ?
	`, points, userID, points)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreditPoints(ctx context.Context, userID uuid.UUID, points int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE users
		SET loyalty_points = loyalty_points + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, points, userID).Error
}
