package stockledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
)

// Repository manages persistence for stock log entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.StockLogEntry) error
	ListByProductID(ctx context.Context, productID uuid.UUID) ([]models.StockLogEntry, error)
	ListByReference(ctx context.Context, reference string) ([]models.StockLogEntry, error)
	CountByReferenceAndReason(ctx context.Context, reference string, reason enums.StockReason) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.StockLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByProductID(ctx context.Context, productID uuid.UUID) ([]models.StockLogEntry, error) {
	var entries []models.StockLogEntry
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByReference(ctx context.Context, reference string) ([]models.StockLogEntry, error) {
	var entries []models.StockLogEntry
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) CountByReferenceAndReason(ctx context.Context, reference string, reason enums.StockReason) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockLogEntry{}).
		Where("reference = ? AND reason = ?", reference, reason).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
