package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	"github.com/aurelle/storefront-backend/pkg/pagination"
)

// Repository manages return requests and their audit timeline.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ReturnRequest) error
	Save(ctx context.Context, request *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	ExistsForItem(ctx context.Context, orderID, orderItemID uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, string, error)
	ListAll(ctx context.Context, status *enums.ReturnStatus, params pagination.Params) ([]models.ReturnRequest, string, error)
	AppendTimeline(ctx context.Context, entry *models.ReturnTimelineEntry) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a return-request repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) Save(ctx context.Context, request *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Omit("Timeline").Save(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	if err := r.db.WithContext(ctx).
		Preload("Timeline", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// ExistsForItem reports whether any request was ever opened for the item.
// Rejected requests count; one request per line item, ever.
func (r *repository) ExistsForItem(ctx context.Context, orderID, orderItemID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ? AND order_item_id = ?", orderID, orderItemID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, string, error) {
	return r.list(ctx, params, func(q *gorm.DB) *gorm.DB {
		return q.Where("user_id = ?", userID)
	})
}

func (r *repository) ListAll(ctx context.Context, status *enums.ReturnStatus, params pagination.Params) ([]models.ReturnRequest, string, error) {
	return r.list(ctx, params, func(q *gorm.DB) *gorm.DB {
		if status != nil {
			q = q.Where("status = ?", *status)
		}
		return q
	})
}

func (r *repository) list(ctx context.Context, params pagination.Params, scope func(*gorm.DB) *gorm.DB) ([]models.ReturnRequest, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	q := scope(r.db.WithContext(ctx).Model(&models.ReturnRequest{}))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var requests []models.ReturnRequest
	if err := q.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&requests).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(requests) > limit {
		requests = requests[:limit]
		last := requests[len(requests)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return requests, next, nil
}

func (r *repository) AppendTimeline(ctx context.Context, entry *models.ReturnTimelineEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
