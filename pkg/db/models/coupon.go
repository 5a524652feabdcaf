package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/enums"
)

// Coupon is a redeemable discount code. UsedCount is only ever advanced
// through a guarded atomic update so the usage limit holds under
// concurrent checkouts.
type Coupon struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code             string             `gorm:"column:code;not null;uniqueIndex"`
	Description      *string            `gorm:"column:description"`
	DiscountType     enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue    int                `gorm:"column:discount_value;not null"`
	MinOrderCents    int                `gorm:"column:min_order_cents;not null;default:0"`
	MaxDiscountCents *int               `gorm:"column:max_discount_cents"`
	UsageLimit       *int               `gorm:"column:usage_limit"`
	UsedCount        int                `gorm:"column:used_count;not null;default:0"`
	IsActive         bool               `gorm:"column:is_active;not null;default:true"`
	StartsAt         *time.Time         `gorm:"column:starts_at"`
	ExpiresAt        *time.Time         `gorm:"column:expires_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
