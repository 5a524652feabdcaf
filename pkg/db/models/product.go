package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/types"
)

// Product represents a storefront listing. Stock is the aggregate count
// across variants for variant products, or the sole counter otherwise.
type Product struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SKU                 string            `gorm:"column:sku;not null;uniqueIndex"`
	Name                string            `gorm:"column:name;not null"`
	Description         *string           `gorm:"column:description"`
	Category            string            `gorm:"column:category;not null"`
	Material            *string           `gorm:"column:material"`
	Images              types.StringArray `gorm:"column:images"`
	PriceCents          int               `gorm:"column:price_cents;not null"`
	CompareAtPriceCents *int              `gorm:"column:compare_at_price_cents"`
	Stock               int               `gorm:"column:stock;not null;default:0"`
	IsActive            bool              `gorm:"column:is_active;not null;default:true"`
	IsFeatured          bool              `gorm:"column:is_featured;not null;default:false"`
	Variants            []ProductVariant  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the id app-side so every backend behaves the same.
func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasVariants reports whether stock is tracked per variant.
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}
