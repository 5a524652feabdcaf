package catalog

import (
	"github.com/google/uuid"
)

// ListFilters describe the supported filter knobs for the browse endpoint.
type ListFilters struct {
	Category   *string `json:"category,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
	IsFeatured *bool   `json:"is_featured,omitempty"`
	Query      string  `json:"q,omitempty"`
}

// VariantInput declares a variant for create/update calls.
type VariantInput struct {
	Name       string `json:"name" validate:"required"`
	SKU        string `json:"sku" validate:"required"`
	PriceCents *int   `json:"price_cents,omitempty" validate:"omitempty,min=0"`
	Stock      int    `json:"stock" validate:"min=0"`
}

// CreateProductInput captures the fields needed to publish a listing.
type CreateProductInput struct {
	SKU                 string         `json:"sku" validate:"required"`
	Name                string         `json:"name" validate:"required"`
	Description         *string        `json:"description,omitempty"`
	Category            string         `json:"category" validate:"required"`
	Material            *string        `json:"material,omitempty"`
	Images              []string       `json:"images,omitempty"`
	PriceCents          int            `json:"price_cents" validate:"min=0"`
	CompareAtPriceCents *int           `json:"compare_at_price_cents,omitempty" validate:"omitempty,min=0"`
	Stock               int            `json:"stock" validate:"min=0"`
	IsFeatured          bool           `json:"is_featured"`
	Variants            []VariantInput `json:"variants,omitempty" validate:"dive"`
}

// UpdateProductInput carries optional fields; nil means leave unchanged.
type UpdateProductInput struct {
	Name                *string   `json:"name,omitempty"`
	Description         *string   `json:"description,omitempty"`
	Category            *string   `json:"category,omitempty"`
	Material            *string   `json:"material,omitempty"`
	Images              *[]string `json:"images,omitempty"`
	PriceCents          *int      `json:"price_cents,omitempty" validate:"omitempty,min=0"`
	CompareAtPriceCents *int      `json:"compare_at_price_cents,omitempty" validate:"omitempty,min=0"`
	IsActive            *bool     `json:"is_active,omitempty"`
	IsFeatured          *bool     `json:"is_featured,omitempty"`
}

// AdjustStockInput moves a stock counter by Delta with an audit note.
// Zero deltas are allowed and recorded so manual recounts leave a trace.
type AdjustStockInput struct {
	ProductID   uuid.UUID  `json:"product_id" validate:"required"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	Delta       int        `json:"delta"`
	Note        *string    `json:"note,omitempty"`
	ActorUserID uuid.UUID  `json:"-"`
}
