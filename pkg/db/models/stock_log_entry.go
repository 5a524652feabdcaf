package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/enums"
)

// StockLogEntry records an immutable stock movement. PreviousStock and
// NewStock snapshot the counter around the change so the ledger replays
// without recomputation.
type StockLogEntry struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index"`
	VariantID     *uuid.UUID        `gorm:"column:variant_id;type:uuid;index"`
	Change        int               `gorm:"column:change;not null"`
	PreviousStock int               `gorm:"column:previous_stock;not null"`
	NewStock      int               `gorm:"column:new_stock;not null"`
	Reason        enums.StockReason `gorm:"column:reason;type:text;not null"`
	Reference     *string           `gorm:"column:reference;index"`
	ActorUserID   *uuid.UUID        `gorm:"column:actor_user_id;type:uuid"`
	Note          *string           `gorm:"column:note"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (e *StockLogEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
