package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/enums"
)

// ReturnRequest covers both returns and exchanges for a single order item.
// RestockedAt marks when inventory was put back so approval and resolution
// never restock the same unit twice.
type ReturnRequest struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID        uuid.UUID             `gorm:"column:order_item_id;type:uuid;not null;index"`
	UserID             uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Type               enums.ReturnType      `gorm:"column:type;type:text;not null"`
	Status             enums.ReturnStatus    `gorm:"column:status;type:text;not null;default:'Requested'"`
	Reason             string                `gorm:"column:reason;not null"`
	Comment            *string               `gorm:"column:comment"`
	PickupMethod       enums.PickupMethod    `gorm:"column:pickup_method;type:text;not null;default:'Pickup'"`
	QCStatus           enums.QCStatus        `gorm:"column:qc_status;type:text;not null;default:'Pending'"`
	QCNote             *string               `gorm:"column:qc_note"`
	ExchangeVariantID  *uuid.UUID            `gorm:"column:exchange_variant_id;type:uuid"`
	ReplacementOrderID *uuid.UUID            `gorm:"column:replacement_order_id;type:uuid"`
	RefundCents        *int                  `gorm:"column:refund_cents"`
	RestockedAt        *time.Time            `gorm:"column:restocked_at"`
	DecidedBy          *uuid.UUID            `gorm:"column:decided_by;type:uuid"`
	DecidedAt          *time.Time            `gorm:"column:decided_at"`
	RejectionReason    *string               `gorm:"column:rejection_reason"`
	Timeline           []ReturnTimelineEntry `gorm:"foreignKey:ReturnRequestID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReturnTimelineEntry is an append-only audit row for a return request.
type ReturnTimelineEntry struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ReturnRequestID uuid.UUID          `gorm:"column:return_request_id;type:uuid;not null;index"`
	Status          enums.ReturnStatus `gorm:"column:status;type:text;not null"`
	Note            *string            `gorm:"column:note"`
	ActorUserID     *uuid.UUID         `gorm:"column:actor_user_id;type:uuid"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (e *ReturnTimelineEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
