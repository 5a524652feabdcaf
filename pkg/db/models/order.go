package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/enums"
	"github.com/aurelle/storefront-backend/pkg/types"
)

// Order represents a customer purchase. Status moves through the ordered
// workflow in pkg/enums; IsPaid/IsDelivered and their timestamps are kept
// in sync with the status by the orders service, never written directly.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        int64             `gorm:"column:order_number;not null;uniqueIndex"`
	UserID             uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status             enums.OrderStatus `gorm:"column:status;type:text;not null;default:'Pending'"`
	PaymentMethod      string            `gorm:"column:payment_method;not null"`
	IsPaid             bool              `gorm:"column:is_paid;not null;default:false"`
	PaidAt             *time.Time        `gorm:"column:paid_at"`
	IsDispatched       bool              `gorm:"column:is_dispatched;not null;default:false"`
	DispatchedAt       *time.Time        `gorm:"column:dispatched_at"`
	IsDelivered        bool              `gorm:"column:is_delivered;not null;default:false"`
	DeliveredAt        *time.Time        `gorm:"column:delivered_at"`
	ShippingAddress    *types.Address    `gorm:"column:shipping_address;type:address_t"`
	SubtotalCents      int               `gorm:"column:subtotal_cents;not null"`
	CouponCode         *string           `gorm:"column:coupon_code"`
	CouponDiscount     int               `gorm:"column:coupon_discount_cents;not null;default:0"`
	PointsUsed         int               `gorm:"column:points_used;not null;default:0"`
	PointsDiscount     int               `gorm:"column:points_discount_cents;not null;default:0"`
	ShippingCents      int               `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents         int               `gorm:"column:total_cents;not null"`
	TrackingNumber     *string           `gorm:"column:tracking_number"`
	Carrier            *string           `gorm:"column:carrier"`
	ReplacementForID   *uuid.UUID        `gorm:"column:replacement_for_id;type:uuid"`
	CancelledAt        *time.Time        `gorm:"column:cancelled_at"`
	CancellationReason *string           `gorm:"column:cancellation_reason"`
	Items              []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots a purchased line at checkout time. VariantID is set
// when the customer picked a specific variant; stock postings carry both
// the product and variant references.
type OrderItem struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID            `gorm:"column:variant_id;type:uuid"`
	Name           string                `gorm:"column:name;not null"`
	VariantName    *string               `gorm:"column:variant_name"`
	Image          *string               `gorm:"column:image"`
	Quantity       int                   `gorm:"column:quantity;not null"`
	UnitPriceCents int                   `gorm:"column:unit_price_cents;not null"`
	Status         enums.OrderItemStatus `gorm:"column:status;type:text;not null;default:'Ordered'"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
