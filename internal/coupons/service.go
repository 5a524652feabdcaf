package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
)

// Service manages coupon lifecycle and redemption.
type Service interface {
	Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateCouponInput) (*models.Coupon, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Validate(ctx context.Context, code string, subtotalCents int) (*Quote, error)
	Redeem(ctx context.Context, tx *gorm.DB, code string, subtotalCents int) (*Quote, error)
	Release(ctx context.Context, tx *gorm.DB, code string) error
}

// Quote is the outcome of validating a code against an order subtotal.
type Quote struct {
	Coupon        *models.Coupon
	DiscountCents int
}

// CreateCouponInput captures the fields needed to publish a coupon.
type CreateCouponInput struct {
	Code             string             `json:"code" validate:"required"`
	Description      *string            `json:"description,omitempty"`
	DiscountType     enums.DiscountType `json:"discount_type" validate:"required"`
	DiscountValue    int                `json:"discount_value" validate:"min=1"`
	MinOrderCents    int                `json:"min_order_cents" validate:"min=0"`
	MaxDiscountCents *int               `json:"max_discount_cents,omitempty" validate:"omitempty,min=1"`
	UsageLimit       *int               `json:"usage_limit,omitempty" validate:"omitempty,min=1"`
	StartsAt         *time.Time         `json:"starts_at,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
}

// UpdateCouponInput carries optional fields; nil means leave unchanged.
type UpdateCouponInput struct {
	Description      *string    `json:"description,omitempty"`
	DiscountValue    *int       `json:"discount_value,omitempty" validate:"omitempty,min=1"`
	MinOrderCents    *int       `json:"min_order_cents,omitempty" validate:"omitempty,min=0"`
	MaxDiscountCents *int       `json:"max_discount_cents,omitempty"`
	UsageLimit       *int       `json:"usage_limit,omitempty"`
	IsActive         *bool      `json:"is_active,omitempty"`
	StartsAt         *time.Time `json:"starts_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a coupon service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if !input.DiscountType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid discount type %q", input.DiscountType))
	}
	if input.DiscountValue <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}

	coupon := &models.Coupon{
		Code:             code,
		Description:      input.Description,
		DiscountType:     input.DiscountType,
		DiscountValue:    input.DiscountValue,
		MinOrderCents:    input.MinOrderCents,
		MaxDiscountCents: input.MaxDiscountCents,
		UsageLimit:       input.UsageLimit,
		IsActive:         true,
		StartsAt:         input.StartsAt,
		ExpiresAt:        input.ExpiresAt,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return coupon, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateCouponInput) (*models.Coupon, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon id is required")
	}
	coupon, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	if input.Description != nil {
		coupon.Description = input.Description
	}
	if input.DiscountValue != nil {
		coupon.DiscountValue = *input.DiscountValue
	}
	if input.MinOrderCents != nil {
		coupon.MinOrderCents = *input.MinOrderCents
	}
	if input.MaxDiscountCents != nil {
		coupon.MaxDiscountCents = input.MaxDiscountCents
	}
	if input.UsageLimit != nil {
		coupon.UsageLimit = input.UsageLimit
	}
	if input.IsActive != nil {
		coupon.IsActive = *input.IsActive
	}
	if input.StartsAt != nil {
		coupon.StartsAt = input.StartsAt
	}
	if input.ExpiresAt != nil {
		coupon.ExpiresAt = input.ExpiresAt
	}

	if err := s.repo.Save(ctx, coupon); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	return coupon, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func (s *service) List(ctx context.Context) ([]models.Coupon, error) {
	coupons, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	return coupons, nil
}

func (s *service) Validate(ctx context.Context, code string, subtotalCents int) (*Quote, error) {
	coupon, err := s.repo.FindByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	now := s.now()
	if !coupon.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon is inactive")
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon is not active yet")
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon has expired")
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
	}
	if subtotalCents < coupon.MinOrderCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("order subtotal below coupon minimum of %d", coupon.MinOrderCents))
	}

	return &Quote{Coupon: coupon, DiscountCents: discountFor(coupon, subtotalCents)}, nil
}

// Redeem validates the code and claims one use atomically. The claim is a
// guarded update, so two checkouts racing for the last slot cannot both win.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, code string, subtotalCents int) (*Quote, error) {
	repo := s.repo.WithTx(tx)
	svc := &service{repo: repo, now: s.now}

	quote, err := svc.Validate(ctx, code, subtotalCents)
	if err != nil {
		return nil, err
	}

	claimed, err := repo.IncrementUsage(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim coupon use")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
	}
	return quote, nil
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, code string) error {
	if err := s.repo.WithTx(tx).DecrementUsage(ctx, code); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release coupon use")
	}
	return nil
}

func discountFor(coupon *models.Coupon, subtotalCents int) int {
	var discount int
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		pct := decimal.NewFromInt(int64(coupon.DiscountValue)).Div(decimal.NewFromInt(100))
		discount = int(decimal.NewFromInt(int64(subtotalCents)).Mul(pct).IntPart())
	default:
		discount = coupon.DiscountValue
	}
	if coupon.MaxDiscountCents != nil && discount > *coupon.MaxDiscountCents {
		discount = *coupon.MaxDiscountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return discount
}
