package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
)

func TestValidatePercentageDiscount(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	max := 2000
	_, err := svc.Create(ctx, CreateCouponInput{
		Code:             "spring20",
		DiscountType:     enums.DiscountTypePercentage,
		DiscountValue:    20,
		MinOrderCents:    5000,
		MaxDiscountCents: &max,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	quote, err := svc.Validate(ctx, "SPRING20", 8000)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if quote.DiscountCents != 1600 {
		t.Fatalf("expected 1600 discount, got %d", quote.DiscountCents)
	}

	// Cap kicks in once 20% exceeds the max discount.
	quote, err = svc.Validate(ctx, "SPRING20", 20000)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if quote.DiscountCents != 2000 {
		t.Fatalf("expected capped 2000 discount, got %d", quote.DiscountCents)
	}
}

func TestValidateMinOrderAndWindow(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := svc.Create(ctx, CreateCouponInput{
		Code:          "EXPIRED",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: 500,
		ExpiresAt:     &past,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	_, err = svc.Validate(ctx, "EXPIRED", 10000)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for expired coupon, got %v", err)
	}

	_, err = svc.Create(ctx, CreateCouponInput{
		Code:          "BIGSPEND",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: 500,
		MinOrderCents: 50000,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	_, err = svc.Validate(ctx, "BIGSPEND", 100)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error below minimum, got %v", err)
	}
}

func TestRedeemHonorsUsageLimit(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	limit := 1
	_, err := svc.Create(ctx, CreateCouponInput{
		Code:          "ONCE",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: 500,
		UsageLimit:    &limit,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.Redeem(ctx, tx, "ONCE", 10000)
		return terr
	}); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.Redeem(ctx, tx, "ONCE", 10000)
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected usage limit conflict, got %v", err)
	}

	var coupon models.Coupon
	if err := db.First(&coupon, "code = ?", "ONCE").Error; err != nil {
		t.Fatalf("load coupon: %v", err)
	}
	if coupon.UsedCount != 1 {
		t.Fatalf("expected used_count 1, got %d", coupon.UsedCount)
	}
}

func TestReleaseReturnsUse(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCouponInput{
		Code:          "GIVEBACK",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: 500,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		if _, terr := svc.Redeem(ctx, tx, "GIVEBACK", 10000); terr != nil {
			return terr
		}
		return nil
	}); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Release(ctx, tx, "GIVEBACK")
	}); err != nil {
		t.Fatalf("release: %v", err)
	}

	var coupon models.Coupon
	if err := db.First(&coupon, "code = ?", "GIVEBACK").Error; err != nil {
		t.Fatalf("load coupon: %v", err)
	}
	if coupon.UsedCount != 0 {
		t.Fatalf("expected used_count 0 after release, got %d", coupon.UsedCount)
	}
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:coupons_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Coupon{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("coupon service: %v", err)
	}
	return svc, db
}
