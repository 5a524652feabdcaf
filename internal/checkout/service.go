package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/cart"
	"github.com/aurelle/storefront-backend/internal/coupons"
	"github.com/aurelle/storefront-backend/internal/inventory"
	"github.com/aurelle/storefront-backend/internal/notifications"
	"github.com/aurelle/storefront-backend/internal/orders"
	"github.com/aurelle/storefront-backend/internal/users"
	"github.com/aurelle/storefront-backend/pkg/config"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/logger"
	"github.com/aurelle/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PlaceOrderInput captures a checkout submission.
type PlaceOrderInput struct {
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	PaymentMethod   string        `json:"payment_method" validate:"required"`
	CouponCode      *string       `json:"coupon_code,omitempty"`
	PointsToUse     int           `json:"points_to_use,omitempty" validate:"gte=0"`
	// DeclaredTotalCents is the total the storefront displayed at
	// checkout. Coupon minimum-purchase rules are checked against it.
	DeclaredTotalCents int `json:"declared_total_cents,omitempty" validate:"gte=0"`
}

// ReplacementInput creates a zero-charge order shipped in place of an
// exchanged item. The caller owns the surrounding transaction and the
// stock decrement.
type ReplacementInput struct {
	UserID          uuid.UUID
	OriginalOrderID uuid.UUID
	ShippingAddress *types.Address
	ProductID       uuid.UUID
	VariantID       *uuid.UUID
	Name            string
	VariantName     *string
	Image           *string
	Quantity        int
}

// Service runs the checkout pipeline.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*models.Order, error)
	PlaceReplacement(ctx context.Context, tx *gorm.DB, input ReplacementInput) (*models.Order, error)
}

type service struct {
	cart       cart.Service
	coupons    coupons.Service
	users      users.Service
	orders     orders.Repository
	reconciler inventory.Reconciler
	tx         txRunner
	notifier   notifications.Notifier
	cfg        config.CheckoutConfig
	log        *logger.Logger
	now        func() time.Time
}

// NewService wires the checkout pipeline. Every dependency is required.
func NewService(
	cartSvc cart.Service,
	couponSvc coupons.Service,
	userSvc users.Service,
	orderRepo orders.Repository,
	reconciler inventory.Reconciler,
	tx txRunner,
	notifier notifications.Notifier,
	cfg config.CheckoutConfig,
	log *logger.Logger,
) (Service, error) {
	if cartSvc == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if userSvc == nil {
		return nil, fmt.Errorf("user service required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("inventory reconciler required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		cart:       cartSvc,
		coupons:    couponSvc,
		users:      userSvc,
		orders:     orderRepo,
		reconciler: reconciler,
		tx:         tx,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	method := strings.TrimSpace(input.PaymentMethod)
	if !strings.EqualFold(method, enums.PaymentMethodCOD) && !strings.EqualFold(method, enums.PaymentMethodOnline) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.PaymentMethod))
	}
	if input.PointsToUse < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points to use cannot be negative")
	}

	lines, err := s.cart.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	subtotal := 0
	for _, line := range lines {
		subtotal += line.UnitPriceCents * line.Item.Quantity
	}
	shipping := s.cfg.ShippingFlatCents
	if subtotal >= s.cfg.FreeShippingMinCents {
		shipping = 0
	}

	var couponCode *string
	couponDiscount := 0
	if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
		declared := input.DeclaredTotalCents
		if declared <= 0 {
			declared = subtotal
		}
		var quote *coupons.Quote
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			quote, err = s.coupons.Redeem(ctx, tx, *input.CouponCode, declared)
			return err
		})
		if err != nil {
			return nil, err
		}
		code := quote.Coupon.Code
		couponCode = &code
		couponDiscount = quote.DiscountCents
		if couponDiscount > subtotal {
			couponDiscount = subtotal
		}
	}

	running := subtotal - couponDiscount
	pointsDiscount := input.PointsToUse * s.cfg.PointValueCents
	if pointsDiscount > running {
		pointsDiscount = running
	}
	pointsUsed := 0
	if s.cfg.PointValueCents > 0 {
		pointsUsed = pointsDiscount / s.cfg.PointValueCents
		pointsDiscount = pointsUsed * s.cfg.PointValueCents
	}
	total := running - pointsDiscount + shipping

	// Stock is reserved line by line, each in its own transaction, so a
	// concurrent checkout for the same product fails fast instead of
	// deadlocking. When a line cannot be reserved, the lines already
	// taken are handed back and any coupon use is released.
	attemptRef := uuid.NewString()
	reserved := make([]cart.Line, 0, len(lines))
	for _, line := range lines {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.reconciler.ApplyDelta(ctx, tx, inventory.Change{
				ProductID: line.Item.ProductID,
				VariantID: line.Item.VariantID,
				Delta:     -line.Item.Quantity,
				Reason:    enums.StockReasonOrder,
				Reference: &attemptRef,
			})
			return err
		})
		if err == nil {
			reserved = append(reserved, line)
			continue
		}
		s.compensate(ctx, userID, reserved, couponCode, attemptRef)
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			if removeErr := s.cart.RemoveItem(ctx, userID, line.Item.ID); removeErr != nil {
				s.log.Error(s.log.WithUserID(ctx, userID.String()), "remove stale cart item", removeErr)
			}
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("%s is no longer available and was removed from your cart", line.Product.Name))
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("not enough stock for %s", line.Product.Name))
		}
		return nil, err
	}

	now := s.now()
	isPaid := !strings.EqualFold(method, enums.PaymentMethodCOD)
	order := &models.Order{
		UserID:          userID,
		Status:          enums.OrderStatusPending,
		PaymentMethod:   method,
		IsPaid:          isPaid,
		ShippingAddress: &input.ShippingAddress,
		SubtotalCents:   subtotal,
		CouponCode:      couponCode,
		CouponDiscount:  couponDiscount,
		PointsUsed:      pointsUsed,
		PointsDiscount:  pointsDiscount,
		ShippingCents:   shipping,
		TotalCents:      total,
	}
	if isPaid {
		order.PaidAt = &now
	}
	for _, line := range lines {
		order.Items = append(order.Items, snapshotItem(line))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		number, err := repo.NextOrderNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}
		order.OrderNumber = number
		if pointsUsed > 0 {
			if err := s.users.DebitPoints(ctx, tx, userID, pointsUsed); err != nil {
				return err
			}
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.cart.Clear(ctx, tx, userID)
	})
	if err != nil {
		s.compensate(ctx, userID, lines, couponCode, attemptRef)
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order could not be saved")
	}

	s.notifier.Notify(ctx, userID, enums.NotificationKindOrder,
		fmt.Sprintf("Order #%d", order.OrderNumber), "Your order has been placed.")
	if order.IsPaid {
		if earned := order.TotalCents / 100; earned > 0 {
			if err := s.users.CreditPoints(ctx, nil, userID, earned); err != nil {
				logCtx := s.log.WithOrderID(s.log.WithUserID(ctx, userID.String()), order.ID.String())
				s.log.Error(logCtx, "credit loyalty points", err)
			}
		}
	}
	return order, nil
}

// compensate hands reserved stock back and releases any coupon use after
// an aborted attempt. Each item is restored independently; a restore that
// fails is logged and skipped so the others still land.
func (s *service) compensate(ctx context.Context, userID uuid.UUID, lines []cart.Line, couponCode *string, attemptRef string) {
	for _, line := range lines {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.reconciler.ApplyDelta(ctx, tx, inventory.Change{
				ProductID: line.Item.ProductID,
				VariantID: line.Item.VariantID,
				Delta:     line.Item.Quantity,
				Reason:    enums.StockReasonSystemRestore,
				Reference: &attemptRef,
			})
			return err
		})
		if err != nil {
			logCtx := s.log.WithField(s.log.WithUserID(ctx, userID.String()), "product_id", line.Item.ProductID.String())
			s.log.Error(logCtx, "restore reserved stock", err)
		}
	}
	if couponCode != nil {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.coupons.Release(ctx, tx, *couponCode)
		})
		if err != nil {
			s.log.Error(s.log.WithUserID(ctx, userID.String()), "release coupon use", err)
		}
	}
}

// PlaceReplacement writes the no-charge order sent out for an approved
// exchange. It runs inside the caller's transaction; the caller has
// already taken the replacement unit out of stock.
func (s *service) PlaceReplacement(ctx context.Context, tx *gorm.DB, input ReplacementInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for replacement order")
	}
	if input.UserID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and product id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := s.orders.WithTx(tx)
	number, err := repo.NextOrderNumber(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
	}

	now := s.now()
	originalID := input.OriginalOrderID
	order := &models.Order{
		OrderNumber:      number,
		UserID:           input.UserID,
		Status:           enums.OrderStatusProcessing,
		PaymentMethod:    enums.PaymentMethodExchangeReplacement,
		IsPaid:           true,
		PaidAt:           &now,
		ShippingAddress:  input.ShippingAddress,
		ReplacementForID: &originalID,
		Items: []models.OrderItem{{
			ProductID:      input.ProductID,
			VariantID:      input.VariantID,
			Name:           input.Name,
			VariantName:    input.VariantName,
			Image:          input.Image,
			Quantity:       input.Quantity,
			UnitPriceCents: 0,
			Status:         enums.OrderItemStatusOrdered,
		}},
	}
	if err := repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create replacement order")
	}
	return order, nil
}

func snapshotItem(line cart.Line) models.OrderItem {
	item := models.OrderItem{
		ProductID:      line.Item.ProductID,
		VariantID:      line.Item.VariantID,
		Name:           line.Product.Name,
		Quantity:       line.Item.Quantity,
		UnitPriceCents: line.UnitPriceCents,
		Status:         enums.OrderItemStatusOrdered,
	}
	if line.Variant != nil {
		name := line.Variant.Name
		item.VariantName = &name
	}
	if len(line.Product.Images) > 0 {
		image := line.Product.Images[0]
		item.Image = &image
	}
	return item
}
