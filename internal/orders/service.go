package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/inventory"
	"github.com/aurelle/storefront-backend/internal/notifications"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SetStatusInput carries a status transition request.
type SetStatusInput struct {
	Status         string  `json:"status" validate:"required"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
	Carrier        *string `json:"carrier,omitempty"`
}

// TrackInput identifies an order for the public tracking endpoint.
type TrackInput struct {
	OrderNumber int64  `json:"order_number" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
}

// TrackResult is the public shape returned to unauthenticated callers.
type TrackResult struct {
	OrderNumber    int64             `json:"order_number"`
	Status         enums.OrderStatus `json:"status"`
	IsPaid         bool              `json:"is_paid"`
	IsDelivered    bool              `json:"is_delivered"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
	Carrier        *string           `json:"carrier,omitempty"`
	PlacedAt       time.Time         `json:"placed_at"`
}

// Service defines order lifecycle operations beyond placement.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListMine(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, string, error)
	ListAll(ctx context.Context, status *enums.OrderStatus, params ListParams) ([]models.Order, string, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, string, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, input SetStatusInput) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	CancelItem(ctx context.Context, orderID, itemID uuid.UUID) (*models.Order, error)
	Track(ctx context.Context, input TrackInput) (*TrackResult, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
}

// ListParams configures pagination for order listings.
type ListParams struct {
	Limit  int
	Cursor string
}

type service struct {
	repo       Repository
	tx         txRunner
	reconciler inventory.Reconciler
	users      userLoader
	notifier   notifications.Notifier
	now        func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, reconciler inventory.Reconciler, users userLoader, notifier notifications.Notifier) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("inventory reconciler required")
	}
	if users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:       repo,
		tx:         tx,
		reconciler: reconciler,
		users:      users,
		notifier:   notifier,
		now:        time.Now,
	}, nil
}

// statusMessages keys the customer notification on the resulting status.
var statusMessages = map[enums.OrderStatus]string{
	enums.OrderStatusProcessing: "Your order is being processed.",
	enums.OrderStatusConfirmed:  "Your order has been confirmed.",
	enums.OrderStatusDispatched: "Your order has been dispatched.",
	enums.OrderStatusShipped:    "Your order is on its way.",
	enums.OrderStatusDelivered:  "Your order has been delivered.",
	enums.OrderStatusCancelled:  "Your order has been cancelled.",
	enums.OrderStatusReturned:   "Your order has been marked as returned.",
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, string, error) {
	return s.listForUser(ctx, userID, params)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, string, error) {
	return s.listForUser(ctx, userID, params)
}

func (s *service) listForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	orders, next, err := s.repo.ListForUser(ctx, userID, paginationParams(params))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, next, nil
}

func (s *service) ListAll(ctx context.Context, status *enums.OrderStatus, params ListParams) ([]models.Order, string, error) {
	if status != nil && !status.IsValid() {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", *status))
	}
	orders, next, err := s.repo.ListAll(ctx, status, paginationParams(params))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, next, nil
}

// SetStatus moves the order through the workflow. Ordered statuses may
// not skip forward; re-applying the current status or stepping back is
// tolerated so an admin can correct a mistake. Cancelled is only
// reachable before Shipped and Returned only from Delivered.
func (s *service) SetStatus(ctx context.Context, orderID uuid.UUID, input SetStatusInput) (*models.Order, error) {
	target, err := enums.ParseOrderStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if err := s.applyTransition(ctx, tx, repo, order, target, input); err != nil {
			return err
		}

		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if msg, ok := statusMessages[updated.Status]; ok {
		s.notifier.Notify(ctx, updated.UserID, enums.NotificationKindOrder,
			fmt.Sprintf("Order #%d", updated.OrderNumber), msg)
	}
	return updated, nil
}

func (s *service) applyTransition(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, target enums.OrderStatus, input SetStatusInput) error {
	current := order.Status
	if current == target {
		// Idempotent: re-applying the current status changes nothing.
		return nil
	}

	currentLevel, currentOrdered := current.Level()

	switch target {
	case enums.OrderStatusCancelled:
		if !currentOrdered || currentLevel > 3 {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot cancel an order in status %s", current))
		}
		return s.cancel(ctx, tx, repo, order)

	case enums.OrderStatusReturned:
		if current != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be returned")
		}
		order.Status = enums.OrderStatusReturned
		return nil
	}

	targetLevel, ok := target.Level()
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", target))
	}
	if !currentOrdered {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot move to %s", current, target))
	}
	// Forward jumps are capped to one step; moving back is an admin
	// correction and always allowed.
	if targetLevel > currentLevel+1 {
		next, _ := enums.NextOrdered(currentLevel)
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot skip steps: order in status %s can next move to %s", current, next))
	}

	switch target {
	case enums.OrderStatusShipped:
		now := s.now()
		order.IsDispatched = true
		order.DispatchedAt = &now
		if input.TrackingNumber != nil {
			order.TrackingNumber = input.TrackingNumber
		}
		if input.Carrier != nil {
			order.Carrier = input.Carrier
		}
	case enums.OrderStatusDelivered:
		if !order.IsDispatched {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"order cannot be marked delivered before it has shipped")
		}
		now := s.now()
		order.IsDelivered = true
		order.DeliveredAt = &now
		// Cash on delivery settles when the parcel lands.
		if strings.EqualFold(order.PaymentMethod, enums.PaymentMethodCOD) && !order.IsPaid {
			order.IsPaid = true
			order.PaidAt = &now
		}
		for i := range order.Items {
			if order.Items[i].Status == enums.OrderItemStatusOrdered {
				order.Items[i].Status = enums.OrderItemStatusDelivered
				if err := repo.SaveItem(ctx, &order.Items[i]); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order item")
				}
			}
		}
	default:
		// Stepping back into the pre-shipping flow clears the derived
		// flags so the order can run the tail of the workflow again.
		order.IsDispatched = false
		order.DispatchedAt = nil
		order.IsDelivered = false
		order.DeliveredAt = nil
	}
	order.Status = target
	return nil
}

func (s *service) cancel(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) error {
	now := s.now()
	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &now

	ref := order.ID.String()
	for i := range order.Items {
		item := &order.Items[i]
		if item.Status == enums.OrderItemStatusCancelled || item.Status == enums.OrderItemStatusReturned {
			continue
		}
		if _, err := s.reconciler.ApplyDelta(ctx, tx, inventory.Change{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Delta:     item.Quantity,
			Reason:    enums.StockReasonOrderCancelled,
			Reference: &ref,
		}); err != nil {
			return err
		}
		item.Status = enums.OrderItemStatusCancelled
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order item")
		}
	}
	return nil
}

func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	now := s.now()
	order.IsPaid = true
	order.PaidAt = &now
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	return order, nil
}

// Refund flips payment back and parks the order in Returned.
func (s *service) Refund(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was never paid")
	}
	order.IsPaid = false
	order.PaidAt = nil
	order.Status = enums.OrderStatusReturned
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}

	s.notifier.Notify(ctx, order.UserID, enums.NotificationKindOrder,
		fmt.Sprintf("Order #%d", order.OrderNumber), "Your refund has been processed.")
	return order, nil
}

// CancelItem drops a line from an unpaid order. Stock is not restored
// automatically; an admin adjustment handles physical returns.
func (s *service) CancelItem(ctx context.Context, orderID, itemID uuid.UUID) (*models.Order, error) {
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		var item *models.OrderItem
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				item = &order.Items[i]
				break
			}
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if item.Status != enums.OrderItemStatusOrdered {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("item in status %s cannot be cancelled", item.Status))
		}

		if !order.IsPaid {
			order.TotalCents -= item.UnitPriceCents * item.Quantity
			if order.TotalCents < 0 {
				order.TotalCents = 0
			}
		}
		item.Status = enums.OrderItemStatusCancelled
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order item")
		}
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Track(ctx context.Context, input TrackInput) (*TrackResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if input.OrderNumber <= 0 || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number and email are required")
	}

	order, err := s.repo.FindByNumber(ctx, input.OrderNumber)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	owner, err := s.users.Get(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(owner.Email, email) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	return &TrackResult{
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		IsPaid:         order.IsPaid,
		IsDelivered:    order.IsDelivered,
		TrackingNumber: order.TrackingNumber,
		Carrier:        order.Carrier,
		PlacedAt:       order.CreatedAt,
	}, nil
}

func (s *service) Delete(ctx context.Context, orderID uuid.UUID) error {
	err := s.repo.Delete(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
	}
	return nil
}

func paginationParams(params ListParams) pagination.Params {
	return pagination.Params{Limit: params.Limit, Cursor: params.Cursor}
}
