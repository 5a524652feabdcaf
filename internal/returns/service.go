package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/checkout"
	"github.com/aurelle/storefront-backend/internal/inventory"
	"github.com/aurelle/storefront-backend/internal/notifications"
	"github.com/aurelle/storefront-backend/internal/orders"
	"github.com/aurelle/storefront-backend/internal/stockledger"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/pagination"
)

// reasonDamaged never restocks; the unit is written off.
const reasonDamaged = "Damaged Product"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput opens a return or exchange request for one order item.
type CreateInput struct {
	OrderID           uuid.UUID          `json:"order_id" validate:"required"`
	OrderItemID       uuid.UUID          `json:"order_item_id" validate:"required"`
	Type              string             `json:"type" validate:"required"`
	Reason            string             `json:"reason" validate:"required"`
	Comment           *string            `json:"comment,omitempty"`
	PickupMethod      enums.PickupMethod `json:"pickup_method,omitempty"`
	ExchangeVariantID *uuid.UUID         `json:"exchange_variant_id,omitempty"`
}

// DecideInput records the admin verdict on a requested return.
type DecideInput struct {
	Approve         bool    `json:"approve"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
}

// UpdateStatusInput moves an approved request through the pickup and QC
// pipeline.
type UpdateStatusInput struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note,omitempty"`
}

// ListParams configures pagination for request listings.
type ListParams struct {
	Limit  int
	Cursor string
}

// Service runs the return and exchange workflow.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.ReturnRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.ReturnRequest, string, error)
	ListAll(ctx context.Context, status *enums.ReturnStatus, params ListParams) ([]models.ReturnRequest, string, error)
	Decide(ctx context.Context, adminID, requestID uuid.UUID, input DecideInput) (*models.ReturnRequest, error)
	UpdateStatus(ctx context.Context, adminID, requestID uuid.UUID, input UpdateStatusInput) (*models.ReturnRequest, error)
	Resolve(ctx context.Context, adminID, requestID uuid.UUID) (*models.ReturnRequest, error)
}

type service struct {
	repo       Repository
	orders     orders.Repository
	checkout   checkout.Service
	reconciler inventory.Reconciler
	ledger     stockledger.Service
	tx         txRunner
	notifier   notifications.Notifier
	now        func() time.Time
}

// NewService wires the returns workflow. Every dependency is required.
func NewService(
	repo Repository,
	orderRepo orders.Repository,
	checkoutSvc checkout.Service,
	reconciler inventory.Reconciler,
	ledger stockledger.Service,
	tx txRunner,
	notifier notifications.Notifier,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if checkoutSvc == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("inventory reconciler required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:       repo,
		orders:     orderRepo,
		checkout:   checkoutSvc,
		reconciler: reconciler,
		ledger:     ledger,
		tx:         tx,
		notifier:   notifier,
		now:        time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.ReturnRequest, error) {
	returnType, err := enums.ParseReturnType(input.Type)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	pickup := input.PickupMethod
	if pickup == "" {
		pickup = enums.PickupMethodPickup
	}

	var request *models.ReturnRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		order, err := orderRepo.FindByID(ctx, input.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another account")
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be returned")
		}

		var item *models.OrderItem
		for i := range order.Items {
			if order.Items[i].ID == input.OrderItemID {
				item = &order.Items[i]
				break
			}
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}

		repo := s.repo.WithTx(tx)
		exists, err := repo.ExistsForItem(ctx, order.ID, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing request")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "a request already exists for this item")
		}

		request = &models.ReturnRequest{
			OrderID:           order.ID,
			OrderItemID:       item.ID,
			UserID:            userID,
			Type:              returnType,
			Status:            enums.ReturnStatusRequested,
			Reason:            strings.TrimSpace(input.Reason),
			Comment:           input.Comment,
			PickupMethod:      pickup,
			QCStatus:          enums.QCStatusPending,
			ExchangeVariantID: input.ExchangeVariantID,
		}
		if err := repo.Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		if err := s.appendTimeline(ctx, repo, request.ID, enums.ReturnStatusRequested, input.Comment, &userID); err != nil {
			return err
		}

		if returnType == enums.ReturnTypeExchange {
			item.Status = enums.OrderItemStatusExchangeRequested
		} else {
			item.Status = enums.OrderItemStatusReturnRequested
		}
		if err := orderRepo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, userID, enums.NotificationKindOrder,
		"Return request received", fmt.Sprintf("Your %s request is being reviewed.", strings.ToLower(string(returnType))))
	return request, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return request, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.ReturnRequest, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	requests, next, err := s.repo.ListForUser(ctx, userID, pagination.Params{Limit: params.Limit, Cursor: params.Cursor})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return requests")
	}
	return requests, next, nil
}

func (s *service) ListAll(ctx context.Context, status *enums.ReturnStatus, params ListParams) ([]models.ReturnRequest, string, error) {
	if status != nil && !status.IsValid() {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid return status %q", *status))
	}
	requests, next, err := s.repo.ListAll(ctx, status, pagination.Params{Limit: params.Limit, Cursor: params.Cursor})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return requests")
	}
	return requests, next, nil
}

func (s *service) Decide(ctx context.Context, adminID, requestID uuid.UUID, input DecideInput) (*models.ReturnRequest, error) {
	var request *models.ReturnRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		request, err = s.load(ctx, repo, requestID)
		if err != nil {
			return err
		}
		if request.Status != enums.ReturnStatusRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("request in status %s has already been decided", request.Status))
		}

		now := s.now()
		request.DecidedBy = &adminID
		request.DecidedAt = &now

		if !input.Approve {
			return s.reject(ctx, tx, repo, request, adminID, input.RejectionReason)
		}
		if request.Type == enums.ReturnTypeExchange {
			return s.approveExchange(ctx, tx, repo, request, adminID)
		}
		return s.approveReturn(ctx, tx, repo, request, adminID)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, request)
	return request, nil
}

func (s *service) reject(ctx context.Context, tx *gorm.DB, repo Repository, request *models.ReturnRequest, adminID uuid.UUID, reason *string) error {
	request.Status = enums.ReturnStatusRejected
	request.RejectionReason = reason
	if err := repo.Save(ctx, request); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save return request")
	}
	if err := s.appendTimeline(ctx, repo, request.ID, enums.ReturnStatusRejected, reason, &adminID); err != nil {
		return err
	}
	return s.setItemStatus(ctx, tx, request.OrderItemID, enums.OrderItemStatusDelivered)
}

// approveReturn restocks on approval unless the item came back damaged.
// The ledger reference is the request id so resolution can tell whether
// the unit already went back.
func (s *service) approveReturn(ctx context.Context, tx *gorm.DB, repo Repository, request *models.ReturnRequest, adminID uuid.UUID) error {
	request.Status = enums.ReturnStatusApproved
	if err := repo.Save(ctx, request); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save return request")
	}
	if err := s.appendTimeline(ctx, repo, request.ID, enums.ReturnStatusApproved, nil, &adminID); err != nil {
		return err
	}
	if err := s.setItemStatus(ctx, tx, request.OrderItemID, enums.OrderItemStatusReturned); err != nil {
		return err
	}
	if strings.EqualFold(request.Reason, reasonDamaged) {
		return nil
	}
	return s.restock(ctx, tx, repo, request, &adminID)
}

func (s *service) approveExchange(ctx context.Context, tx *gorm.DB, repo Repository, request *models.ReturnRequest, adminID uuid.UUID) error {
	order, err := s.orders.WithTx(tx).FindByID(ctx, request.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	var item *models.OrderItem
	for i := range order.Items {
		if order.Items[i].ID == request.OrderItemID {
			item = &order.Items[i]
			break
		}
	}
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}

	variantID := item.VariantID
	if request.ExchangeVariantID != nil {
		variantID = request.ExchangeVariantID
	}

	ref := request.ID.String()
	if _, err := s.reconciler.ApplyDelta(ctx, tx, inventory.Change{
		ProductID:   item.ProductID,
		VariantID:   variantID,
		Delta:       -item.Quantity,
		Reason:      enums.StockReasonOrder,
		Reference:   &ref,
		ActorUserID: &adminID,
	}); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			return pkgerrors.New(pkgerrors.CodeConflict, "replacement is out of stock")
		}
		return err
	}

	replacement, err := s.checkout.PlaceReplacement(ctx, tx, checkout.ReplacementInput{
		UserID:          request.UserID,
		OriginalOrderID: request.OrderID,
		ShippingAddress: order.ShippingAddress,
		ProductID:       item.ProductID,
		VariantID:       variantID,
		Name:            item.Name,
		VariantName:     item.VariantName,
		Image:           item.Image,
		Quantity:        item.Quantity,
	})
	if err != nil {
		return err
	}

	request.Status = enums.ReturnStatusReplacementSent
	request.ReplacementOrderID = &replacement.ID
	if err := repo.Save(ctx, request); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save return request")
	}
	if err := s.appendTimeline(ctx, repo, request.ID, enums.ReturnStatusReplacementSent, nil, &adminID); err != nil {
		return err
	}

	item.Status = enums.OrderItemStatusExchanged
	return s.orders.WithTx(tx).SaveItem(ctx, item)
}

// allowedPipelineStatuses can be set through UpdateStatus; everything
// else moves through Decide or Resolve.
var allowedPipelineStatuses = map[enums.ReturnStatus]bool{
	enums.ReturnStatusPickupScheduled: true,
	enums.ReturnStatusPickedUp:        true,
	enums.ReturnStatusReceived:        true,
	enums.ReturnStatusQCPending:       true,
	enums.ReturnStatusQCPassed:        true,
	enums.ReturnStatusQCFailed:        true,
}

func (s *service) UpdateStatus(ctx context.Context, adminID, requestID uuid.UUID, input UpdateStatusInput) (*models.ReturnRequest, error) {
	target, err := enums.ParseReturnStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if !allowedPipelineStatuses[target] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("status %s cannot be set directly", target))
	}

	var request *models.ReturnRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		request, err = s.load(ctx, repo, requestID)
		if err != nil {
			return err
		}
		if request.Status == enums.ReturnStatusRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request has not been approved yet")
		}
		if request.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("request in status %s is closed", request.Status))
		}

		request.Status = target
		switch target {
		case enums.ReturnStatusQCPassed:
			request.QCStatus = enums.QCStatusPassed
			request.QCNote = input.Note
		case enums.ReturnStatusQCFailed:
			request.QCStatus = enums.QCStatusFailed
			request.QCNote = input.Note
		}
		if err := repo.Save(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save return request")
		}
		return s.appendTimeline(ctx, repo, request.ID, target, input.Note, &adminID)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, request)
	return request, nil
}

// Resolve closes out an approved request. Returns refund after QC has
// passed; exchanges ship the replacement if approval did not already.
func (s *service) Resolve(ctx context.Context, adminID, requestID uuid.UUID) (*models.ReturnRequest, error) {
	var request *models.ReturnRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		request, err = s.load(ctx, repo, requestID)
		if err != nil {
			return err
		}
		if request.Status == enums.ReturnStatusRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request has not been approved yet")
		}
		if request.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("request in status %s is closed", request.Status))
		}

		if request.Type == enums.ReturnTypeExchange {
			return s.approveExchange(ctx, tx, repo, request, adminID)
		}
		return s.resolveReturn(ctx, tx, repo, request, adminID)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, request)
	return request, nil
}

func (s *service) resolveReturn(ctx context.Context, tx *gorm.DB, repo Repository, request *models.ReturnRequest, adminID uuid.UUID) error {
	if request.QCStatus != enums.QCStatusPassed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refund requires a passed quality check")
	}

	item, err := s.orders.WithTx(tx).FindItem(ctx, request.OrderItemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}

	if !strings.EqualFold(request.Reason, reasonDamaged) {
		restocked, err := s.ledger.WithTx(tx).HasRestock(ctx, request.ID.String())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check restock ledger")
		}
		if !restocked {
			if err := s.restock(ctx, tx, repo, request, &adminID); err != nil {
				return err
			}
		}
	}

	refund := item.UnitPriceCents * item.Quantity
	request.RefundCents = &refund
	request.Status = enums.ReturnStatusRefundCompleted
	if err := repo.Save(ctx, request); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save return request")
	}
	return s.appendTimeline(ctx, repo, request.ID, enums.ReturnStatusRefundCompleted, nil, &adminID)
}

func (s *service) restock(ctx context.Context, tx *gorm.DB, repo Repository, request *models.ReturnRequest, actorID *uuid.UUID) error {
	item, err := s.orders.WithTx(tx).FindItem(ctx, request.OrderItemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}
	ref := request.ID.String()
	if _, err := s.reconciler.ApplyDelta(ctx, tx, inventory.Change{
		ProductID:   item.ProductID,
		VariantID:   item.VariantID,
		Delta:       item.Quantity,
		Reason:      enums.StockReasonReturn,
		Reference:   &ref,
		ActorUserID: actorID,
	}); err != nil {
		return err
	}
	now := s.now()
	request.RestockedAt = &now
	if err := repo.Save(ctx, request); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save return request")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.ReturnRequest, error) {
	request, err := repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return request, nil
}

func (s *service) setItemStatus(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, status enums.OrderItemStatus) error {
	repo := s.orders.WithTx(tx)
	item, err := repo.FindItem(ctx, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}
	item.Status = status
	if err := repo.SaveItem(ctx, item); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order item")
	}
	return nil
}

func (s *service) appendTimeline(ctx context.Context, repo Repository, requestID uuid.UUID, status enums.ReturnStatus, note *string, actorID *uuid.UUID) error {
	entry := &models.ReturnTimelineEntry{
		ReturnRequestID: requestID,
		Status:          status,
		Note:            note,
		ActorUserID:     actorID,
	}
	if err := repo.AppendTimeline(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append timeline")
	}
	return nil
}

var returnStatusMessages = map[enums.ReturnStatus]string{
	enums.ReturnStatusApproved:        "Your return has been approved.",
	enums.ReturnStatusRejected:        "Your return request was not approved.",
	enums.ReturnStatusPickupScheduled: "A pickup has been scheduled for your return.",
	enums.ReturnStatusPickedUp:        "Your return has been picked up.",
	enums.ReturnStatusReceived:        "We received your returned item.",
	enums.ReturnStatusQCPassed:        "Your returned item passed inspection.",
	enums.ReturnStatusQCFailed:        "Your returned item did not pass inspection.",
	enums.ReturnStatusRefundCompleted: "Your refund has been processed.",
	enums.ReturnStatusReplacementSent: "Your replacement is on its way.",
}

func (s *service) notifyStatus(ctx context.Context, request *models.ReturnRequest) {
	msg, ok := returnStatusMessages[request.Status]
	if !ok {
		return
	}
	s.notifier.Notify(ctx, request.UserID, enums.NotificationKindOrder, "Return update", msg)
}
