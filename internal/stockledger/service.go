package stockledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
)

// Service records immutable stock movements. Zero-change entries are
// dropped except for admin adjustments, which stay auditable even when
// the counter did not move.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordInput) (*models.StockLogEntry, error)
	ListByProductID(ctx context.Context, productID uuid.UUID) ([]models.StockLogEntry, error)
	HasRestock(ctx context.Context, reference string) (bool, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the immutable data a stock log entry requires.
type RecordInput struct {
	ProductID     uuid.UUID
	VariantID     *uuid.UUID
	Change        int
	PreviousStock int
	NewStock      int
	Reason        enums.StockReason
	Reference     *string
	ActorUserID   *uuid.UUID
	Note          *string
}

// NewService wires a stock ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.StockLogEntry, error) {
	if input.ProductID == uuid.Nil {
		return nil, fmt.Errorf("product id is required")
	}
	if !input.Reason.IsValid() {
		return nil, fmt.Errorf("invalid stock reason %q", input.Reason)
	}
	if input.NewStock != input.PreviousStock+input.Change {
		return nil, fmt.Errorf("stock snapshot mismatch: %d + %d != %d", input.PreviousStock, input.Change, input.NewStock)
	}
	if input.Change == 0 && input.Reason != enums.StockReasonAdminAdjustment {
		return nil, nil
	}

	entry := &models.StockLogEntry{
		ProductID:     input.ProductID,
		VariantID:     input.VariantID,
		Change:        input.Change,
		PreviousStock: input.PreviousStock,
		NewStock:      input.NewStock,
		Reason:        input.Reason,
		Reference:     input.Reference,
		ActorUserID:   input.ActorUserID,
		Note:          input.Note,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListByProductID(ctx context.Context, productID uuid.UUID) ([]models.StockLogEntry, error) {
	if productID == uuid.Nil {
		return nil, fmt.Errorf("product id is required")
	}
	return s.repo.ListByProductID(ctx, productID)
}

// HasRestock reports whether a return-reason restock was already posted
// for the given reference.
func (s *service) HasRestock(ctx context.Context, reference string) (bool, error) {
	if reference == "" {
		return false, fmt.Errorf("reference is required")
	}
	count, err := s.repo.CountByReferenceAndReason(ctx, reference, enums.StockReasonReturn)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
