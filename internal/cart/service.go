package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/catalog"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
)

// Line is a cart item joined with its live product snapshot.
type Line struct {
	Item           models.CartItem
	Product        *models.Product
	Variant        *models.ProductVariant
	UnitPriceCents int
}

// AddItemInput captures the fields needed to put a product in the cart.
type AddItemInput struct {
	UserID    uuid.UUID
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"min=1"`
}

// Service manages the per-user cart.
type Service interface {
	AddItem(ctx context.Context, input AddItemInput) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	Lines(ctx context.Context, userID uuid.UUID) ([]Line, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type service struct {
	repo     Repository
	products *catalog.Repository
}

// NewService wires a cart service with the provided repositories.
func NewService(repo Repository, products *catalog.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo, products: products}, nil
}

func (s *service) AddItem(ctx context.Context, input AddItemInput) (*models.CartItem, error) {
	if input.UserID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and product ids are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.products.FindByID(ctx, input.ProductID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product is no longer available")
	}
	if input.VariantID != nil {
		found := false
		for _, v := range product.Variants {
			if v.ID == *input.VariantID {
				found = true
				break
			}
		}
		if !found {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
	}

	// Merge with an existing line for the same product/variant.
	existing, err := s.repo.FindLine(ctx, input.UserID, input.ProductID, input.VariantID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}
	if existing != nil {
		existing.Quantity += input.Quantity
		if err := s.repo.Upsert(ctx, existing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
		}
		return existing, nil
	}

	item := &models.CartItem{
		UserID:    input.UserID,
		ProductID: input.ProductID,
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart line")
	}
	return item, nil
}

func (s *service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	items, err := s.repo.FindForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	for i := range items {
		if items[i].ID == itemID {
			items[i].Quantity = quantity
			if err := s.repo.Upsert(ctx, &items[i]); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
			}
			return &items[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	items, err := s.repo.FindForUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	for _, item := range items {
		if item.ID == itemID {
			if err := s.repo.Delete(ctx, itemID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart line")
			}
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
}

// Lines joins the cart with live product data, silently dropping lines
// whose product disappeared or was deactivated.
func (s *service) Lines(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	items, err := s.repo.FindForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	var lines []Line
	var stale []uuid.UUID
	for _, item := range items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stale = append(stale, item.ID)
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			stale = append(stale, item.ID)
			continue
		}

		line := Line{Item: item, Product: product, UnitPriceCents: product.PriceCents}
		if item.VariantID != nil {
			for i := range product.Variants {
				if product.Variants[i].ID == *item.VariantID {
					line.Variant = &product.Variants[i]
					if product.Variants[i].PriceCents != nil {
						line.UnitPriceCents = *product.Variants[i].PriceCents
					}
					break
				}
			}
		}
		lines = append(lines, line)
	}

	if len(stale) > 0 {
		if err := s.repo.DeleteMany(ctx, stale); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "prune stale cart lines")
		}
	}
	return lines, nil
}

func (s *service) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	if err := s.repo.WithTx(tx).Clear(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}
