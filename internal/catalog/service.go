package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/inventory"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/pagination"
	"github.com/aurelle/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes catalog management and browsing.
type Service interface {
	Create(ctx context.Context, input CreateProductInput) (*models.Product, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Product, string, error)
	AdjustStock(ctx context.Context, input AdjustStockInput) (*inventory.Result, error)
}

type service struct {
	repo       *Repository
	tx         txRunner
	reconciler inventory.Reconciler
}

// NewService builds a catalog service with the required dependencies.
func NewService(repo *Repository, tx txRunner, reconciler inventory.Reconciler) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("inventory reconciler required")
	}
	return &service{repo: repo, tx: tx, reconciler: reconciler}, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	sku := strings.TrimSpace(input.SKU)
	name := strings.TrimSpace(input.Name)
	if sku == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku and name are required")
	}
	if input.PriceCents < 0 || input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price and stock must be non-negative")
	}

	product := &models.Product{
		SKU:                 sku,
		Name:                name,
		Description:         input.Description,
		Category:            strings.TrimSpace(input.Category),
		Material:            input.Material,
		Images:              types.StringArray(input.Images),
		PriceCents:          input.PriceCents,
		CompareAtPriceCents: input.CompareAtPriceCents,
		IsFeatured:          input.IsFeatured,
		IsActive:            true,
	}

	if len(input.Variants) > 0 {
		total := 0
		for _, v := range input.Variants {
			if strings.TrimSpace(v.Name) == "" || strings.TrimSpace(v.SKU) == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant name and sku are required")
			}
			if v.Stock < 0 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant stock must be non-negative")
			}
			total += v.Stock
			product.Variants = append(product.Variants, models.ProductVariant{
				Name:       strings.TrimSpace(v.Name),
				SKU:        strings.TrimSpace(v.SKU),
				PriceCents: v.PriceCents,
				Stock:      v.Stock,
			})
		}
		// Aggregate stock always equals the variant sum at creation.
		product.Stock = total
	} else {
		product.Stock = input.Stock
	}

	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return created, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	product, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	applyUpdate(product, input)

	updated, err := s.repo.Update(ctx, product)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return updated, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	err := s.repo.Deactivate(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate product")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product sku is required")
	}
	product, err := s.repo.FindBySKU(ctx, sku)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Product, string, error) {
	products, next, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, next, nil
}

// AdjustStock applies a manual stock correction inside a transaction and
// leaves an Admin Adjustment entry even for zero-delta recounts.
func (s *service) AdjustStock(ctx context.Context, input AdjustStockInput) (*inventory.Result, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}

	actor := input.ActorUserID
	var result *inventory.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var terr error
		result, terr = s.reconciler.ApplyDelta(ctx, tx, inventory.Change{
			ProductID:   input.ProductID,
			VariantID:   input.VariantID,
			Delta:       input.Delta,
			Reason:      enums.StockReasonAdminAdjustment,
			ActorUserID: &actor,
			Note:        input.Note,
		})
		return terr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyUpdate(product *models.Product, input UpdateProductInput) {
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.Category != nil {
		product.Category = strings.TrimSpace(*input.Category)
	}
	if input.Material != nil {
		product.Material = input.Material
	}
	if input.Images != nil {
		product.Images = types.StringArray(*input.Images)
	}
	if input.PriceCents != nil {
		product.PriceCents = *input.PriceCents
	}
	if input.CompareAtPriceCents != nil {
		product.CompareAtPriceCents = input.CompareAtPriceCents
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if input.IsFeatured != nil {
		product.IsFeatured = *input.IsFeatured
	}
}
