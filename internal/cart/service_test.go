package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/catalog"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
)

func TestAddItemMergesLines(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	product := seedProduct(t, db, true)

	if _, err := svc.AddItem(ctx, AddItemInput{UserID: user, ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddItemInput{UserID: user, ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	lines, err := svc.Lines(ctx, user)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected merged line, got %d", len(lines))
	}
	if lines[0].Item.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", lines[0].Item.Quantity)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	product := seedProduct(t, db, false)

	_, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: uuid.New(), ProductID: product.ID, Quantity: 1,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestLinesPrunesStaleItems(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	live := seedProduct(t, db, true)
	doomed := seedProduct(t, db, true)

	if _, err := svc.AddItem(ctx, AddItemInput{UserID: user, ProductID: live.ID, Quantity: 1}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddItemInput{UserID: user, ProductID: doomed.ID, Quantity: 1}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	if err := db.Model(&models.Product{}).Where("id = ?", doomed.ID).
		Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate product: %v", err)
	}

	lines, err := svc.Lines(ctx, user)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Product.ID != live.ID {
		t.Fatalf("expected only the live product, got %d lines", len(lines))
	}

	var remaining int64
	if err := db.Model(&models.CartItem{}).Where("user_id = ?", user).Count(&remaining).Error; err != nil {
		t.Fatalf("count cart: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected stale line pruned from storage, got %d rows", remaining)
	}
}

func TestVariantPriceOverride(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	product := seedProduct(t, db, true)

	override := 30000
	variant := models.ProductVariant{
		ProductID:  product.ID,
		Name:       "Size 8",
		SKU:        "SKU-" + uuid.NewString()[:8],
		PriceCents: &override,
		Stock:      2,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	if _, err := svc.AddItem(ctx, AddItemInput{
		UserID: user, ProductID: product.ID, VariantID: &variant.ID, Quantity: 1,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	lines, err := svc.Lines(ctx, user)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if lines[0].UnitPriceCents != override {
		t.Fatalf("expected variant price %d, got %d", override, lines[0].UnitPriceCents)
	}
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.ProductVariant{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db), catalog.NewRepository(db))
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	return svc, db
}

func seedProduct(t *testing.T, db *gorm.DB, active bool) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Tennis Bracelet",
		Category:   "bracelets",
		PriceCents: 125000,
		Stock:      10,
		IsActive:   active,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}
