package inventory

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/stockledger"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/logger"
)

func TestApplyDeltaVariant(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	rec := newTestReconciler(t, db)
	ctx := context.Background()

	product := seedProduct(t, db, 10)
	variant := seedVariant(t, db, product.ID, 4)
	seedVariant(t, db, product.ID, 6)

	var result *Result
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		result, terr = rec.ApplyDelta(ctx, tx, Change{
			ProductID: product.ID,
			VariantID: &variant.ID,
			Delta:     -3,
			Reason:    enums.StockReasonOrder,
		})
		return terr
	})
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}

	if result.ProductPrevious != 10 || result.ProductNew != 7 {
		t.Fatalf("unexpected product counters: %+v", result)
	}
	if result.VariantPrevious == nil || *result.VariantPrevious != 4 || *result.VariantNew != 1 {
		t.Fatalf("unexpected variant counters: %+v", result)
	}

	var entries []models.StockLogEntry
	if err := db.Order("created_at ASC").Find(&entries).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected variant and aggregate ledger entries, got %d", len(entries))
	}
	if entries[0].VariantID == nil || *entries[0].VariantID != variant.ID {
		t.Fatalf("expected first entry scoped to variant: %+v", entries[0])
	}
	if entries[1].VariantID != nil {
		t.Fatalf("expected second entry scoped to product: %+v", entries[1])
	}
}

func TestApplyDeltaInsufficientStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	rec := newTestReconciler(t, db)
	ctx := context.Background()

	product := seedProduct(t, db, 2)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := rec.ApplyDelta(ctx, tx, Change{
			ProductID: product.ID,
			Delta:     -3,
			Reason:    enums.StockReasonOrder,
		})
		return terr
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}

	var fresh models.Product
	if err := db.First(&fresh, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if fresh.Stock != 2 {
		t.Fatalf("stock must be untouched, got %d", fresh.Stock)
	}

	var count int64
	if err := db.Model(&models.StockLogEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no ledger entries, got %d", count)
	}
}

func TestApplyDeltaVariantFallback(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	rec := newTestReconciler(t, db)
	ctx := context.Background()

	product := seedProduct(t, db, 5)
	missing := uuid.New()

	var result *Result
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		result, terr = rec.ApplyDelta(ctx, tx, Change{
			ProductID: product.ID,
			VariantID: &missing,
			Delta:     -2,
			Reason:    enums.StockReasonOrder,
		})
		return terr
	})
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if !result.VariantFellBack {
		t.Fatal("expected fallback to aggregate counter")
	}
	if result.ProductNew != 3 {
		t.Fatalf("unexpected aggregate stock %d", result.ProductNew)
	}
}

func TestApplyDeltaHealsDriftedAggregate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	rec := newTestReconciler(t, db)
	ctx := context.Background()

	// Aggregate drifted away from the variant sum of 9.
	product := seedProduct(t, db, 42)
	variant := seedVariant(t, db, product.ID, 4)
	seedVariant(t, db, product.ID, 5)

	var result *Result
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		result, terr = rec.ApplyDelta(ctx, tx, Change{
			ProductID: product.ID,
			VariantID: &variant.ID,
			Delta:     -1,
			Reason:    enums.StockReasonOrder,
		})
		return terr
	})
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if result.ProductNew != 8 {
		t.Fatalf("expected aggregate re-derived to 8, got %d", result.ProductNew)
	}
}

func TestApplyDeltaUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	rec := newTestReconciler(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := rec.ApplyDelta(context.Background(), tx, Change{
			ProductID: uuid.New(),
			Delta:     5,
			Reason:    enums.StockReasonRestock,
		})
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.ProductVariant{}, &models.StockLogEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestReconciler(t *testing.T, db *gorm.DB) Reconciler {
	t.Helper()
	ledgerSvc, err := stockledger.NewService(stockledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	log := logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
	rec, err := NewReconciler(ledgerSvc, log)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	return rec
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Gold Band",
		Category:   "rings",
		PriceCents: 24900,
		Stock:      stock,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func seedVariant(t *testing.T, db *gorm.DB, productID uuid.UUID, stock int) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{
		ID:        uuid.New(),
		ProductID: productID,
		Name:      "Size 7",
		SKU:       "SKU-" + uuid.NewString()[:8],
		Stock:     stock,
	}
	if err := db.Create(variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}
