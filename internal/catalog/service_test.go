package catalog

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/inventory"
	"github.com/aurelle/storefront-backend/internal/stockledger"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/logger"
	"github.com/aurelle/storefront-backend/pkg/pagination"
)

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func TestCreateProductWithVariants(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{
		SKU:        "RING-001",
		Name:       "Solitaire Ring",
		Category:   "rings",
		PriceCents: 49900,
		Variants: []VariantInput{
			{Name: "Size 6", SKU: "RING-001-6", Stock: 3},
			{Name: "Size 7", SKU: "RING-001-7", Stock: 5},
		},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Stock != 8 {
		t.Fatalf("aggregate stock must equal variant sum, got %d", product.Stock)
	}
	if len(product.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(product.Variants))
	}
}

func TestGetBySKU(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{
		SKU: "BRC-100", Name: "Gold Bracelet", Category: "bracelets", PriceCents: 129900, Stock: 2,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	found, err := svc.GetBySKU(ctx, " BRC-100 ")
	if err != nil {
		t.Fatalf("get by sku: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected product %s, got %s", created.ID, found.ID)
	}

	_, err = svc.GetBySKU(ctx, "BRC-404")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCreateProductValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateProductInput{Name: "No SKU"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdjustStockZeroDeltaLogged(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{
		SKU: "NCK-001", Name: "Pearl Necklace", Category: "necklaces", PriceCents: 89900, Stock: 4,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	admin := uuid.New()
	result, err := svc.AdjustStock(ctx, AdjustStockInput{
		ProductID:   product.ID,
		Delta:       0,
		ActorUserID: admin,
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if result.ProductNew != 4 {
		t.Fatalf("unexpected stock %d", result.ProductNew)
	}

	var entries []models.StockLogEntry
	if err := db.Find(&entries).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one admin adjustment entry, got %d", len(entries))
	}
	if entries[0].Reason != enums.StockReasonAdminAdjustment || entries[0].Change != 0 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestAdjustStockNeverNegative(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{
		SKU: "ERG-001", Name: "Stud Earrings", Category: "earrings", PriceCents: 19900, Stock: 2,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = svc.AdjustStock(ctx, AdjustStockInput{
		ProductID:   product.ID,
		Delta:       -5,
		ActorUserID: uuid.New(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	fresh, err := svc.Get(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if fresh.Stock != 2 {
		t.Fatalf("stock must be untouched, got %d", fresh.Stock)
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	for i, category := range []string{"rings", "rings", "necklaces"} {
		_, err := svc.Create(ctx, CreateProductInput{
			SKU:        uuid.NewString()[:12],
			Name:       "Piece",
			Category:   category,
			PriceCents: 1000 * (i + 1),
			Stock:      1,
		})
		if err != nil {
			t.Fatalf("create product: %v", err)
		}
	}

	rings := "rings"
	products, _, err := svc.List(ctx, ListFilters{Category: &rings}, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 rings, got %d", len(products))
	}
}

func TestDeactivateMissingProduct(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	err := svc.Deactivate(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.ProductVariant{}, &models.StockLogEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ledgerSvc, err := stockledger.NewService(stockledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	log := logger.New(logger.Options{ServiceName: "catalog-test", Output: io.Discard})
	reconciler, err := inventory.NewReconciler(ledgerSvc, log)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	svc, err := NewService(NewRepository(db), dbTxRunner{db: db}, reconciler)
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	return svc, db
}
