package stockledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:stockledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.StockLogEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, db
}

func TestRecordValidatesSnapshot(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{
		ProductID: uuid.New(), Change: -2, PreviousStock: 5, NewStock: 4,
		Reason: enums.StockReasonOrder,
	})
	if err == nil {
		t.Fatal("expected snapshot mismatch to be rejected")
	}

	entry, err := svc.Record(ctx, RecordInput{
		ProductID: uuid.New(), Change: -2, PreviousStock: 5, NewStock: 3,
		Reason: enums.StockReasonOrder,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry == nil || entry.Change != -2 {
		t.Fatalf("expected persisted entry, got %+v", entry)
	}
}

func TestRecordSkipsZeroChangeExceptAdminAdjustment(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	productID := uuid.New()

	entry, err := svc.Record(ctx, RecordInput{
		ProductID: productID, Change: 0, PreviousStock: 5, NewStock: 5,
		Reason: enums.StockReasonOrder,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry != nil {
		t.Fatal("zero-change non-admin entry must be dropped")
	}

	entry, err = svc.Record(ctx, RecordInput{
		ProductID: productID, Change: 0, PreviousStock: 5, NewStock: 5,
		Reason: enums.StockReasonAdminAdjustment,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry == nil {
		t.Fatal("zero-change admin adjustment must be kept")
	}

	var count int64
	if err := db.Model(&models.StockLogEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestHasRestock(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	ref := uuid.NewString()

	ok, err := svc.HasRestock(ctx, ref)
	if err != nil {
		t.Fatalf("has restock: %v", err)
	}
	if ok {
		t.Fatal("expected no restock yet")
	}

	// A non-return entry with the same reference does not count.
	if _, err := svc.Record(ctx, RecordInput{
		ProductID: uuid.New(), Change: -1, PreviousStock: 3, NewStock: 2,
		Reason: enums.StockReasonOrder, Reference: &ref,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok, _ := svc.HasRestock(ctx, ref); ok {
		t.Fatal("order entry must not count as restock")
	}

	if _, err := svc.Record(ctx, RecordInput{
		ProductID: uuid.New(), Change: 1, PreviousStock: 2, NewStock: 3,
		Reason: enums.StockReasonReturn, Reference: &ref,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	ok, err = svc.HasRestock(ctx, ref)
	if err != nil {
		t.Fatalf("has restock: %v", err)
	}
	if !ok {
		t.Fatal("expected restock to be found")
	}
}
