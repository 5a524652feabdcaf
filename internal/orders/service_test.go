package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/inventory"
	"github.com/aurelle/storefront-backend/internal/stockledger"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/logger"
)

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubNotifier struct {
	mu    sync.Mutex
	sent  []string
	users []uuid.UUID
}

func (n *stubNotifier) Notify(_ context.Context, userID uuid.UUID, _ enums.NotificationKind, _, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, message)
	n.users = append(n.users, userID)
}

type stubUserLoader struct {
	db *gorm.DB
}

func (l stubUserLoader) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := l.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "load user")
	}
	return &user, nil
}

type testEnv struct {
	svc      Service
	repo     Repository
	db       *gorm.DB
	notifier *stubNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Product{}, &models.ProductVariant{}, &models.StockLogEntry{},
		&models.Order{}, &models.OrderItem{}, &models.User{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ledgerSvc, err := stockledger.NewService(stockledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	log := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	reconciler, err := inventory.NewReconciler(ledgerSvc, log)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}

	notifier := &stubNotifier{}
	repo := NewRepository(db)
	svc, err := NewService(repo, dbTxRunner{db: db}, reconciler, stubUserLoader{db: db}, notifier)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	return &testEnv{svc: svc, repo: repo, db: db, notifier: notifier}
}

func (e *testEnv) seedUser(t *testing.T, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "x", FirstName: "Test", LastName: "Shopper", IsActive: true}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) seedProduct(t *testing.T, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Gold Band",
		Category:   "rings",
		PriceCents: 19900,
		Stock:      stock,
		IsActive:   true,
	}
	if err := e.db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func (e *testEnv) seedOrder(t *testing.T, userID uuid.UUID, status enums.OrderStatus, method string, items ...models.OrderItem) *models.Order {
	t.Helper()
	number, err := e.repo.NextOrderNumber(context.Background())
	if err != nil {
		t.Fatalf("order number: %v", err)
	}
	total := 0
	for _, item := range items {
		total += item.UnitPriceCents * item.Quantity
	}
	order := &models.Order{
		OrderNumber:   number,
		UserID:        userID,
		Status:        status,
		PaymentMethod: method,
		SubtotalCents: total,
		TotalCents:    total,
		Items:         items,
	}
	if level, ok := status.Level(); ok && level >= 4 {
		now := time.Now().UTC()
		order.IsDispatched = true
		order.DispatchedAt = &now
	}
	if err := e.db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	loaded, err := e.repo.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return loaded
}

func TestSetStatusAdvancesOneStep(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "step@example.com")
	product := env.seedProduct(t, 5)
	order := env.seedOrder(t, user.ID, enums.OrderStatusPending, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	updated, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Processing"})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != enums.OrderStatusProcessing {
		t.Fatalf("expected Processing, got %s", updated.Status)
	}
	if len(env.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(env.notifier.sent))
	}

	_, err = env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Shipped"})
	if err == nil {
		t.Fatal("expected skip to be rejected")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSetStatusSameStatusTolerated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "again@example.com")
	product := env.seedProduct(t, 5)
	order := env.seedOrder(t, user.ID, enums.OrderStatusProcessing, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	updated, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Processing"})
	if err != nil {
		t.Fatalf("re-apply status: %v", err)
	}
	if updated.Status != enums.OrderStatusProcessing {
		t.Fatalf("expected Processing, got %s", updated.Status)
	}
}

func TestSetStatusSteppingBackResetsDispatchState(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "correct@example.com")
	product := env.seedProduct(t, 5)
	order := env.seedOrder(t, user.ID, enums.OrderStatusShipped, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	updated, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Confirmed"})
	if err != nil {
		t.Fatalf("step back: %v", err)
	}
	if updated.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected Confirmed, got %s", updated.Status)
	}
	if updated.IsDispatched || updated.DispatchedAt != nil {
		t.Fatal("expected dispatch state to be cleared")
	}
	if updated.IsDelivered || updated.DeliveredAt != nil {
		t.Fatal("expected delivery state to be cleared")
	}
}

func TestSetStatusShippedRecordsDispatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "ship@example.com")
	product := env.seedProduct(t, 5)
	order := env.seedOrder(t, user.ID, enums.OrderStatusDispatched, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	tracking := "TRK-12345"
	carrier := "BlueDart"
	updated, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{
		Status: "Shipped", TrackingNumber: &tracking, Carrier: &carrier,
	})
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if !updated.IsDispatched || updated.DispatchedAt == nil {
		t.Fatal("expected dispatch state to be recorded")
	}
	if updated.TrackingNumber == nil || *updated.TrackingNumber != tracking {
		t.Fatalf("expected tracking number %q, got %v", tracking, updated.TrackingNumber)
	}
	if updated.Carrier == nil || *updated.Carrier != carrier {
		t.Fatalf("expected carrier %q, got %v", carrier, updated.Carrier)
	}
}

func TestSetStatusDeliveredRequiresDispatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "undispatched@example.com")
	product := env.seedProduct(t, 5)
	order := env.seedOrder(t, user.ID, enums.OrderStatusShipped, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})
	if err := env.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]any{"is_dispatched": false, "dispatched_at": nil}).Error; err != nil {
		t.Fatalf("clear dispatch state: %v", err)
	}

	_, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Delivered"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSetStatusDeliveredSettlesCOD(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "cod@example.com")
	product := env.seedProduct(t, 5)
	order := env.seedOrder(t, user.ID, enums.OrderStatusShipped, enums.PaymentMethodCOD, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 2, UnitPriceCents: 19900,
	})

	updated, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Delivered"})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if !updated.IsDelivered || updated.DeliveredAt == nil {
		t.Fatal("expected delivery flags to be set")
	}
	if !updated.IsPaid || updated.PaidAt == nil {
		t.Fatal("expected cash-on-delivery order to be marked paid")
	}
	for _, item := range updated.Items {
		if item.Status != enums.OrderItemStatusDelivered {
			t.Fatalf("expected item Delivered, got %s", item.Status)
		}
	}
}

func TestSetStatusCancelRestocksItems(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "cancel@example.com")
	product := env.seedProduct(t, 3)
	order := env.seedOrder(t, user.ID, enums.OrderStatusConfirmed, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 2, UnitPriceCents: 19900,
	})

	updated, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Cancelled"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled || updated.CancelledAt == nil {
		t.Fatal("expected cancelled status with timestamp")
	}

	var reloaded models.Product
	if err := env.db.First(&reloaded, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", reloaded.Stock)
	}

	var entries []models.StockLogEntry
	if err := env.db.Where("reference = ?", order.ID.String()).Find(&entries).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != enums.StockReasonOrderCancelled {
		t.Fatalf("expected one Order Cancelled ledger entry, got %+v", entries)
	}
}

func TestSetStatusCancelRejectedAfterShipping(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "late@example.com")
	product := env.seedProduct(t, 3)
	order := env.seedOrder(t, user.ID, enums.OrderStatusShipped, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	_, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Cancelled"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSetStatusReturnedRequiresDelivered(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "return@example.com")
	product := env.seedProduct(t, 3)
	order := env.seedOrder(t, user.ID, enums.OrderStatusShipped, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	if _, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Returned"}); err == nil {
		t.Fatal("expected return from Shipped to be rejected")
	}

	if err := env.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", enums.OrderStatusDelivered).Error; err != nil {
		t.Fatalf("force delivered: %v", err)
	}
	updated, err := env.svc.SetStatus(ctx, order.ID, SetStatusInput{Status: "Returned"})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if updated.Status != enums.OrderStatusReturned {
		t.Fatalf("expected Returned, got %s", updated.Status)
	}
}

func TestMarkPaidAndRefund(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "pay@example.com")
	product := env.seedProduct(t, 3)
	order := env.seedOrder(t, user.ID, enums.OrderStatusPending, enums.PaymentMethodCOD, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	paid, err := env.svc.MarkPaid(ctx, order.ID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !paid.IsPaid || paid.PaidAt == nil {
		t.Fatal("expected paid flags")
	}
	if _, err := env.svc.MarkPaid(ctx, order.ID); err == nil {
		t.Fatal("expected second mark-paid to conflict")
	}

	refunded, err := env.svc.Refund(ctx, order.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.IsPaid || refunded.PaidAt != nil {
		t.Fatal("expected payment cleared after refund")
	}
	if refunded.Status != enums.OrderStatusReturned {
		t.Fatalf("expected Returned after refund, got %s", refunded.Status)
	}
	if _, err := env.svc.Refund(ctx, order.ID); err == nil {
		t.Fatal("expected refund of unpaid order to conflict")
	}
}

func TestCancelItemAdjustsUnpaidTotal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "line@example.com")
	product := env.seedProduct(t, 10)
	order := env.seedOrder(t, user.ID, enums.OrderStatusPending, enums.PaymentMethodCOD,
		models.OrderItem{ProductID: product.ID, Name: product.Name, Quantity: 2, UnitPriceCents: 10000},
		models.OrderItem{ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 5000},
	)

	var target models.OrderItem
	for _, item := range order.Items {
		if item.UnitPriceCents == 5000 {
			target = item
		}
	}

	updated, err := env.svc.CancelItem(ctx, order.ID, target.ID)
	if err != nil {
		t.Fatalf("cancel item: %v", err)
	}
	if updated.TotalCents != 20000 {
		t.Fatalf("expected total 20000 after line cancel, got %d", updated.TotalCents)
	}

	var stock int
	if err := env.db.Model(&models.Product{}).Where("id = ?", product.ID).
		Select("stock").Scan(&stock).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if stock != 10 {
		t.Fatalf("line cancel must not restock, got %d", stock)
	}

	if _, err := env.svc.CancelItem(ctx, order.ID, target.ID); err == nil {
		t.Fatal("expected cancelling twice to conflict")
	}
}

func TestTrackMatchesEmail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "track@example.com")
	product := env.seedProduct(t, 3)
	order := env.seedOrder(t, user.ID, enums.OrderStatusShipped, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 19900,
	})

	result, err := env.svc.Track(ctx, TrackInput{OrderNumber: order.OrderNumber, Email: "Track@Example.com"})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result.Status != enums.OrderStatusShipped {
		t.Fatalf("expected Shipped, got %s", result.Status)
	}

	_, err = env.svc.Track(ctx, TrackInput{OrderNumber: order.OrderNumber, Email: "other@example.com"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for mismatched email, got %v", err)
	}
}

func TestListAllFiltersByStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "list@example.com")
	product := env.seedProduct(t, 10)
	env.seedOrder(t, user.ID, enums.OrderStatusPending, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 1000,
	})
	time.Sleep(5 * time.Millisecond)
	env.seedOrder(t, user.ID, enums.OrderStatusShipped, enums.PaymentMethodOnline, models.OrderItem{
		ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPriceCents: 2000,
	})

	status := enums.OrderStatusShipped
	orders, _, err := env.svc.ListAll(ctx, &status, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != enums.OrderStatusShipped {
		t.Fatalf("expected one shipped order, got %d", len(orders))
	}

	mine, _, err := env.svc.ListMine(ctx, user.ID, ListParams{})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected two orders for user, got %d", len(mine))
	}
}
