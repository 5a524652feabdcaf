package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/pkg/config"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{
		Email:     "Shopper@Example.com",
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Byron",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.User.Email != "shopper@example.com" {
		t.Fatalf("expected normalized email, got %q", result.User.Email)
	}
	if result.Token == "" {
		t.Fatal("expected an access token")
	}

	authed, err := svc.Authenticate(ctx, "shopper@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.User.LastLoginAt == nil {
		t.Fatal("expected last login timestamp")
	}

	_, err = svc.Authenticate(ctx, "shopper@example.com", "wrong")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	input := RegisterInput{
		Email:     "dup@example.com",
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Byron",
	}
	if _, err := svc.Register(ctx, input); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Register(ctx, input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDebitPointsGuarded(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{
		Email:     "points@example.com",
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Byron",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	userID := result.User.ID

	if err := db.Model(&models.User{}).Where("id = ?", userID).
		Update("loyalty_points", 100).Error; err != nil {
		t.Fatalf("seed points: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return svc.DebitPoints(ctx, tx, userID, 60)
	}); err != nil {
		t.Fatalf("debit: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.DebitPoints(ctx, tx, userID, 60)
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on overdraft, got %v", err)
	}

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.LoyaltyPoints != 40 {
		t.Fatalf("expected 40 points remaining, got %d", user.LoyaltyPoints)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return svc.CreditPoints(ctx, tx, userID, 10)
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.LoyaltyPoints != 50 {
		t.Fatalf("expected 50 points after credit, got %d", user.LoyaltyPoints)
	}
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:users_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc, err := NewService(NewRepository(db), config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "aurelle-test",
		ExpirationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	return svc, db
}
