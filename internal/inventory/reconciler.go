package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/stockledger"
	"github.com/aurelle/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelle/storefront-backend/pkg/errors"
	"github.com/aurelle/storefront-backend/pkg/logger"
)

// Change describes a single stock movement to apply. Negative deltas
// deduct, positive deltas restock.
type Change struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	Delta       int
	Reason      enums.StockReason
	Reference   *string
	ActorUserID *uuid.UUID
	Note        *string
}

// Result reports the counters after a change was applied. Variant fields
// are nil when the product tracks a single counter.
type Result struct {
	ProductPrevious int
	ProductNew      int
	VariantPrevious *int
	VariantNew      *int
	VariantFellBack bool
}

// Reconciler applies stock deltas atomically and posts the matching
// ledger entries. Decrements are guarded so the counter never goes
// negative regardless of interleaving. After a variant mutation the
// aggregate is recomputed from the variant sum, healing any drift.
type Reconciler interface {
	ApplyDelta(ctx context.Context, tx *gorm.DB, change Change) (*Result, error)
}

type reconciler struct {
	ledger stockledger.Service
	log    *logger.Logger
}

// NewReconciler builds a Reconciler posting to the given ledger.
func NewReconciler(ledger stockledger.Service, log *logger.Logger) (Reconciler, error) {
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger service required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &reconciler{ledger: ledger, log: log}, nil
}

func (r *reconciler) ApplyDelta(ctx context.Context, tx *gorm.DB, change Change) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock change")
	}
	if change.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if !change.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid stock reason %q", change.Reason))
	}

	if change.VariantID != nil && *change.VariantID != uuid.Nil {
		result, err := r.applyVariant(ctx, tx, change)
		if !errors.Is(err, errRowMissing) {
			return result, err
		}
		// Variant row is gone, fall back to the aggregate counter so
		// legacy carts keep working.
		r.log.Warn(r.log.WithField(ctx, "variant_id", change.VariantID.String()),
			"variant missing, applying stock change to aggregate")
		result, err = r.applyAggregate(ctx, tx, change)
		if result != nil {
			result.VariantFellBack = true
		}
		return result, err
	}

	return r.applyAggregate(ctx, tx, change)
}

func (r *reconciler) applyVariant(ctx context.Context, tx *gorm.DB, change Change) (*Result, error) {
	variantNew, err := applyGuarded(ctx, tx, "product_variants", *change.VariantID, change.Delta)
	if err != nil {
		return nil, err
	}
	variantPrev := variantNew - change.Delta

	productPrev, err := readStock(ctx, tx, "products", change.ProductID)
	if err != nil {
		return nil, err
	}

	// Re-derive the aggregate so a drifted counter converges back to the
	// variant sum.
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = (SELECT COALESCE(SUM(stock), 0) FROM product_variants WHERE product_id = ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, change.ProductID, change.ProductID)
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "sync aggregate stock")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	productNew, err := readStock(ctx, tx, "products", change.ProductID)
	if err != nil {
		return nil, err
	}

	ledger := r.ledger.WithTx(tx)
	if _, err := ledger.Record(ctx, stockledger.RecordInput{
		ProductID:     change.ProductID,
		VariantID:     change.VariantID,
		Change:        change.Delta,
		PreviousStock: variantPrev,
		NewStock:      variantNew,
		Reason:        change.Reason,
		Reference:     change.Reference,
		ActorUserID:   change.ActorUserID,
		Note:          change.Note,
	}); err != nil {
		return nil, err
	}
	if _, err := ledger.Record(ctx, stockledger.RecordInput{
		ProductID:     change.ProductID,
		Change:        productNew - productPrev,
		PreviousStock: productPrev,
		NewStock:      productNew,
		Reason:        change.Reason,
		Reference:     change.Reference,
		ActorUserID:   change.ActorUserID,
		Note:          change.Note,
	}); err != nil {
		return nil, err
	}

	return &Result{
		ProductPrevious: productPrev,
		ProductNew:      productNew,
		VariantPrevious: &variantPrev,
		VariantNew:      &variantNew,
	}, nil
}

func (r *reconciler) applyAggregate(ctx context.Context, tx *gorm.DB, change Change) (*Result, error) {
	productNew, err := applyGuarded(ctx, tx, "products", change.ProductID, change.Delta)
	if errors.Is(err, errRowMissing) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, err
	}
	productPrev := productNew - change.Delta

	if _, err := r.ledger.WithTx(tx).Record(ctx, stockledger.RecordInput{
		ProductID:     change.ProductID,
		Change:        change.Delta,
		PreviousStock: productPrev,
		NewStock:      productNew,
		Reason:        change.Reason,
		Reference:     change.Reference,
		ActorUserID:   change.ActorUserID,
		Note:          change.Note,
	}); err != nil {
		return nil, err
	}

	return &Result{ProductPrevious: productPrev, ProductNew: productNew}, nil
}

var errRowMissing = errors.New("inventory: row missing")

// applyGuarded moves a stock counter by delta, refusing any update that
// would drive it below zero.
func applyGuarded(ctx context.Context, tx *gorm.DB, table string, id uuid.UUID, delta int) (int, error) {
	res := tx.WithContext(ctx).Exec(fmt.Sprintf(`
		UPDATE %s
		SET stock = stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock + ? >= 0
	`, table), delta, id, delta)
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "apply stock change")
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Table(table).Where("id = ?", id).Count(&count).Error; err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "probe stock row")
		}
		if count == 0 {
			return 0, errRowMissing
		}
		return 0, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
	}

	return readStock(ctx, tx, table, id)
}

func readStock(ctx context.Context, tx *gorm.DB, table string, id uuid.UUID) (int, error) {
	var stock int
	if err := tx.WithContext(ctx).Table(table).Select("stock").Where("id = ?", id).Scan(&stock).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock")
	}
	return stock, nil
}
