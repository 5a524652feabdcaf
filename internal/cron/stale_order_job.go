package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/aurelle/storefront-backend/internal/inventory"
	"github.com/aurelle/storefront-backend/internal/orders"
	"github.com/aurelle/storefront-backend/pkg/db/models"
	"github.com/aurelle/storefront-backend/pkg/enums"
	"github.com/aurelle/storefront-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StaleOrderJob cancels online orders that never got paid and hands
// their reserved stock back. Each run sweeps orders older than the TTL;
// already cancelled orders are excluded by the query, so a rerun after a
// partial failure only touches what is left.
type StaleOrderJob struct {
	repo       orders.Repository
	reconciler inventory.Reconciler
	tx         txRunner
	log        *logger.Logger
	ttl        time.Duration
	now        func() time.Time
}

// NewStaleOrderJob builds the sweep with the given unpaid TTL.
func NewStaleOrderJob(repo orders.Repository, reconciler inventory.Reconciler, tx txRunner, log *logger.Logger, ttl time.Duration) (*StaleOrderJob, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("inventory reconciler required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	return &StaleOrderJob{
		repo:       repo,
		reconciler: reconciler,
		tx:         tx,
		log:        log,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// Name implements Job.
func (j *StaleOrderJob) Name() string {
	return "stale_order_sweep"
}

// Run implements Job. Orders are processed independently; one bad order
// does not stop the sweep.
func (j *StaleOrderJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.ttl)
	stale, err := j.repo.ListStaleUnpaid(ctx, enums.PaymentMethodOnline, cutoff)
	if err != nil {
		return fmt.Errorf("list stale orders: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var errs error
	for i := range stale {
		if err := j.cancelOrder(ctx, &stale[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", stale[i].ID, err))
			logCtx := j.log.WithOrderID(ctx, stale[i].ID.String())
			j.log.Error(logCtx, "cancel stale order", err)
		}
	}
	failed := len(multierr.Errors(errs))
	j.log.Info(ctx, fmt.Sprintf("stale order sweep cancelled %d of %d orders", len(stale)-failed, len(stale)))
	return errs
}

func (j *StaleOrderJob) cancelOrder(ctx context.Context, order *models.Order) error {
	return j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)
		ref := order.ID.String()
		for i := range order.Items {
			item := &order.Items[i]
			if item.Status == enums.OrderItemStatusCancelled || item.Status == enums.OrderItemStatusReturned {
				continue
			}
			if _, err := j.reconciler.ApplyDelta(ctx, tx, inventory.Change{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Delta:     item.Quantity,
				Reason:    enums.StockReasonCronRestore,
				Reference: &ref,
			}); err != nil {
				return err
			}
			item.Status = enums.OrderItemStatusCancelled
			if err := repo.SaveItem(ctx, item); err != nil {
				return err
			}
		}

		now := j.now()
		reason := "payment not received"
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancellationReason = &reason
		return repo.Save(ctx, order)
	})
}
