package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"natrip-payments/internal/domain"
	"natrip-payments/internal/repo"
	"natrip-payments/internal/service"
)

// Refresher is the part of the payment service the worker drives.
type Refresher interface {
	RefreshStatus(ctx context.Context, order *domain.PaymentOrder) (*service.TransitionResult, error)
}

// ReconciliationWorker polls providers for pending orders whose webhook
// never arrived.
type ReconciliationWorker struct {
	orderRepo  repo.OrderRepo
	refresher  Refresher
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	log        logrus.FieldLogger
}

type Summary struct {
	Checked int
	Paid    int
	Failed  int
	Skipped int
	Errors  int
}

func NewReconciliationWorker(
	orderRepo repo.OrderRepo,
	refresher Refresher,
	interval time.Duration,
	staleAfter time.Duration,
	batch int,
	log logrus.FieldLogger,
) *ReconciliationWorker {
	if batch <= 0 {
		batch = 50
	}
	return &ReconciliationWorker{
		orderRepo:  orderRepo,
		refresher:  refresher,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
		log:        log,
	}
}

// Run ticks until ctx is done. A non-positive interval disables the worker.
func (rw *ReconciliationWorker) Run(ctx context.Context) {
	if rw.interval <= 0 {
		rw.log.Info("reconciliation worker disabled")
		return
	}

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.log.WithField("interval", rw.interval).Info("reconciliation worker started")

	for {
		select {
		case <-ctx.Done():
			rw.log.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := rw.RunOnce(ctx); err != nil {
				rw.log.WithError(err).Error("reconciliation pass failed")
			}
		}
	}
}

// RunOnce reconciles one batch of stale pending orders. Per-order failures
// are logged and left for the next pass.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary

	stuckOrders, err := rw.orderRepo.FindStalePending(ctx, rw.staleAfter, rw.batch)
	if err != nil {
		return sum, err
	}
	if len(stuckOrders) == 0 {
		return sum, nil
	}

	rw.log.WithField("count", len(stuckOrders)).Info("reconciling stale pending orders")

	for i := range stuckOrders {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		order := &stuckOrders[i]
		sum.Checked++

		res, err := rw.refresher.RefreshStatus(ctx, order)
		switch {
		case errors.Is(err, domain.ErrLookupNotSupported), errors.Is(err, domain.ErrProviderNotConfigured):
			sum.Skipped++
			continue
		case err != nil:
			sum.Errors++
			rw.log.WithError(err).WithField("order_token", order.OrderToken).Warn("reconcile order failed")
			continue
		}

		switch res.Status {
		case domain.StatusPaid:
			sum.Paid++
		case domain.StatusFailed:
			sum.Failed++
		}
	}

	rw.log.WithFields(logrus.Fields{
		"checked": sum.Checked,
		"paid":    sum.Paid,
		"failed":  sum.Failed,
		"skipped": sum.Skipped,
		"errors":  sum.Errors,
	}).Info("reconciliation pass done")
	return sum, nil
}
