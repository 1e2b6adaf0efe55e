package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/reconcile"
	"github.com/iliyamo/ticket-reconciler/internal/refund"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// PaymentReconciler runs one reconciliation pass.
type PaymentReconciler interface {
	Run(ctx context.Context) (reconcile.Summary, error)
}

// BulkRefunder rolls back a sale window.
type BulkRefunder interface {
	Run(ctx context.Context, seatSaleID uint64) (*refund.Report, error)
}

// HoldSweeper returns lapsed holds to inventory.
type HoldSweeper interface {
	ReleaseExpiredHolds(ctx context.Context) (int, error)
}

// Handlers processes the engine's tasks.
type Handlers struct {
	Reconciler PaymentReconciler
	Refunds    BulkRefunder
	Holds      HoldSweeper
}

// Register mounts the handlers on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReconcilePayments, h.HandleReconcile)
	mux.HandleFunc(TypeBulkRefund, h.HandleBulkRefund)
	mux.HandleFunc(TypeReleaseExpiredHold, h.HandleReleaseHolds)
}

// withJobLogger attaches a logger carrying the task type and a run ID.
func withJobLogger(ctx context.Context, t *asynq.Task) (context.Context, *logrus.Entry) {
	entry := logrus.WithFields(logrus.Fields{"task": t.Type(), "run_id": uuid.NewString()})
	if id, ok := asynq.GetTaskID(ctx); ok {
		entry = entry.WithField("task_id", id)
	}
	return logging.ToContext(ctx, entry), entry
}

func (h *Handlers) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	ctx, log := withJobLogger(ctx, t)
	sum, err := h.Reconciler.Run(ctx)
	if err != nil {
		log.WithError(err).WithField("errors", sum.Errors).Error("reconciliation finished with errors")
		return err
	}
	return nil
}

func (h *Handlers) HandleBulkRefund(ctx context.Context, t *asynq.Task) error {
	var p BulkRefundPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	ctx, log := withJobLogger(ctx, t)
	log = log.WithField("seat_sale_id", p.SeatSaleID)

	report, err := h.Refunds.Run(ctx, p.SeatSaleID)
	switch {
	case errors.Is(err, refund.ErrSaleNotDiscontinued), errors.Is(err, store.ErrNotFound):
		log.WithError(err).Warn("bulk refund rejected")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		return err
	}
	if len(report.Failed) > 0 {
		log.WithField("failed_orders", report.Failed).Warn("bulk refund left orders unrefunded")
	}
	return nil
}

func (h *Handlers) HandleReleaseHolds(ctx context.Context, t *asynq.Task) error {
	ctx, log := withJobLogger(ctx, t)
	n, err := h.Holds.ReleaseExpiredHolds(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.WithField("released", n).Info("released lapsed ticket holds")
	}
	return nil
}
