// Package jobs runs the background work of the engine on asynq: the
// periodic payment reconciliation, on-demand bulk refunds and the sweep
// that returns lapsed holds to inventory.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeReconcilePayments  = "payment:reconcile"
	TypeBulkRefund         = "sale:bulk_refund"
	TypeReleaseExpiredHold = "ticket:release_expired_holds"
)

// Queue names.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// BulkRefundPayload names the sale window to roll back.
type BulkRefundPayload struct {
	SeatSaleID uint64 `json:"seat_sale_id"`
}

// NewReconcileTask returns a reconciliation task.  Reconciliation is
// periodic, so a failed run is not retried; the next tick picks up where
// it stopped.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeReconcilePayments, nil, asynq.Queue(QueueCritical), asynq.MaxRetry(0))
}

// NewBulkRefundTask returns the bulk refund task for a sale window.  At
// most one such task per window can be queued at a time.
func NewBulkRefundTask(seatSaleID uint64) (*asynq.Task, error) {
	b, err := json.Marshal(BulkRefundPayload{SeatSaleID: seatSaleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBulkRefund, b,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Unique(time.Hour),
	), nil
}

// NewReleaseHoldsTask returns the hold sweep task.
func NewReleaseHoldsTask() *asynq.Task {
	return asynq.NewTask(TypeReleaseExpiredHold, nil, asynq.Queue(QueueLow), asynq.MaxRetry(0))
}

// Enqueuer is the part of *asynq.Client the HTTP layer uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues jobs on behalf of admin endpoints.
type Dispatcher struct {
	client Enqueuer
}

// NewDispatcher returns a Dispatcher using client.
func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

// EnqueueBulkRefund queues the bulk refund of a sale window and returns
// the task ID.  asynq.ErrDuplicateTask is returned when one is already
// queued.
func (d *Dispatcher) EnqueueBulkRefund(ctx context.Context, seatSaleID uint64) (string, error) {
	task, err := NewBulkRefundTask(seatSaleID)
	if err != nil {
		return "", err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue bulk refund for seat sale %d: %w", seatSaleID, err)
	}
	return info.ID, nil
}

// EnqueueReconcile queues an immediate reconciliation run.
func (d *Dispatcher) EnqueueReconcile(ctx context.Context) (string, error) {
	info, err := d.client.EnqueueContext(ctx, NewReconcileTask())
	if err != nil {
		return "", fmt.Errorf("enqueue reconcile: %w", err)
	}
	return info.ID, nil
}
