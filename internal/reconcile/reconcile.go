// Package reconcile drives in-flight payments to a terminal state.  A run
// looks at every requesting_payment payment older than the grace window,
// asks the gateway what happened to its charge and either settles the
// order's tickets or marks the payment failed.
//
// Runs may overlap.  Safety comes from the forward-only progress updates in
// the store and from the gateway answering repeated captures and refunds
// with "already" codes, not from a lock.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-reconciler/internal/gateway"
	"github.com/iliyamo/ticket-reconciler/internal/ledger"
	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// DefaultGraceWindow is how old a pending payment must be before a run
// touches it.
const DefaultGraceWindow = 45 * time.Minute

// errSettled aborts a unit of work whose payment was advanced by someone
// else since it was listed.
var errSettled = errors.New("payment already left requesting_payment")

// Notifier sends the purchase confirmation of a settled order.  Failures
// are logged and never undo the settlement.
type Notifier interface {
	SendPurchaseConfirmation(ctx context.Context, order model.Order, reserves []model.TicketReserve) error
}

// Summary counts the outcomes of one run.
type Summary struct {
	Captured int
	Failed   int
	Skipped  int
	Errors   int
}

// Reconciler settles pending payments.
type Reconciler struct {
	store    store.Store
	ledger   *ledger.Ledger
	gateway  gateway.Gateway
	notifier Notifier
	grace    time.Duration
	now      func() time.Time
}

// New returns a Reconciler.  notifier may be nil.
func New(s store.Store, l *ledger.Ledger, g gateway.Gateway, n Notifier, grace time.Duration) *Reconciler {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Reconciler{store: s, ledger: l, gateway: g, notifier: n, grace: grace, now: time.Now}
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	c := *r
	c.now = now
	return &c
}

// Run processes every eligible payment once.  A failing payment does not
// stop the run; the first error is returned after all payments were tried.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	now := r.now().UTC()
	pending, err := r.store.PendingPayments(ctx, now.Add(-r.grace), now)
	if err != nil {
		return sum, fmt.Errorf("list pending payments: %w", err)
	}

	log := logging.FromContext(ctx)
	log.WithField("count", len(pending)).Info("reconciling pending payments")

	var first error
	for _, op := range pending {
		if err := ctx.Err(); err != nil {
			if first == nil {
				first = err
			}
			break
		}
		entry := log.WithFields(logrus.Fields{
			"payment_id": op.Payment.ID,
			"order_id":   op.Order.ID,
			"charge_id":  op.Payment.ChargeID,
		})
		outcome, err := r.reconcile(logging.ToContext(ctx, entry), op)
		switch {
		case err != nil:
			sum.Errors++
			entry.WithError(err).Error("payment reconciliation failed")
			if first == nil {
				first = fmt.Errorf("payment %d: %w", op.Payment.ID, err)
			}
		case outcome == model.PaymentCaptured:
			sum.Captured++
		case outcome == model.PaymentFailedRequest:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}
	log.WithFields(logrus.Fields{
		"captured": sum.Captured,
		"failed":   sum.Failed,
		"skipped":  sum.Skipped,
		"errors":   sum.Errors,
	}).Info("payment reconciliation finished")
	return sum, first
}

// reconcile handles one payment and returns the progress it reached, or
// the empty value when another run got there first.
func (r *Reconciler) reconcile(ctx context.Context, op model.OrderPayment) (model.PaymentProgress, error) {
	charge, err := r.gateway.ChargeStatus(ctx, op.Payment.ChargeID)
	if err != nil {
		return "", fmt.Errorf("charge status: %w", err)
	}
	if !charge.Authorized {
		return r.fail(ctx, op)
	}
	return r.capture(ctx, op, charge)
}

func (r *Reconciler) capture(ctx context.Context, op model.OrderPayment, charge *gateway.Charge) (model.PaymentProgress, error) {
	log := logging.FromContext(ctx)
	if !charge.Captured {
		if _, err := r.gateway.Capture(ctx, op.Payment.ChargeID, op.Order.TotalPrice); err != nil {
			if !gateway.IsAlreadyCaptured(err) {
				logGatewayError(log, err).Error("capture failed; payment left in requesting_payment")
				return "", fmt.Errorf("capture: %w", err)
			}
			log.Info("charge was already captured")
		}
	}

	var reserves []model.TicketReserve
	err := r.store.Atomic(ctx, func(tx store.Store) error {
		ok, err := tx.AdvancePayment(ctx, op.Payment.ID, model.PaymentRequesting, model.PaymentCaptured, r.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return errSettled
		}
		reserves, err = tx.ReservesByOrder(ctx, op.Order.ID)
		if err != nil {
			return err
		}
		l := r.ledger.In(tx)
		for _, res := range reserves {
			if err := l.Settle(ctx, res, op.Order.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errSettled) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("settle order %d: %w", op.Order.ID, err)
	}
	log.WithField("tickets", len(reserves)).Info("payment captured")

	if r.notifier != nil {
		if err := r.notifier.SendPurchaseConfirmation(ctx, op.Order, reserves); err != nil {
			log.WithError(err).Warn("purchase confirmation not sent")
		}
	}
	return model.PaymentCaptured, nil
}

// fail issues the compensating refund of an unauthorized payment, then
// marks it failed and hands any ticket still held for it back to
// inventory.  A refund error leaves the payment in requesting_payment so
// the next run retries it.
func (r *Reconciler) fail(ctx context.Context, op model.OrderPayment) (model.PaymentProgress, error) {
	log := logging.FromContext(ctx)
	if err := r.gateway.Refund(ctx, op.Payment.ChargeID); err != nil && !gateway.HasCode(err, gateway.CodeAlreadyRefunded) {
		logGatewayError(log, err).Error("compensating refund failed; payment left in requesting_payment")
		return "", fmt.Errorf("compensating refund: %w", err)
	}

	err := r.store.Atomic(ctx, func(tx store.Store) error {
		ok, err := tx.AdvancePayment(ctx, op.Payment.ID, model.PaymentRequesting, model.PaymentFailedRequest, r.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return errSettled
		}
		reserves, err := tx.ReservesByOrder(ctx, op.Order.ID)
		if err != nil {
			return err
		}
		l := r.ledger.In(tx)
		for _, res := range reserves {
			if _, err := l.ReturnHeld(ctx, res.TicketID); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errSettled) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fail order %d: %w", op.Order.ID, err)
	}
	log.Info("payment was never authorized; marked failed_request")
	return model.PaymentFailedRequest, nil
}

func logGatewayError(log *logrus.Entry, err error) *logrus.Entry {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return log.WithError(err).WithFields(logrus.Fields{
			"gateway_status": gwErr.StatusCode,
			"gateway_code":   gwErr.Code,
			"gateway_desc":   gwErr.Message,
		})
	}
	return log.WithError(err)
}
