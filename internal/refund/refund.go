// Package refund rolls back every active order of a discontinued sale
// window.  Orders are refunded one at a time; a failing order keeps its
// state, gets the gateway's error description written on it, and the batch
// moves on.
package refund

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

// ErrSaleNotDiscontinued is returned when a bulk refund is requested for a
// sale window that is still selling.
var ErrSaleNotDiscontinued = errors.New("seat sale is not discontinued")

var errSettled = errors.New("payment changed since it was listed")

// Report lists the order IDs by outcome.
type Report struct {
	SeatSaleID uint64   `json:"seat_sale_id"`
	Refunded   []uint64 `json:"refunded"`
	Failed     []uint64 `json:"failed"`
	Skipped    []uint64 `json:"skipped"`
}

// Orchestrator runs bulk refunds.
type Orchestrator struct {
	store   store.Store
	ledger  *ledger.Ledger
	gateway gateway.Gateway
	now     func() time.Time
}

// New returns an Orchestrator.
func New(s store.Store, l *ledger.Ledger, g gateway.Gateway) *Orchestrator {
	return &Orchestrator{store: s, ledger: l, gateway: g, now: time.Now}
}

// WithClock replaces the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	c := *o
	c.now = now
	return &c
}

type outcome int

const (
	refunded outcome = iota
	failed
	skipped
)

// Run refunds every captured or still requesting_payment order of the
// sale window.  Per-order failures end up in the report, not in the
// returned error.  refund_end_at is stamped once all orders were tried.
func (o *Orchestrator) Run(ctx context.Context, seatSaleID uint64) (*Report, error) {
	sale, err := o.store.SeatSaleByID(ctx, seatSaleID)
	if err != nil {
		return nil, fmt.Errorf("seat sale %d: %w", seatSaleID, err)
	}
	if sale.SalesStatus != model.SalesDiscontinued {
		return nil, ErrSaleNotDiscontinued
	}
	if err := o.store.MarkRefundStarted(ctx, seatSaleID, o.now().UTC()); err != nil {
		return nil, err
	}
	orders, err := o.store.RefundablePayments(ctx, seatSaleID)
	if err != nil {
		return nil, fmt.Errorf("list refundable orders: %w", err)
	}

	log := logging.FromContext(ctx).WithField("seat_sale_id", seatSaleID)
	log.WithField("orders", len(orders)).Info("bulk refund started")

	report := &Report{SeatSaleID: seatSaleID}
	for _, op := range orders {
		entry := log.WithFields(logrus.Fields{
			"order_id":   op.Order.ID,
			"payment_id": op.Payment.ID,
			"charge_id":  op.Payment.ChargeID,
		})
		switch o.refundOrder(logging.ToContext(ctx, entry), op) {
		case refunded:
			report.Refunded = append(report.Refunded, op.Order.ID)
		case failed:
			report.Failed = append(report.Failed, op.Order.ID)
		default:
			report.Skipped = append(report.Skipped, op.Order.ID)
		}
	}

	if err := o.store.MarkRefundFinished(ctx, seatSaleID, o.now().UTC()); err != nil {
		return report, fmt.Errorf("mark refund finished: %w", err)
	}
	log.WithFields(logrus.Fields{
		"refunded": len(report.Refunded),
		"failed":   len(report.Failed),
		"skipped":  len(report.Skipped),
	}).Info("bulk refund finished")
	return report, nil
}

func (o *Orchestrator) refundOrder(ctx context.Context, op model.OrderPayment) outcome {
	log := logging.FromContext(ctx)

	if op.Payment.Progress == model.PaymentRequesting {
		charge, err := o.gateway.ChargeStatus(ctx, op.Payment.ChargeID)
		if err != nil {
			return o.recordFailure(ctx, op, err)
		}
		if !charge.Authorized {
			ok, err := o.store.AdvancePayment(ctx, op.Payment.ID, model.PaymentRequesting, model.PaymentFailedRequest, o.now().UTC())
			if err != nil {
				log.WithError(err).Error("mark unauthorized payment failed")
				return failed
			}
			if ok {
				log.Info("payment was never authorized; marked failed_request")
			}
			return skipped
		}
	}

	if err := o.gateway.Refund(ctx, op.Payment.ChargeID); err != nil {
		return o.recordFailure(ctx, op, err)
	}

	var tickets int
	err := o.store.Atomic(ctx, func(tx store.Store) error {
		now := o.now().UTC()
		if op.Payment.Progress == model.PaymentRequesting {
			ok, err := tx.AdvancePayment(ctx, op.Payment.ID, model.PaymentRequesting, model.PaymentCaptured, now)
			if err != nil {
				return err
			}
			if !ok {
				return errSettled
			}
		}
		ok, err := tx.AdvancePayment(ctx, op.Payment.ID, model.PaymentCaptured, model.PaymentRefunded, now)
		if err != nil {
			return err
		}
		if !ok {
			return errSettled
		}
		if err := tx.MarkOrderReturned(ctx, op.Order.ID, now); err != nil {
			return err
		}
		reserves, err := tx.ReservesByOrder(ctx, op.Order.ID)
		if err != nil {
			return err
		}
		l := o.ledger.In(tx)
		for _, r := range reserves {
			if err := l.Release(ctx, r.TicketID, model.TicketNotForSale); err != nil {
				return fmt.Errorf("release ticket %d: %w", r.TicketID, err)
			}
		}
		tickets = len(reserves)
		return nil
	})
	if errors.Is(err, errSettled) {
		log.Info("payment advanced by another run; skipped")
		return skipped
	}
	if err != nil {
		log.WithError(err).Error("charge refunded but local state not updated")
		return o.recordFailure(ctx, op, err)
	}
	log.WithField("tickets", tickets).Info("order refunded")
	return refunded
}

// recordFailure writes the failure description on the order and leaves
// its payment as it is.
func (o *Orchestrator) recordFailure(ctx context.Context, op model.OrderPayment, cause error) outcome {
	log := logGatewayError(logging.FromContext(ctx), cause)
	log.Warn("refund failed")
	if err := o.store.SetOrderRefundError(ctx, op.Order.ID, gateway.Description(cause)); err != nil {
		log.WithError(err).Error("record refund error")
	}
	return failed
}

func logGatewayError(log *logrus.Entry, err error) *logrus.Entry {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return log.WithError(err).WithFields(logrus.Fields{
			"gateway_status": gwErr.StatusCode,
			"gateway_code":   gwErr.Code,
		})
	}
	return log.WithError(err)
}
