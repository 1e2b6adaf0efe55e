package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
)

const orderPaymentColumns = `o.id, o.user_id, o.seat_sale_id, o.order_type, o.total_price, o.returned_at,
	o.refund_error_message, o.created_at,
	p.id, p.order_id, p.charge_id, p.progress, p.captured_at, p.refunded_at, p.created_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*model.Order, error) {
	var (
		o          model.Order
		orderType  string
		returnedAt sql.NullTime
		refundErr  sql.NullString
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.SeatSaleID, &orderType, &o.TotalPrice,
		&returnedAt, &refundErr, &o.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	o.OrderType = model.OrderType(orderType)
	o.ReturnedAt = timePtr(returnedAt)
	o.RefundErrorMessage = stringPtr(refundErr)
	return &o, nil
}

func (r *Repo) queryOrderPayments(ctx context.Context, query string, args ...interface{}) ([]model.OrderPayment, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OrderPayment
	for rows.Next() {
		var (
			op                   model.OrderPayment
			orderType, progress  string
			returnedAt           sql.NullTime
			refundErr            sql.NullString
			capturedAt, refunded sql.NullTime
		)
		if err := rows.Scan(&op.Order.ID, &op.Order.UserID, &op.Order.SeatSaleID, &orderType,
			&op.Order.TotalPrice, &returnedAt, &refundErr, &op.Order.CreatedAt,
			&op.Payment.ID, &op.Payment.OrderID, &op.Payment.ChargeID, &progress,
			&capturedAt, &refunded, &op.Payment.CreatedAt); err != nil {
			return nil, err
		}
		op.Order.OrderType = model.OrderType(orderType)
		op.Order.ReturnedAt = timePtr(returnedAt)
		op.Order.RefundErrorMessage = stringPtr(refundErr)
		op.Payment.Progress = model.PaymentProgress(progress)
		op.Payment.CapturedAt = timePtr(capturedAt)
		op.Payment.RefundedAt = timePtr(refunded)
		out = append(out, op)
	}
	return out, rows.Err()
}

// OrderByID fetches one order.
func (r *Repo) OrderByID(ctx context.Context, id uint64) (*model.Order, error) {
	return scanOrder(r.conn.QueryRowContext(ctx,
		`SELECT id, user_id, seat_sale_id, order_type, total_price, returned_at, refund_error_message, created_at
		   FROM orders WHERE id = ? LIMIT 1`, id))
}

// CreateOrder inserts an order and populates its ID and CreatedAt.
func (r *Repo) CreateOrder(ctx context.Context, o *model.Order) error {
	now := time.Now().UTC()
	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO orders (user_id, seat_sale_id, order_type, total_price, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.UserID, o.SeatSaleID, string(o.OrderType), o.TotalPrice, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	o.CreatedAt = now
	return nil
}

// PendingPayments returns the payments the settlement reconciler should
// look at: still requesting_payment, older than the grace window, and in a
// sale window that is still selling.
func (r *Repo) PendingPayments(ctx context.Context, createdBefore, now time.Time) ([]model.OrderPayment, error) {
	return r.queryOrderPayments(ctx,
		`SELECT `+orderPaymentColumns+`
		   FROM payments p
		   JOIN orders o ON o.id = p.order_id
		   JOIN seat_sales s ON s.id = o.seat_sale_id
		  WHERE p.progress = ?
		    AND p.created_at <= ?
		    AND s.sales_status <> ?
		    AND s.sales_start_at <= ? AND s.sales_end_at >= ?
		  ORDER BY p.id`,
		string(model.PaymentRequesting), createdBefore.UTC(), string(model.SalesDiscontinued), now.UTC(), now.UTC())
}

// RefundablePayments returns the active orders of a sale window whose
// payment can still be refunded.
func (r *Repo) RefundablePayments(ctx context.Context, seatSaleID uint64) ([]model.OrderPayment, error) {
	return r.queryOrderPayments(ctx,
		`SELECT `+orderPaymentColumns+`
		   FROM orders o
		   JOIN payments p ON p.order_id = o.id
		  WHERE o.seat_sale_id = ?
		    AND o.returned_at IS NULL
		    AND p.progress IN (?, ?)
		  ORDER BY o.id`,
		seatSaleID, string(model.PaymentCaptured), string(model.PaymentRequesting))
}

// AdvancePayment moves a payment forward one step.  The expected current
// progress is part of the WHERE clause, so a re-run against an already
// advanced payment changes nothing and reports false.
func (r *Repo) AdvancePayment(ctx context.Context, paymentID uint64, from, to model.PaymentProgress, at time.Time) (bool, error) {
	if !from.CanAdvanceTo(to) {
		return false, fmt.Errorf("payment %d: %s -> %s is not a forward transition", paymentID, from, to)
	}
	var q string
	switch to {
	case model.PaymentCaptured:
		q = `UPDATE payments SET progress = ?, captured_at = ? WHERE id = ? AND progress = ? AND captured_at IS NULL`
	case model.PaymentRefunded:
		q = `UPDATE payments SET progress = ?, refunded_at = ? WHERE id = ? AND progress = ? AND refunded_at IS NULL`
	default:
		return affected(r.conn.ExecContext(ctx,
			`UPDATE payments SET progress = ? WHERE id = ? AND progress = ?`,
			string(to), paymentID, string(from)))
	}
	return affected(r.conn.ExecContext(ctx, q, string(to), at.UTC(), paymentID, string(from)))
}

// MarkOrderReturned stamps returned_at on an order.
func (r *Repo) MarkOrderReturned(ctx context.Context, orderID uint64, at time.Time) error {
	return requireOneRow(r.conn.ExecContext(ctx,
		`UPDATE orders SET returned_at = ? WHERE id = ? AND returned_at IS NULL`, at.UTC(), orderID))
}

// SetOrderRefundError records the gateway's description of a failed refund.
func (r *Repo) SetOrderRefundError(ctx context.Context, orderID uint64, message string) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE orders SET refund_error_message = ? WHERE id = ?`, message, orderID)
	return err
}
