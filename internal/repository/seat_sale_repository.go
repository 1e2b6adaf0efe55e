package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
)

// SeatSaleByID fetches a sale window.
func (r *Repo) SeatSaleByID(ctx context.Context, id uint64) (*model.SeatSale, error) {
	var (
		s                          model.SeatSale
		status                     string
		closeAt, refundAt, refundE sql.NullTime
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, sales_status, sales_start_at, sales_end_at, admission_available_at,
		        admission_close_at, refund_at, refund_end_at
		   FROM seat_sales WHERE id = ? LIMIT 1`, id).
		Scan(&s.ID, &status, &s.SalesStartAt, &s.SalesEndAt, &s.AdmissionAvailableAt,
			&closeAt, &refundAt, &refundE)
	if err != nil {
		return nil, notFound(err)
	}
	s.SalesStatus = model.SalesStatus(status)
	s.AdmissionCloseAt = timePtr(closeAt)
	s.RefundAt = timePtr(refundAt)
	s.RefundEndAt = timePtr(refundE)
	return &s, nil
}

// MarkRefundStarted stamps refund_at the first time a bulk refund runs.
func (r *Repo) MarkRefundStarted(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE seat_sales SET refund_at = COALESCE(refund_at, ?) WHERE id = ?`, at.UTC(), id)
	return err
}

// MarkRefundFinished stamps refund_end_at after a bulk refund run.
func (r *Repo) MarkRefundFinished(ctx context.Context, id uint64, at time.Time) error {
	return requireOneRow(r.conn.ExecContext(ctx,
		`UPDATE seat_sales SET refund_end_at = ? WHERE id = ?`, at.UTC(), id))
}
