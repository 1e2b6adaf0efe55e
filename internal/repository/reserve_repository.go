package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

const reserveColumns = `id, order_id, ticket_id, seat_type_option_id, previous_ticket_reserve_id,
	next_ticket_reserve_id, transfer_at, transfer_from_user_id, transfer_to_user_id, created_at`

func scanReserve(row interface{ Scan(...interface{}) error }) (*model.TicketReserve, error) {
	var (
		tr                 model.TicketReserve
		option, prev, next sql.NullInt64
		from, to           sql.NullInt64
		transferAt         sql.NullTime
	)
	if err := row.Scan(&tr.ID, &tr.OrderID, &tr.TicketID, &option, &prev, &next,
		&transferAt, &from, &to, &tr.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	tr.SeatTypeOptionID = uint64Ptr(option)
	tr.PreviousReserveID = uint64Ptr(prev)
	tr.NextReserveID = uint64Ptr(next)
	tr.TransferAt = timePtr(transferAt)
	tr.TransferFromUserID = uint64Ptr(from)
	tr.TransferToUserID = uint64Ptr(to)
	return &tr, nil
}

// ReserveByID fetches one reserve.
func (r *Repo) ReserveByID(ctx context.Context, id uint64) (*model.TicketReserve, error) {
	return scanReserve(r.conn.QueryRowContext(ctx,
		`SELECT `+reserveColumns+` FROM ticket_reserves WHERE id = ? LIMIT 1`, id))
}

// ReservesByOrder lists the line items of an order in insertion order.
func (r *Repo) ReservesByOrder(ctx context.Context, orderID uint64) ([]model.TicketReserve, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+reserveColumns+` FROM ticket_reserves WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TicketReserve
	for rows.Next() {
		tr, err := scanReserve(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// CreateReserve inserts a reserve and populates its ID and CreatedAt.
func (r *Repo) CreateReserve(ctx context.Context, tr *model.TicketReserve) error {
	now := time.Now().UTC()
	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO ticket_reserves (order_id, ticket_id, seat_type_option_id, previous_ticket_reserve_id,
		        transfer_from_user_id, transfer_to_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.OrderID, tr.TicketID, nullUint64(tr.SeatTypeOptionID), nullUint64(tr.PreviousReserveID),
		nullUint64(tr.TransferFromUserID), nullUint64(tr.TransferToUserID), now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tr.ID = uint64(id)
	tr.CreatedAt = now
	return nil
}

// LinkNextReserve appends nextID behind id.  A reserve gets at most one
// successor; a second link attempt is a conflict.
func (r *Repo) LinkNextReserve(ctx context.Context, id, nextID uint64, at time.Time) error {
	ok, err := affected(r.conn.ExecContext(ctx,
		`UPDATE ticket_reserves SET next_ticket_reserve_id = ?, transfer_at = ?
		  WHERE id = ? AND next_ticket_reserve_id IS NULL`,
		nextID, at.UTC(), id))
	if err != nil {
		return err
	}
	if !ok {
		if _, err := r.ReserveByID(ctx, id); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return nil
}
