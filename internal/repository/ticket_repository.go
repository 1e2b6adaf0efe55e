package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticket-reconciler/internal/model"
)

const ticketColumns = `id, seat_sale_id, status, user_id, purchase_ticket_reserve_id,
	current_ticket_reserve_id, transfer_uuid, admission_disabled_at, qr_code, created_at, updated_at`

func scanTicket(row interface{ Scan(...interface{}) error }) (*model.Ticket, error) {
	var (
		t                 model.Ticket
		status            string
		userID, purchase  sql.NullInt64
		current           sql.NullInt64
		transferUUID      sql.NullString
		admissionDisabled sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.SeatSaleID, &status, &userID, &purchase, &current,
		&transferUUID, &admissionDisabled, &t.QRCode, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	t.Status = model.TicketStatus(status)
	t.UserID = uint64Ptr(userID)
	t.PurchaseReserveID = uint64Ptr(purchase)
	t.CurrentReserveID = uint64Ptr(current)
	t.TransferUUID = stringPtr(transferUUID)
	t.AdmissionDisabledAt = timePtr(admissionDisabled)
	return &t, nil
}

// TicketByID fetches a ticket by primary key.
func (r *Repo) TicketByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	return scanTicket(r.conn.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ? LIMIT 1`, id))
}

// TicketByQRCode fetches the ticket presented at a gate.
func (r *Repo) TicketByQRCode(ctx context.Context, qrCode string) (*model.Ticket, error) {
	return scanTicket(r.conn.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE qr_code = ? LIMIT 1`, qrCode))
}

// TicketByTransferUUID fetches the ticket offered under a transfer token.
func (r *Repo) TicketByTransferUUID(ctx context.Context, token string) (*model.Ticket, error) {
	return scanTicket(r.conn.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE transfer_uuid = ? LIMIT 1`, token))
}

// CompareAndSwapTicketStatus is the exclusive claim on a ticket.  The
// WHERE clause carries the expected status so two concurrent claims can
// never both observe a changed row.
func (r *Repo) CompareAndSwapTicketStatus(ctx context.Context, id uint64, from, to model.TicketStatus) (bool, error) {
	return affected(r.conn.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
		string(to), id, string(from)))
}

// SettleTicket marks a ticket sold to userID through reserveID.  The
// purchase reserve is only written when it is still empty.
func (r *Repo) SettleTicket(ctx context.Context, id, userID, reserveID uint64) error {
	return requireOneRow(r.conn.ExecContext(ctx,
		`UPDATE tickets
		    SET status = ?, user_id = ?, current_ticket_reserve_id = ?,
		        purchase_ticket_reserve_id = COALESCE(purchase_ticket_reserve_id, ?),
		        updated_at = UTC_TIMESTAMP()
		  WHERE id = ?`,
		string(model.TicketSold), userID, reserveID, reserveID, id))
}

// ReleaseTicket clears ownership and reserve pointers and sets status.
func (r *Repo) ReleaseTicket(ctx context.Context, id uint64, status model.TicketStatus) error {
	return requireOneRow(r.conn.ExecContext(ctx,
		`UPDATE tickets
		    SET status = ?, user_id = NULL, purchase_ticket_reserve_id = NULL,
		        current_ticket_reserve_id = NULL, transfer_uuid = NULL, updated_at = UTC_TIMESTAMP()
		  WHERE id = ?`,
		string(status), id))
}

// SetTicketTransferUUID sets or clears (nil) the transfer token.
func (r *Repo) SetTicketTransferUUID(ctx context.Context, id uint64, token *string) error {
	var v sql.NullString
	if token != nil {
		v = sql.NullString{String: *token, Valid: true}
	}
	return requireOneRow(r.conn.ExecContext(ctx,
		`UPDATE tickets SET transfer_uuid = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`, v, id))
}

// RelinkTicket points a ticket at a new current reserve and owner and
// clears its transfer token.
func (r *Repo) RelinkTicket(ctx context.Context, id, userID, reserveID uint64) error {
	return requireOneRow(r.conn.ExecContext(ctx,
		`UPDATE tickets
		    SET user_id = ?, current_ticket_reserve_id = ?, transfer_uuid = NULL, updated_at = UTC_TIMESTAMP()
		  WHERE id = ?`,
		userID, reserveID, id))
}

// pendingPaymentFilter excludes tickets a requesting_payment payment refers
// to.  The enclosing query aliases tickets as t.
const pendingPaymentFilter = `NOT EXISTS (
		        SELECT 1 FROM ticket_reserves tr
		          JOIN payments p ON p.order_id = tr.order_id
		         WHERE tr.ticket_id = t.id AND p.progress = ?)`

// ReturnUnpaidHold releases a held ticket in one conditional update that
// also requires no pending payment to refer to it.
func (r *Repo) ReturnUnpaidHold(ctx context.Context, id uint64) (bool, error) {
	return affected(r.conn.ExecContext(ctx,
		`UPDATE tickets t SET t.status = ?, t.updated_at = UTC_TIMESTAMP()
		  WHERE t.id = ? AND t.status = ? AND `+pendingPaymentFilter,
		string(model.TicketAvailable), id, string(model.TicketTemporarilyHeld), string(model.PaymentRequesting)))
}

// HeldTicketsWithoutPendingPayment lists held tickets whose checkout never
// produced a requesting_payment payment.
func (r *Repo) HeldTicketsWithoutPendingPayment(ctx context.Context) ([]uint64, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT t.id FROM tickets t
		  WHERE t.status = ?
		    AND `+pendingPaymentFilter+`
		  ORDER BY t.id`,
		string(model.TicketTemporarilyHeld), string(model.PaymentRequesting))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
