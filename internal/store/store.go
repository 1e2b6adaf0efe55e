// Package store declares the persistence contract shared by the ledger,
// the reconciliation jobs and the admission protocol.  The MySQL
// implementation lives in package repository; package memory provides an
// in-process implementation used by tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.  Handlers should
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be applied because the row
// is not in the state the caller expected.
var ErrConflict = errors.New("conflict")

// Tickets is the ledger's view of the tickets table.
type Tickets interface {
	TicketByID(ctx context.Context, id uint64) (*model.Ticket, error)
	TicketByQRCode(ctx context.Context, qrCode string) (*model.Ticket, error)
	TicketByTransferUUID(ctx context.Context, token string) (*model.Ticket, error)
	// CompareAndSwapTicketStatus moves a ticket from one status to another
	// in a single conditional update and reports whether it did.
	CompareAndSwapTicketStatus(ctx context.Context, id uint64, from, to model.TicketStatus) (bool, error)
	SettleTicket(ctx context.Context, id, userID, reserveID uint64) error
	ReleaseTicket(ctx context.Context, id uint64, status model.TicketStatus) error
	SetTicketTransferUUID(ctx context.Context, id uint64, token *string) error
	RelinkTicket(ctx context.Context, id, userID, reserveID uint64) error
	// ReturnUnpaidHold moves a temporarily held ticket back to available
	// unless a requesting_payment payment refers to it, and reports whether
	// it did.
	ReturnUnpaidHold(ctx context.Context, id uint64) (bool, error)
	// HeldTicketsWithoutPendingPayment lists temporarily held tickets that no
	// requesting_payment payment refers to.
	HeldTicketsWithoutPendingPayment(ctx context.Context) ([]uint64, error)
}

// Reserves is the ticket reserve chain.
type Reserves interface {
	ReserveByID(ctx context.Context, id uint64) (*model.TicketReserve, error)
	ReservesByOrder(ctx context.Context, orderID uint64) ([]model.TicketReserve, error)
	CreateReserve(ctx context.Context, r *model.TicketReserve) error
	// LinkNextReserve sets next_ticket_reserve_id and transfer_at on a
	// reserve that has no successor yet.  It returns ErrConflict when the
	// reserve already has one.
	LinkNextReserve(ctx context.Context, id, nextID uint64, at time.Time) error
}

// Orders covers orders and their payments.
type Orders interface {
	OrderByID(ctx context.Context, id uint64) (*model.Order, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	// PendingPayments returns requesting_payment payments created at or
	// before createdBefore whose sale window is in its sales period at now.
	PendingPayments(ctx context.Context, createdBefore, now time.Time) ([]model.OrderPayment, error)
	// RefundablePayments returns the active orders of a sale window whose
	// payment is captured or requesting_payment.
	RefundablePayments(ctx context.Context, seatSaleID uint64) ([]model.OrderPayment, error)
	// AdvancePayment moves a payment from one progress value to the next and
	// stamps the matching timestamp.  It reports false when the payment was
	// not in the from state.
	AdvancePayment(ctx context.Context, paymentID uint64, from, to model.PaymentProgress, at time.Time) (bool, error)
	MarkOrderReturned(ctx context.Context, orderID uint64, at time.Time) error
	SetOrderRefundError(ctx context.Context, orderID uint64, message string) error
}

// SeatSales covers sale windows.
type SeatSales interface {
	SeatSaleByID(ctx context.Context, id uint64) (*model.SeatSale, error)
	MarkRefundStarted(ctx context.Context, id uint64, at time.Time) error
	MarkRefundFinished(ctx context.Context, id uint64, at time.Time) error
}

// TicketLogs is the admission audit trail.
type TicketLogs interface {
	// LatestTicketLog returns the newest log of a ticket, or nil when the
	// ticket has none.
	LatestTicketLog(ctx context.Context, ticketID uint64) (*model.TicketLog, error)
	TicketLogs(ctx context.Context, ticketID uint64) ([]model.TicketLog, error)
	CreateTicketLog(ctx context.Context, l *model.TicketLog) error
}

// Users covers holder profiles and their admission snapshots.
type Users interface {
	UserByID(ctx context.Context, id uint64) (*model.User, error)
	CreateVisitorProfile(ctx context.Context, p *model.VisitorProfile) error
}

// Store is the full persistence contract.  Atomic runs fn against a store
// bound to a single transaction; the transaction commits when fn returns
// nil and rolls back otherwise.
type Store interface {
	Tickets
	Reserves
	Orders
	SeatSales
	TicketLogs
	Users

	Atomic(ctx context.Context, fn func(tx Store) error) error
}
