package model

import "time"

// TicketStatus is the inventory state of a ticket.
type TicketStatus string

const (
	TicketAvailable       TicketStatus = "available"
	TicketTemporarilyHeld TicketStatus = "temporarily_held"
	TicketSold            TicketStatus = "sold"
	TicketNotForSale      TicketStatus = "not_for_sale"
)

// Ticket is one seat instance for one sale window.  It corresponds to a
// row in the `tickets` table.
//
// Fields:
//
//	ID                  – primary key identifier.
//	SeatSaleID          – sale window the ticket belongs to.
//	Status              – inventory state (available, temporarily_held, sold, not_for_sale).
//	UserID              – current owner; nil while unsold.
//	PurchaseReserveID   – reserve that first sold the ticket; never changes once set.
//	CurrentReserveID    – reserve that currently grants admission.
//	TransferUUID        – outstanding transfer token; non-nil while mid-transfer.
//	AdmissionDisabledAt – administrative kill switch for admission.
//	QRCode              – publicly presentable scan code.
type Ticket struct {
	ID                  uint64       // tickets.id
	SeatSaleID          uint64       // tickets.seat_sale_id
	Status              TicketStatus // tickets.status
	UserID              *uint64      // tickets.user_id (nullable)
	PurchaseReserveID   *uint64      // tickets.purchase_ticket_reserve_id (nullable)
	CurrentReserveID    *uint64      // tickets.current_ticket_reserve_id (nullable)
	TransferUUID        *string      // tickets.transfer_uuid (nullable)
	AdmissionDisabledAt *time.Time   // tickets.admission_disabled_at (nullable)
	QRCode              string       // tickets.qr_code
	CreatedAt           time.Time    // tickets.created_at
	UpdatedAt           time.Time    // tickets.updated_at
}

// OwnedBy reports whether userID is the ticket's current owner.
func (t *Ticket) OwnedBy(userID uint64) bool {
	return t.UserID != nil && *t.UserID == userID
}

// InTransfer reports whether a transfer token is outstanding.
func (t *Ticket) InTransfer() bool {
	return t.TransferUUID != nil && *t.TransferUUID != ""
}
