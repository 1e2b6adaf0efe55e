package model

import "time"

// TicketReserve binds an Order to a Ticket.  Reserves of the same ticket
// form an append-only chain through PreviousReserveID/NextReserveID; a
// transfer appends a new reserve and never rewrites the ownership fields
// of an older one.
type TicketReserve struct {
	ID                 uint64     // ticket_reserves.id
	OrderID            uint64     // ticket_reserves.order_id
	TicketID           uint64     // ticket_reserves.ticket_id
	SeatTypeOptionID   *uint64    // ticket_reserves.seat_type_option_id (nullable)
	PreviousReserveID  *uint64    // ticket_reserves.previous_ticket_reserve_id (nullable)
	NextReserveID      *uint64    // ticket_reserves.next_ticket_reserve_id (nullable)
	TransferAt         *time.Time // ticket_reserves.transfer_at (nullable = not transferred)
	TransferFromUserID *uint64    // ticket_reserves.transfer_from_user_id (nullable)
	TransferToUserID   *uint64    // ticket_reserves.transfer_to_user_id (nullable)
	CreatedAt          time.Time  // ticket_reserves.created_at
}
