// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// PurchaseConfirmedQueue is the durable queue purchase confirmations are
// published to.
const PurchaseConfirmedQueue = "purchase.confirmed"

// PurchaseConfirmedEvent is published when the reconciler captures a
// payment and settles its tickets.  It carries enough information for the
// notification consumer to log or mail the confirmation without querying
// the primary database.
type PurchaseConfirmedEvent struct {
	OrderID     uint64   `json:"order_id"`
	UserID      uint64   `json:"user_id"`
	SeatSaleID  uint64   `json:"seat_sale_id"`
	TicketIDs   []uint64 `json:"ticket_ids"`
	ReserveIDs  []uint64 `json:"reserve_ids"`
	TotalPrice  uint32   `json:"total_price"`
	ConfirmedAt string   `json:"confirmed_at"`
}
