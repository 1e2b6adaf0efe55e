package model

import "time"

// TicketHold is the transient claim a checkout places on a ticket while
// payment is pending.  Holds live in Redis under a key derived from the
// ticket ID and expire automatically at ExpiresAt.
//
// Fields:
//
//	TicketID  – ticket being held.
//	Holder    – opaque identifier of the checkout session or user.
//	Token     – random token returned to the client for correlation.
//	ExpiresAt – when the hold lapses.
type TicketHold struct {
	TicketID  uint64    `json:"ticket_id"`
	Holder    string    `json:"holder"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
