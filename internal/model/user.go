package model

import "time"

// User is a ticket holder as far as admission is concerned.  Identity
// itself lives with the external identity provider; AuthCode is the
// identifier the no-go-user check is run against.
type User struct {
	ID              uint64     // users.id
	Name            string     // users.name
	Birthday        *time.Time // users.birthday (nullable)
	Address         string     // users.address
	Email           string     // users.email
	AuthCode        string     // users.auth_code
	NoGoCheckOptOut bool       // users.no_go_check_opt_out
}

// VisitorProfile is a point-in-time copy of a holder's profile taken when
// the holder entered the venue.  It is never updated afterwards.
type VisitorProfile struct {
	ID          uint64     // visitor_profiles.id
	TicketID    uint64     // visitor_profiles.ticket_id
	TicketLogID uint64     // visitor_profiles.ticket_log_id
	UserID      uint64     // visitor_profiles.user_id
	Name        string     // visitor_profiles.name
	Birthday    *time.Time // visitor_profiles.birthday (nullable)
	Address     string     // visitor_profiles.address
	Email       string     // visitor_profiles.email
	CreatedAt   time.Time  // visitor_profiles.created_at
}
