package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
)

// UserByID fetches a ticket holder's profile.
func (r *Repo) UserByID(ctx context.Context, id uint64) (*model.User, error) {
	var (
		u        model.User
		birthday sql.NullTime
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, name, birthday, address, email, auth_code, no_go_check_opt_out
		   FROM users WHERE id = ? LIMIT 1`, id).
		Scan(&u.ID, &u.Name, &birthday, &u.Address, &u.Email, &u.AuthCode, &u.NoGoCheckOptOut)
	if err != nil {
		return nil, notFound(err)
	}
	u.Birthday = timePtr(birthday)
	return &u, nil
}

// CreateVisitorProfile stores an admission-time copy of a holder profile.
func (r *Repo) CreateVisitorProfile(ctx context.Context, p *model.VisitorProfile) error {
	now := time.Now().UTC()
	var birthday sql.NullTime
	if p.Birthday != nil {
		birthday = sql.NullTime{Time: *p.Birthday, Valid: true}
	}
	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO visitor_profiles (ticket_id, ticket_log_id, user_id, name, birthday, address, email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TicketID, p.TicketLogID, p.UserID, p.Name, birthday, p.Address, p.Email, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt = now
	return nil
}
