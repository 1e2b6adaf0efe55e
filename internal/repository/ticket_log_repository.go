package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

const ticketLogColumns = `id, ticket_id, log_type, request_status, status, result, result_status, device_id, created_at`

func scanTicketLog(row interface{ Scan(...interface{}) error }) (*model.TicketLog, error) {
	var (
		l                                      model.TicketLog
		logType, requestStatus, status, result string
		device                                 sql.NullString
	)
	if err := row.Scan(&l.ID, &l.TicketID, &logType, &requestStatus, &status, &l.Result,
		&result, &device, &l.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	l.LogType = model.LogType(logType)
	l.RequestStatus = model.AdmissionStatus(requestStatus)
	l.Status = model.AdmissionStatus(status)
	l.ResultStatus = model.AdmissionStatus(result)
	l.DeviceID = stringPtr(device)
	return &l, nil
}

// LatestTicketLog returns the newest log of a ticket or nil when none
// exists.
func (r *Repo) LatestTicketLog(ctx context.Context, ticketID uint64) (*model.TicketLog, error) {
	l, err := scanTicketLog(r.conn.QueryRowContext(ctx,
		`SELECT `+ticketLogColumns+` FROM ticket_logs WHERE ticket_id = ? ORDER BY id DESC LIMIT 1`, ticketID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return l, err
}

// TicketLogs returns the full trace of a ticket, oldest first.
func (r *Repo) TicketLogs(ctx context.Context, ticketID uint64) ([]model.TicketLog, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+ticketLogColumns+` FROM ticket_logs WHERE ticket_id = ? ORDER BY id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TicketLog
	for rows.Next() {
		l, err := scanTicketLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// CreateTicketLog appends a log entry and populates its ID and CreatedAt.
func (r *Repo) CreateTicketLog(ctx context.Context, l *model.TicketLog) error {
	now := time.Now().UTC()
	var device sql.NullString
	if l.DeviceID != nil {
		device = sql.NullString{String: *l.DeviceID, Valid: true}
	}
	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO ticket_logs (ticket_id, log_type, request_status, status, result, result_status, device_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.TicketID, string(l.LogType), string(l.RequestStatus), string(l.Status), l.Result,
		string(l.ResultStatus), device, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	l.CreatedAt = now
	return nil
}
