package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-reconciler/internal/clients"
	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// Validation error codes.
const (
	CodeMissingParams = "missing_params"
	CodeInvalidStatus = "invalid_status"
)

// ValidationError rejects a malformed log request before anything is
// written.
type ValidationError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

// LogRequest is a gate device's report of an admission attempt.  Status
// and Result are pointers so that absent fields can be told apart from
// zero values.
type LogRequest struct {
	Status   *string `json:"status"`
	Result   *bool   `json:"result"`
	DeviceID *string `json:"device_id"`
}

func (r LogRequest) validate() (model.AdmissionStatus, bool, error) {
	if r.Status == nil || *r.Status == "" {
		return "", false, &ValidationError{Field: "status", Code: CodeMissingParams}
	}
	if r.Result == nil {
		return "", false, &ValidationError{Field: "result", Code: CodeMissingParams}
	}
	status := model.AdmissionStatus(*r.Status)
	if !status.Valid() {
		return "", false, &ValidationError{Field: "status", Code: CodeInvalidStatus}
	}
	return status, *r.Result, nil
}

// UpdateLog appends a normal log entry for the ticket.  When the requested
// status is entered, the holder's profile is copied into a visitor profile
// in the same transaction.
func (s *Service) UpdateLog(ctx context.Context, qrCode string, req LogRequest) (*model.TicketLog, error) {
	status, result, err := req.validate()
	if err != nil {
		return nil, err
	}
	t, err := s.store.TicketByQRCode(ctx, qrCode)
	if err != nil {
		return nil, err
	}

	var entry model.TicketLog
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		latest, err := tx.LatestTicketLog(ctx, t.ID)
		if err != nil {
			return err
		}
		entry = Next(latest, model.LogNormal, status, result, req.DeviceID)
		entry.TicketID = t.ID
		if err := tx.CreateTicketLog(ctx, &entry); err != nil {
			return fmt.Errorf("create ticket log: %w", err)
		}
		if status != model.AdmissionEntered || t.UserID == nil {
			return nil
		}
		u, err := tx.UserByID(ctx, *t.UserID)
		if err != nil {
			return fmt.Errorf("holder %d: %w", *t.UserID, err)
		}
		profile := &model.VisitorProfile{
			TicketID:    t.ID,
			TicketLogID: entry.ID,
			UserID:      u.ID,
			Name:        u.Name,
			Birthday:    u.Birthday,
			Address:     u.Address,
			Email:       u.Email,
		}
		if err := tx.CreateVisitorProfile(ctx, profile); err != nil {
			return fmt.Errorf("create visitor profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateCleanLog backs out an admission: the face record of the ticket is
// deleted first and, only when that succeeds, a clean entry resetting the
// ticket to before_entry is appended.
func (s *Service) UpdateCleanLog(ctx context.Context, qrCode string) (*model.TicketLog, error) {
	t, err := s.store.TicketByQRCode(ctx, qrCode)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestTicketLog(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.ResultStatus == model.AdmissionBeforeEntry {
		return nil, ErrNothingToClean
	}

	if s.face != nil {
		if err := s.face.DeleteRecord(ctx, qrCode); err != nil {
			if errors.Is(err, clients.ErrFaceRecordNotFound) {
				return nil, ErrFaceRecordNotFound
			}
			return nil, err
		}
	}

	var entry model.TicketLog
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		latest, err := tx.LatestTicketLog(ctx, t.ID)
		if err != nil {
			return err
		}
		entry = Next(latest, model.LogClean, model.AdmissionBeforeEntry, true, nil)
		entry.TicketID = t.ID
		return tx.CreateTicketLog(ctx, &entry)
	})
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("ticket_id", t.ID).
			Error("face record deleted but clean log not written")
		return nil, err
	}
	return &entry, nil
}

// Trace is a ticket's admission log together with the result of replaying
// it.
type Trace struct {
	TicketID   uint64                `json:"ticket_id"`
	Status     model.AdmissionStatus `json:"status"`
	Consistent bool                  `json:"consistent"`
	BrokenAt   int                   `json:"broken_at,omitempty"`
	Logs       []model.TicketLog     `json:"logs"`
}

// Logs returns the admission trace of a ticket.
func (s *Service) Logs(ctx context.Context, qrCode string) (*Trace, error) {
	t, err := s.store.TicketByQRCode(ctx, qrCode)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.TicketLogs(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	tr := &Trace{TicketID: t.ID, Status: Fold(logs), Consistent: true, Logs: logs}
	if i := CheckTrace(logs); i >= 0 {
		tr.Consistent = false
		tr.BrokenAt = i
	}
	return tr, nil
}
