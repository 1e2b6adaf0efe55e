// Package admission implements the gate protocol: verifying a scanned
// ticket under a hard deadline, appending admission log entries and
// backing out an erroneous entry together with its face record.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// DefaultVerifyTimeout bounds a whole verification request.
const DefaultVerifyTimeout = 2 * time.Second

// Code is the outcome of a verification.
type Code string

const (
	OK                    Code = "ok"
	TicketNotFound        Code = "ticket_not_found"
	TicketNotAvailableYet Code = "ticket_not_available_yet"
	TicketHasExpired      Code = "ticket_has_expired"
	TicketValidateFailed  Code = "ticket_validate_failed"
	TicketHasBanned       Code = "ticket_has_banned"
	Timeout               Code = "timeout"
)

var (
	// ErrNothingToClean is returned by UpdateCleanLog when the ticket has
	// no entry to back out.
	ErrNothingToClean = errors.New("ticket has no admission to clean")
	// ErrFaceRecordNotFound is returned by UpdateCleanLog when the
	// face-recognition system has no record for the ticket.
	ErrFaceRecordNotFound = errors.New("face record not found")
)

// NoGoChecker runs the no-go-user check.  Validate returns ErrNoGoHit (as
// reported by the implementation) on a hit and other errors when the check
// itself failed.
type NoGoChecker interface {
	Validate(ctx context.Context, authCode string) error
}

// FaceRegistry removes biometric records from the face-recognition system.
type FaceRegistry interface {
	DeleteRecord(ctx context.Context, qrCode string) error
}

// TicketView is the ticket part of a verification response.
type TicketView struct {
	ID                   uint64                `json:"id"`
	QRCode               string                `json:"qr_code"`
	Status               model.TicketStatus    `json:"status"`
	SeatSaleID           uint64                `json:"seat_sale_id"`
	AdmissionAvailableAt time.Time             `json:"admission_available_at"`
	AdmissionCloseAt     *time.Time            `json:"admission_close_at,omitempty"`
	AdmissionStatus      model.AdmissionStatus `json:"admission_status"`
	InTransfer           bool                  `json:"in_transfer"`
	Disabled             bool                  `json:"disabled"`
}

// HolderView is the holder part of a verification response.
type HolderView struct {
	UserID   uint64     `json:"user_id"`
	Name     string     `json:"name"`
	Birthday *time.Time `json:"birthday,omitempty"`
	Address  string     `json:"address"`
	Email    string     `json:"email"`
}

// Result is the answer to a verification.  Ticket is set for every code
// except TicketNotFound and Timeout; Holder is set when the ticket has one.
type Result struct {
	Code   Code        `json:"code"`
	Ticket *TicketView `json:"ticket,omitempty"`
	Holder *HolderView `json:"holder,omitempty"`
}

// Service runs the gate protocol.
type Service struct {
	store   store.Store
	nogo    NoGoChecker
	face    FaceRegistry
	timeout time.Duration
	now     func() time.Time
}

// New returns a Service.  A zero timeout selects DefaultVerifyTimeout.
func New(s store.Store, nogo NoGoChecker, face FaceRegistry, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return &Service{store: s, nogo: nogo, face: face, timeout: timeout, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

// Verify checks a scanned ticket for userID.  Business outcomes are
// reported in Result.Code; the returned error is reserved for storage
// failures.  Running out of time yields Timeout unless a rule's effect has
// already committed, in which case that rule's outcome is reported.
func (s *Service) Verify(ctx context.Context, qrCode string, userID uint64) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, committed, err := s.verify(ctx, qrCode, userID)
	if !committed && ctx.Err() != nil {
		return &Result{Code: Timeout}, nil
	}
	return res, err
}

// verify reports whether a rule's effect was committed alongside the result.
func (s *Service) verify(ctx context.Context, qrCode string, userID uint64) (*Result, bool, error) {
	sc, err := s.load(ctx, qrCode, userID)
	if err != nil {
		return nil, false, err
	}
	for _, r := range rules {
		matched, err := r.match(ctx, s, sc)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", r.code, err)
		}
		if !matched {
			continue
		}
		if r.effect == nil {
			return sc.result(r.code), false, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if err := r.effect(ctx, s, sc); err != nil {
			return nil, false, fmt.Errorf("%s: %w", r.code, err)
		}
		return sc.result(r.code), true, nil
	}
	return sc.result(OK), false, nil
}

// scan is everything the rules look at.
type scan struct {
	qrCode string
	userID uint64
	now    time.Time
	ticket *model.Ticket
	sale   *model.SeatSale
	holder *model.User
	latest *model.TicketLog
}

func (s *Service) load(ctx context.Context, qrCode string, userID uint64) (*scan, error) {
	sc := &scan{qrCode: qrCode, userID: userID, now: s.now().UTC()}
	t, err := s.store.TicketByQRCode(ctx, qrCode)
	if errors.Is(err, store.ErrNotFound) {
		return sc, nil
	}
	if err != nil {
		return nil, err
	}
	sc.ticket = t
	if sc.sale, err = s.store.SeatSaleByID(ctx, t.SeatSaleID); err != nil {
		return nil, fmt.Errorf("seat sale %d: %w", t.SeatSaleID, err)
	}
	if sc.latest, err = s.store.LatestTicketLog(ctx, t.ID); err != nil {
		return nil, err
	}
	if t.UserID != nil {
		u, err := s.store.UserByID(ctx, *t.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		sc.holder = u
	}
	return sc, nil
}

func (sc *scan) admissionStatus() model.AdmissionStatus {
	if sc.latest == nil {
		return model.AdmissionBeforeEntry
	}
	return sc.latest.ResultStatus
}

func (sc *scan) result(code Code) *Result {
	res := &Result{Code: code}
	if sc.ticket == nil {
		return res
	}
	res.Ticket = &TicketView{
		ID:                   sc.ticket.ID,
		QRCode:               sc.ticket.QRCode,
		Status:               sc.ticket.Status,
		SeatSaleID:           sc.ticket.SeatSaleID,
		AdmissionAvailableAt: sc.sale.AdmissionAvailableAt,
		AdmissionCloseAt:     sc.sale.AdmissionCloseAt,
		AdmissionStatus:      sc.admissionStatus(),
		InTransfer:           sc.ticket.InTransfer(),
		Disabled:             sc.ticket.AdmissionDisabledAt != nil,
	}
	if sc.holder != nil {
		res.Holder = &HolderView{
			UserID:   sc.holder.ID,
			Name:     sc.holder.Name,
			Birthday: sc.holder.Birthday,
			Address:  sc.holder.Address,
			Email:    sc.holder.Email,
		}
	}
	return res
}
