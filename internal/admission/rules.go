package admission

import (
	"context"
	"errors"

	"github.com/iliyamo/ticket-reconciler/internal/clients"
	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// rule pairs a predicate with the outcome reported when it matches.  An
// effect, if any, runs before the outcome is reported.
type rule struct {
	code   Code
	match  func(ctx context.Context, s *Service, sc *scan) (bool, error)
	effect func(ctx context.Context, s *Service, sc *scan) error
}

// rules is evaluated in order; the first match wins.
var rules = []rule{
	{code: TicketNotFound, match: ticketMissing},
	{code: TicketNotAvailableYet, match: notAvailableYet},
	{code: TicketHasExpired, match: admissionClosed, effect: appendForceClose},
	{code: TicketValidateFailed, match: notValidForUser},
	{code: TicketHasBanned, match: banned},
}

func ticketMissing(_ context.Context, _ *Service, sc *scan) (bool, error) {
	return sc.ticket == nil, nil
}

func notAvailableYet(_ context.Context, _ *Service, sc *scan) (bool, error) {
	return !sc.sale.AdmissionOpen(sc.now) || sc.ticket.Status != model.TicketSold, nil
}

func admissionClosed(_ context.Context, _ *Service, sc *scan) (bool, error) {
	return sc.sale.AdmissionClosed(sc.now), nil
}

// appendForceClose records the close of the admission window, carrying the
// ticket's last status forward.  Every late scan appends one entry.
func appendForceClose(ctx context.Context, s *Service, sc *scan) error {
	return s.store.Atomic(ctx, func(tx store.Store) error {
		latest, err := tx.LatestTicketLog(ctx, sc.ticket.ID)
		if err != nil {
			return err
		}
		carried := model.AdmissionBeforeEntry
		if latest != nil {
			carried = latest.ResultStatus
		}
		entry := Next(latest, model.LogForceClose, carried, false, nil)
		entry.TicketID = sc.ticket.ID
		if err := tx.CreateTicketLog(ctx, &entry); err != nil {
			return err
		}
		sc.latest = &entry
		return nil
	})
}

func notValidForUser(_ context.Context, _ *Service, sc *scan) (bool, error) {
	return !sc.ticket.OwnedBy(sc.userID) || sc.ticket.InTransfer(), nil
}

// banned reports a ticket disabled by an admin or a holder failing the
// no-go check.  A hit always bans.  A failing check bans unless the holder
// opted out of the check; a check cut off by the deadline does not ban,
// the caller reports Timeout instead.
func banned(ctx context.Context, s *Service, sc *scan) (bool, error) {
	if sc.ticket.AdmissionDisabledAt != nil {
		return true, nil
	}
	if s.nogo == nil || sc.holder == nil {
		return false, nil
	}
	err := s.nogo.Validate(ctx, sc.holder.AuthCode)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, clients.ErrNoGoHit):
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	}
	logging.FromContext(ctx).WithError(err).WithField("user_id", sc.holder.ID).
		Warn("no-go check failed")
	return !sc.holder.NoGoCheckOptOut, nil
}
