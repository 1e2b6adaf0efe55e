// Package ledger is the authoritative ticket-status store.  Every change
// to a ticket's status, owner or reserve pointers goes through a Ledger
// method, and every such change is a single conditional update plus at
// most one reserve row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-reconciler/internal/hold"
	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

var (
	// ErrAlreadyHeld is returned by Reserve when the ticket is not available.
	ErrAlreadyHeld = errors.New("ticket is already held")
	// ErrAlreadySold is returned by Settle when another owner holds the ticket.
	ErrAlreadySold = errors.New("ticket is already sold to another user")
	// ErrNotSold is returned for transfer operations on an unsold ticket.
	ErrNotSold = errors.New("ticket is not sold")
	// ErrNotOwner is returned when the caller does not own the ticket.
	ErrNotOwner = errors.New("ticket belongs to another user")
	// ErrTransferPending is returned when a transfer token is already outstanding.
	ErrTransferPending = errors.New("ticket transfer already pending")
	// ErrNoTransfer is returned when no transfer token is outstanding.
	ErrNoTransfer = errors.New("ticket has no pending transfer")
	// ErrSelfTransfer is returned when the receiver already owns the ticket.
	ErrSelfTransfer = errors.New("ticket cannot be transferred to its owner")
	// ErrPaymentPending is returned by ReleaseHold while a requesting_payment
	// payment refers to the ticket.
	ErrPaymentPending = errors.New("ticket has a pending payment")
	// ErrInvalidRelease is returned for a release to a status other than
	// available or not_for_sale.
	ErrInvalidRelease = errors.New("tickets can only be released to available or not_for_sale")
)

// HoldStore keeps the expiring per-ticket claim of a checkout.
type HoldStore interface {
	Acquire(ctx context.Context, ticketID uint64, holder string, ttl time.Duration) (*model.TicketHold, bool, error)
	Get(ctx context.Context, ticketID uint64) (*model.TicketHold, error)
	Release(ctx context.Context, ticketID uint64, holder string) error
}

// Ledger mutates ticket inventory.  A Ledger returned by In operates on
// the given transaction-bound store.
type Ledger struct {
	store   store.Store
	holds   HoldStore
	holdTTL time.Duration
	now     func() time.Time
}

// New returns a Ledger.  holds may be nil, in which case reservations rely
// on the database claim alone.
func New(s store.Store, holds HoldStore, holdTTL time.Duration) *Ledger {
	if holdTTL <= 0 {
		holdTTL = 15 * time.Minute
	}
	return &Ledger{store: s, holds: holds, holdTTL: holdTTL, now: time.Now}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	c := *l
	c.now = now
	return &c
}

// In returns a copy of l bound to tx.
func (l *Ledger) In(tx store.Store) *Ledger {
	c := *l
	c.store = tx
	return &c
}

// Reserve claims an available ticket for holder.  The database status
// moves available → temporarily_held in one conditional update; the Redis
// hold is placed first and removed again if the database claim is lost.
func (l *Ledger) Reserve(ctx context.Context, ticketID uint64, holder string) (*model.TicketHold, error) {
	var h *model.TicketHold
	if l.holds != nil {
		var ok bool
		var err error
		h, ok, err = l.holds.Acquire(ctx, ticketID, holder, l.holdTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAlreadyHeld
		}
	}

	claimed, err := l.store.CompareAndSwapTicketStatus(ctx, ticketID, model.TicketAvailable, model.TicketTemporarilyHeld)
	if err == nil && !claimed {
		err = ErrAlreadyHeld
	}
	if err != nil {
		if h != nil {
			if rerr := l.holds.Release(ctx, ticketID, holder); rerr != nil {
				logging.FromContext(ctx).WithError(rerr).WithField("ticket_id", ticketID).
					Warn("failed to roll back ticket hold")
			}
		}
		return nil, err
	}
	if h == nil {
		h = &model.TicketHold{TicketID: ticketID, Holder: holder, ExpiresAt: l.now().UTC().Add(l.holdTTL)}
	}
	return h, nil
}

// ReleaseHold gives up holder's claim and returns the ticket to available.
// Only the current holder may release, so a lapsed hold cannot be released
// by anyone; the sweep handles those.  A ticket a pending payment refers to
// stays held and its hold is kept.
func (l *Ledger) ReleaseHold(ctx context.Context, ticketID uint64, holder string) error {
	if l.holds == nil {
		return hold.ErrNotHolder
	}
	h, err := l.holds.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if h == nil || h.Holder != holder {
		return hold.ErrNotHolder
	}

	released, err := l.store.ReturnUnpaidHold(ctx, ticketID)
	if err != nil {
		return err
	}
	if !released {
		t, err := l.store.TicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.Status == model.TicketTemporarilyHeld {
			return ErrPaymentPending
		}
	}
	return l.holds.Release(ctx, ticketID, holder)
}

// ReturnHeld moves a temporarily held ticket back to available and leaves
// tickets in any other status untouched.  It reports whether it changed
// the ticket.
func (l *Ledger) ReturnHeld(ctx context.Context, ticketID uint64) (bool, error) {
	return l.store.CompareAndSwapTicketStatus(ctx, ticketID, model.TicketTemporarilyHeld, model.TicketAvailable)
}

// Settle marks the ticket of reserve sold to userID.  The reserve becomes
// the current reserve and, if the ticket has none yet, the purchase
// reserve.  Settling an already settled reserve again is a no-op.
func (l *Ledger) Settle(ctx context.Context, reserve model.TicketReserve, userID uint64) error {
	t, err := l.store.TicketByID(ctx, reserve.TicketID)
	if err != nil {
		return fmt.Errorf("settle ticket %d: %w", reserve.TicketID, err)
	}
	if t.Status == model.TicketSold {
		if t.OwnedBy(userID) {
			return nil
		}
		return fmt.Errorf("settle ticket %d: %w", reserve.TicketID, ErrAlreadySold)
	}
	return l.store.SettleTicket(ctx, t.ID, userID, reserve.ID)
}

// Release clears a ticket's owner and reserve pointers.  status must be
// available (refund) or not_for_sale (withdrawal, bulk refund).
func (l *Ledger) Release(ctx context.Context, ticketID uint64, status model.TicketStatus) error {
	if status != model.TicketAvailable && status != model.TicketNotForSale {
		return ErrInvalidRelease
	}
	return l.store.ReleaseTicket(ctx, ticketID, status)
}

// Withdraw pulls a ticket out of inventory regardless of the sales flow.
func (l *Ledger) Withdraw(ctx context.Context, ticketID uint64) error {
	if _, err := l.store.TicketByID(ctx, ticketID); err != nil {
		return err
	}
	return l.Release(ctx, ticketID, model.TicketNotForSale)
}

// ReleaseExpiredHolds returns to available every temporarily held ticket
// whose hold has lapsed and that no pending payment refers to.  It returns
// the number of tickets released.
func (l *Ledger) ReleaseExpiredHolds(ctx context.Context) (int, error) {
	ids, err := l.store.HeldTicketsWithoutPendingPayment(ctx)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		if l.holds != nil {
			h, err := l.holds.Get(ctx, id)
			if err != nil {
				return released, err
			}
			if h != nil {
				continue
			}
		}
		ok, err := l.store.ReturnUnpaidHold(ctx, id)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}
	return released, nil
}

// newTransferToken returns a fresh transfer token.
func newTransferToken() string { return uuid.NewString() }
