package ledger

import (
	"context"
	"fmt"

	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// maxChainLength bounds History so a corrupted link cannot loop forever.
const maxChainLength = 1024

// OfferTransfer puts a sold ticket into the mid-transfer state and returns
// the token the receiver redeems.  While the token is outstanding the
// ticket does not pass the gate.
func (l *Ledger) OfferTransfer(ctx context.Context, ticketID, ownerID uint64) (string, error) {
	t, err := l.store.TicketByID(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if t.Status != model.TicketSold {
		return "", ErrNotSold
	}
	if !t.OwnedBy(ownerID) {
		return "", ErrNotOwner
	}
	if t.InTransfer() {
		return "", ErrTransferPending
	}
	token := newTransferToken()
	if err := l.store.SetTicketTransferUUID(ctx, ticketID, &token); err != nil {
		return "", err
	}
	return token, nil
}

// CancelTransfer withdraws an outstanding transfer offer.
func (l *Ledger) CancelTransfer(ctx context.Context, ticketID, ownerID uint64) error {
	t, err := l.store.TicketByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if !t.OwnedBy(ownerID) {
		return ErrNotOwner
	}
	if !t.InTransfer() {
		return ErrNoTransfer
	}
	return l.store.SetTicketTransferUUID(ctx, ticketID, nil)
}

// Transfer redeems a transfer token for toUserID.  Inside one transaction
// it creates the transfer order and exactly one new reserve behind the
// current one, links the current reserve to it and moves the ticket's
// current reserve and owner.  The purchase reserve and the ownership
// fields of earlier reserves are left as they are.
func (l *Ledger) Transfer(ctx context.Context, token string, toUserID uint64, orderType model.OrderType) (*model.TicketReserve, error) {
	if orderType != model.OrderTransfer && orderType != model.OrderAdminTransfer {
		return nil, fmt.Errorf("order type %q is not a transfer", orderType)
	}
	var created *model.TicketReserve
	err := l.store.Atomic(ctx, func(tx store.Store) error {
		t, err := tx.TicketByTransferUUID(ctx, token)
		if err != nil {
			return err
		}
		if t.Status != model.TicketSold || t.UserID == nil || t.CurrentReserveID == nil {
			return ErrNotSold
		}
		fromUserID := *t.UserID
		if fromUserID == toUserID {
			return ErrSelfTransfer
		}

		order := &model.Order{UserID: toUserID, SeatSaleID: t.SeatSaleID, OrderType: orderType}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create transfer order: %w", err)
		}
		prevID := *t.CurrentReserveID
		reserve := &model.TicketReserve{
			OrderID:            order.ID,
			TicketID:           t.ID,
			PreviousReserveID:  &prevID,
			TransferFromUserID: &fromUserID,
			TransferToUserID:   &toUserID,
		}
		if err := tx.CreateReserve(ctx, reserve); err != nil {
			return fmt.Errorf("create transfer reserve: %w", err)
		}
		if err := tx.LinkNextReserve(ctx, prevID, reserve.ID, l.now().UTC()); err != nil {
			return fmt.Errorf("link reserve %d: %w", prevID, err)
		}
		if err := tx.RelinkTicket(ctx, t.ID, toUserID, reserve.ID); err != nil {
			return err
		}
		created = reserve
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// History returns the reserve chain of a ticket from its purchase reserve
// to its current reserve.
func (l *Ledger) History(ctx context.Context, ticketID uint64) ([]model.TicketReserve, error) {
	t, err := l.store.TicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.PurchaseReserveID == nil {
		return nil, nil
	}
	var chain []model.TicketReserve
	next := t.PurchaseReserveID
	for next != nil {
		if len(chain) >= maxChainLength {
			return nil, fmt.Errorf("ticket %d: reserve chain exceeds %d links", ticketID, maxChainLength)
		}
		r, err := l.store.ReserveByID(ctx, *next)
		if err != nil {
			return nil, fmt.Errorf("ticket %d: reserve %d: %w", ticketID, *next, err)
		}
		chain = append(chain, *r)
		next = r.NextReserveID
	}
	return chain, nil
}
