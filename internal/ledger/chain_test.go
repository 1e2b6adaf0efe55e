package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reconciler/internal/ledger"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
	"github.com/iliyamo/ticket-reconciler/internal/store/memory"
)

// soldTicket seeds a ticket sold to owner through a purchase order.
func soldTicket(t *testing.T, st *memory.Store, owner uint64) (ticketID, reserveID uint64) {
	t.Helper()
	saleID := seedSale(t, st)
	order, _ := st.PutOrder(model.Order{UserID: owner, SeatSaleID: saleID, OrderType: model.OrderPurchase},
		model.Payment{Progress: model.PaymentCaptured})
	ticketID = st.PutTicket(model.Ticket{SeatSaleID: saleID, Status: model.TicketAvailable, QRCode: "qr-chain"})
	reserveID = st.PutReserve(model.TicketReserve{OrderID: order.ID, TicketID: ticketID})
	require.NoError(t, ledger.New(st, nil, time.Minute).Settle(context.Background(), st.Reserve(reserveID), owner))
	return ticketID, reserveID
}

func TestTransfer_AppendsOneReserveAndRelinks(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := ledger.New(st, nil, time.Minute)
	ticketID, purchaseID := soldTicket(t, st, 1)

	token, err := l.OfferTransfer(ctx, ticketID, 1)
	require.NoError(t, err)
	offered := st.Ticket(ticketID)
	assert.True(t, offered.InTransfer())

	created, err := l.Transfer(ctx, token, 2, model.OrderTransfer)
	require.NoError(t, err)

	got := st.Ticket(ticketID)
	assert.Equal(t, uint64(2), *got.UserID)
	assert.Equal(t, created.ID, *got.CurrentReserveID)
	assert.Equal(t, purchaseID, *got.PurchaseReserveID)
	assert.False(t, got.InTransfer())

	prev := st.Reserve(purchaseID)
	require.NotNil(t, prev.NextReserveID)
	assert.Equal(t, created.ID, *prev.NextReserveID)
	assert.NotNil(t, prev.TransferAt)
	assert.Nil(t, prev.TransferToUserID, "earlier reserve ownership fields stay untouched")

	assert.Equal(t, purchaseID, *created.PreviousReserveID)
	assert.Equal(t, uint64(1), *created.TransferFromUserID)
	assert.Equal(t, uint64(2), *created.TransferToUserID)
	assert.Equal(t, model.OrderTransfer, st.Order(created.OrderID).OrderType)

	chain, err := l.History(ctx, ticketID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, purchaseID, chain[0].ID)
	assert.Equal(t, created.ID, chain[1].ID)

	_, err = l.Transfer(ctx, token, 3, model.OrderTransfer)
	assert.ErrorIs(t, err, store.ErrNotFound, "a redeemed token cannot be reused")
}

func TestOfferTransfer_Guards(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := ledger.New(st, nil, time.Minute)
	ticketID, _ := soldTicket(t, st, 1)

	_, err := l.OfferTransfer(ctx, ticketID, 2)
	assert.ErrorIs(t, err, ledger.ErrNotOwner)

	_, err = l.OfferTransfer(ctx, ticketID, 1)
	require.NoError(t, err)
	_, err = l.OfferTransfer(ctx, ticketID, 1)
	assert.ErrorIs(t, err, ledger.ErrTransferPending)

	require.NoError(t, l.CancelTransfer(ctx, ticketID, 1))
	assert.ErrorIs(t, l.CancelTransfer(ctx, ticketID, 1), ledger.ErrNoTransfer)
}

func TestTransfer_ToOwnerIsRejectedWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := ledger.New(st, nil, time.Minute)
	ticketID, purchaseID := soldTicket(t, st, 1)

	token, err := l.OfferTransfer(ctx, ticketID, 1)
	require.NoError(t, err)
	_, err = l.Transfer(ctx, token, 1, model.OrderTransfer)
	require.ErrorIs(t, err, ledger.ErrSelfTransfer)

	assert.Nil(t, st.Reserve(purchaseID).NextReserveID)
	tk := st.Ticket(ticketID)
	assert.True(t, tk.InTransfer())
}
