package refund_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reconciler/internal/gateway"
	"github.com/iliyamo/ticket-reconciler/internal/gateway/gatewaytest"
	"github.com/iliyamo/ticket-reconciler/internal/ledger"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/refund"
	"github.com/iliyamo/ticket-reconciler/internal/store/memory"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	st     *memory.Store
	gw     *gatewaytest.Fake
	orch   *refund.Orchestrator
	saleID uint64
}

func newFixture(t *testing.T, status model.SalesStatus) *fixture {
	t.Helper()
	st := memory.New()
	saleID := st.PutSeatSale(model.SeatSale{
		SalesStatus:          status,
		SalesStartAt:         now.Add(-72 * time.Hour),
		SalesEndAt:           now.Add(72 * time.Hour),
		AdmissionAvailableAt: now.Add(96 * time.Hour),
	})
	gw := gatewaytest.New()
	l := ledger.New(st, nil, time.Minute)
	clock := func() time.Time { return now }
	return &fixture{st: st, gw: gw, orch: refund.New(st, l, gw).WithClock(clock), saleID: saleID}
}

// soldOrder seeds an order in the given progress whose ticket is sold to
// the order's user.
func (f *fixture) soldOrder(userID uint64, chargeID string, progress model.PaymentProgress) (model.Order, model.Payment, uint64) {
	o, p := f.st.PutOrder(
		model.Order{UserID: userID, SeatSaleID: f.saleID, OrderType: model.OrderPurchase, TotalPrice: 4000},
		model.Payment{ChargeID: chargeID, Progress: progress},
	)
	ticketID := f.st.PutTicket(model.Ticket{SeatSaleID: f.saleID, Status: model.TicketTemporarilyHeld, QRCode: "qr-" + chargeID})
	reserveID := f.st.PutReserve(model.TicketReserve{OrderID: o.ID, TicketID: ticketID})
	if progress == model.PaymentCaptured {
		uid, rid := userID, reserveID
		f.st.PutTicket(model.Ticket{
			ID: ticketID, SeatSaleID: f.saleID, Status: model.TicketSold, UserID: &uid,
			PurchaseReserveID: &rid, CurrentReserveID: &rid, QRCode: "qr-" + chargeID,
		})
	}
	f.gw.Put(gateway.Charge{ID: chargeID, Authorized: true, Captured: progress == model.PaymentCaptured})
	return o, p, ticketID
}

func TestRun_PartialFailureIsIsolated(t *testing.T) {
	f := newFixture(t, model.SalesDiscontinued)
	o1, p1, t1 := f.soldOrder(1, "ch_1", model.PaymentCaptured)
	o2, p2, t2 := f.soldOrder(2, "ch_2", model.PaymentCaptured)
	o3, p3, t3 := f.soldOrder(3, "ch_3", model.PaymentCaptured)
	f.gw.FailNext("refund", "ch_2", &gateway.Error{StatusCode: 400, Code: gateway.CodeAlreadyRefunded, Message: "charge already refunded"})

	report, err := f.orch.Run(context.Background(), f.saleID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{o1.ID, o3.ID}, report.Refunded)
	assert.Equal(t, []uint64{o2.ID}, report.Failed)

	for _, id := range []struct {
		order   uint64
		payment uint64
		ticket  uint64
	}{{o1.ID, p1.ID, t1}, {o3.ID, p3.ID, t3}} {
		p := f.st.Payment(id.payment)
		assert.Equal(t, model.PaymentRefunded, p.Progress)
		require.NotNil(t, p.RefundedAt)
		assert.NotNil(t, f.st.Order(id.order).ReturnedAt)
		ticket := f.st.Ticket(id.ticket)
		assert.Equal(t, model.TicketNotForSale, ticket.Status)
		assert.Nil(t, ticket.UserID)
	}

	failedPayment := f.st.Payment(p2.ID)
	assert.Equal(t, model.PaymentCaptured, failedPayment.Progress)
	assert.Nil(t, failedPayment.RefundedAt)
	failedOrder := f.st.Order(o2.ID)
	assert.Nil(t, failedOrder.ReturnedAt)
	require.NotNil(t, failedOrder.RefundErrorMessage)
	assert.Contains(t, *failedOrder.RefundErrorMessage, gateway.CodeAlreadyRefunded)
	assert.Equal(t, model.TicketSold, f.st.Ticket(t2).Status)

	sale := f.st.SeatSale(f.saleID)
	require.NotNil(t, sale.RefundAt)
	require.NotNil(t, sale.RefundEndAt)
	assert.True(t, sale.RefundEndAt.Equal(now))
}

func TestRun_ResolvesRequestingPayments(t *testing.T) {
	f := newFixture(t, model.SalesDiscontinued)
	authorized, pa, ta := f.soldOrder(1, "ch_auth", model.PaymentRequesting)
	unauthorized, pu, _ := f.soldOrder(2, "ch_unauth", model.PaymentRequesting)
	f.gw.Put(gateway.Charge{ID: "ch_unauth"})

	report, err := f.orch.Run(context.Background(), f.saleID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{authorized.ID}, report.Refunded)
	assert.Equal(t, []uint64{unauthorized.ID}, report.Skipped)

	got := f.st.Payment(pa.ID)
	assert.Equal(t, model.PaymentRefunded, got.Progress)
	assert.NotNil(t, got.CapturedAt)
	assert.NotNil(t, got.RefundedAt)
	assert.Equal(t, model.TicketNotForSale, f.st.Ticket(ta).Status)

	assert.Equal(t, model.PaymentFailedRequest, f.st.Payment(pu.ID).Progress)
	assert.Equal(t, 0, f.gw.Calls("refund", "ch_unauth"))
	assert.Nil(t, f.st.Order(unauthorized.ID).ReturnedAt)
}

func TestRun_ReleasesTransferredTickets(t *testing.T) {
	f := newFixture(t, model.SalesDiscontinued)
	o, _, ticketID := f.soldOrder(1, "ch_1", model.PaymentCaptured)
	ticket := f.st.Ticket(ticketID)
	receiver := uint64(99)
	ticket.UserID = &receiver
	f.st.PutTicket(ticket)

	report, err := f.orch.Run(context.Background(), f.saleID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{o.ID}, report.Refunded)
	got := f.st.Ticket(ticketID)
	assert.Equal(t, model.TicketNotForSale, got.Status)
	assert.Nil(t, got.UserID)
}

func TestRun_RerunSkipsRefundedOrders(t *testing.T) {
	f := newFixture(t, model.SalesDiscontinued)
	f.soldOrder(1, "ch_1", model.PaymentCaptured)

	_, err := f.orch.Run(context.Background(), f.saleID)
	require.NoError(t, err)
	report, err := f.orch.Run(context.Background(), f.saleID)
	require.NoError(t, err)
	assert.Empty(t, report.Refunded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 1, f.gw.Calls("refund", "ch_1"))
	assert.NotNil(t, f.st.SeatSale(f.saleID).RefundEndAt)
}

func TestRun_RequiresDiscontinuedSale(t *testing.T) {
	f := newFixture(t, model.SalesOnSale)
	o, _, _ := f.soldOrder(1, "ch_1", model.PaymentCaptured)

	_, err := f.orch.Run(context.Background(), f.saleID)
	require.ErrorIs(t, err, refund.ErrSaleNotDiscontinued)
	assert.Nil(t, f.st.Order(o.ID).ReturnedAt)
	assert.Nil(t, f.st.SeatSale(f.saleID).RefundEndAt)
}
