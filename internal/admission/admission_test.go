package admission_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reconciler/internal/admission"
	"github.com/iliyamo/ticket-reconciler/internal/clients"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
	"github.com/iliyamo/ticket-reconciler/internal/store/memory"
)

var now = time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)

type stubNoGo struct {
	err   error
	delay time.Duration
	calls int
}

func (s *stubNoGo) Validate(ctx context.Context, _ string) error {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

type stubFace struct {
	mu      sync.Mutex
	err     error
	deleted []string
}

func (s *stubFace) DeleteRecord(_ context.Context, qrCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, qrCode)
	return nil
}

type fixture struct {
	st       *memory.Store
	nogo     *stubNoGo
	face     *stubFace
	svc      *admission.Service
	saleID   uint64
	holderID uint64
	ticketID uint64
}

const qr = "qr-gate"

func newFixture(t *testing.T, sale model.SeatSale) *fixture {
	t.Helper()
	st := memory.New()
	if sale.AdmissionAvailableAt.IsZero() {
		sale.AdmissionAvailableAt = now.Add(-time.Hour)
	}
	sale.SalesStatus = model.SalesFinished
	saleID := st.PutSeatSale(sale)
	birthday := time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)
	holderID := st.PutUser(model.User{Name: "Kim", Birthday: &birthday, Address: "1 Main St", Email: "kim@example.com", AuthCode: "auth-kim"})
	reserve := uint64(500)
	ticketID := st.PutTicket(model.Ticket{
		SeatSaleID: saleID, Status: model.TicketSold, UserID: &holderID,
		PurchaseReserveID: &reserve, CurrentReserveID: &reserve, QRCode: qr,
	})
	nogo, face := &stubNoGo{}, &stubFace{}
	svc := admission.New(st, nogo, face, 0).WithClock(func() time.Time { return now })
	return &fixture{st: st, nogo: nogo, face: face, svc: svc, saleID: saleID, holderID: holderID, ticketID: ticketID}
}

func (f *fixture) updateTicket(fn func(*model.Ticket)) {
	t := f.st.Ticket(f.ticketID)
	fn(&t)
	f.st.PutTicket(t)
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestVerify_Admits(t *testing.T) {
	f := newFixture(t, model.SeatSale{})
	res, err := f.svc.Verify(context.Background(), qr, f.holderID)
	require.NoError(t, err)
	assert.Equal(t, admission.OK, res.Code)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, model.AdmissionBeforeEntry, res.Ticket.AdmissionStatus)
	require.NotNil(t, res.Holder)
	assert.Equal(t, "Kim", res.Holder.Name)
	assert.Equal(t, 1, f.nogo.calls)
}

func TestVerify_NotFound(t *testing.T) {
	f := newFixture(t, model.SeatSale{})
	res, err := f.svc.Verify(context.Background(), "qr-unknown", f.holderID)
	require.NoError(t, err)
	assert.Equal(t, admission.TicketNotFound, res.Code)
	assert.Nil(t, res.Ticket)
}

func TestVerify_NotAvailableYet(t *testing.T) {
	t.Run("admission not started", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{AdmissionAvailableAt: now.Add(time.Hour)})
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketNotAvailableYet, res.Code)
		assert.NotNil(t, res.Ticket, "snapshot is returned for display")
	})
	t.Run("ticket not sold", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		f.updateTicket(func(tk *model.Ticket) { tk.Status = model.TicketTemporarilyHeld })
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketNotAvailableYet, res.Code)
	})
}

func TestVerify_ExpiredAppendsOneForceCloseLogPerScan(t *testing.T) {
	closed := now.Add(-time.Minute)
	f := newFixture(t, model.SeatSale{AdmissionCloseAt: &closed})
	f.st.PutTicketLog(model.TicketLog{
		TicketID: f.ticketID, LogType: model.LogNormal, RequestStatus: model.AdmissionEntered,
		Status: model.AdmissionBeforeEntry, Result: true, ResultStatus: model.AdmissionEntered,
	})

	res, err := f.svc.Verify(context.Background(), qr, f.holderID)
	require.NoError(t, err)
	assert.Equal(t, admission.TicketHasExpired, res.Code)

	logs := f.st.AllTicketLogs()
	require.Len(t, logs, 2)
	closeLog := logs[1]
	assert.Equal(t, model.LogForceClose, closeLog.LogType)
	assert.Equal(t, model.AdmissionEntered, closeLog.Status)
	assert.Equal(t, model.AdmissionEntered, closeLog.ResultStatus)
	assert.False(t, closeLog.Result)
	assert.Nil(t, closeLog.DeviceID)

	_, err = f.svc.Verify(context.Background(), qr, f.holderID)
	require.NoError(t, err)
	assert.Len(t, f.st.AllTicketLogs(), 3)
	assert.Equal(t, -1, admission.CheckTrace(f.st.AllTicketLogs()))
	assert.Equal(t, 0, f.nogo.calls)
}

func TestVerify_ExpiredWithoutLogsCarriesBeforeEntry(t *testing.T) {
	closed := now.Add(-time.Minute)
	f := newFixture(t, model.SeatSale{AdmissionCloseAt: &closed})

	res, err := f.svc.Verify(context.Background(), qr, f.holderID)
	require.NoError(t, err)
	assert.Equal(t, admission.TicketHasExpired, res.Code)
	logs := f.st.AllTicketLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.AdmissionBeforeEntry, logs[0].Status)
	assert.Equal(t, model.AdmissionBeforeEntry, logs[0].ResultStatus)
}

func TestVerify_ValidateFailed(t *testing.T) {
	t.Run("scanned by another user", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		res, err := f.svc.Verify(context.Background(), qr, f.holderID+100)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketValidateFailed, res.Code)
		assert.Empty(t, f.st.AllTicketLogs())
	})
	t.Run("mid transfer", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		f.updateTicket(func(tk *model.Ticket) { tk.TransferUUID = strp("token") })
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketValidateFailed, res.Code)
		assert.True(t, res.Ticket.InTransfer)
	})
}

func TestVerify_Banned(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		f.updateTicket(func(tk *model.Ticket) { at := now; tk.AdmissionDisabledAt = &at })
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketHasBanned, res.Code)
		assert.Equal(t, 0, f.nogo.calls)
	})
	t.Run("no-go hit", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		f.nogo.err = clients.ErrNoGoHit
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketHasBanned, res.Code)
	})
	t.Run("check error bans", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		f.nogo.err = errors.New("service unavailable")
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketHasBanned, res.Code)
	})
	t.Run("check error admits opted out holder", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		u, err := f.st.UserByID(context.Background(), f.holderID)
		require.NoError(t, err)
		u.NoGoCheckOptOut = true
		f.st.PutUser(*u)
		f.nogo.err = errors.New("service unavailable")
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.OK, res.Code)
	})
	t.Run("hit bans opted out holder", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		u, err := f.st.UserByID(context.Background(), f.holderID)
		require.NoError(t, err)
		u.NoGoCheckOptOut = true
		f.st.PutUser(*u)
		f.nogo.err = clients.ErrNoGoHit
		res, err := f.svc.Verify(context.Background(), qr, f.holderID)
		require.NoError(t, err)
		assert.Equal(t, admission.TicketHasBanned, res.Code)
	})
}

func TestVerify_RulesApplyInPriorityOrder(t *testing.T) {
	closed := now.Add(-time.Minute)
	f := newFixture(t, model.SeatSale{AdmissionCloseAt: &closed})
	f.updateTicket(func(tk *model.Ticket) {
		at := now
		tk.AdmissionDisabledAt = &at
		tk.TransferUUID = strp("token")
	})

	res, err := f.svc.Verify(context.Background(), qr, f.holderID+1)
	require.NoError(t, err)
	assert.Equal(t, admission.TicketHasExpired, res.Code, "expiry outranks validation and bans")
}

func TestVerify_Timeout(t *testing.T) {
	f := newFixture(t, model.SeatSale{})
	f.nogo.delay = time.Second
	svc := admission.New(f.st, f.nogo, f.face, 20*time.Millisecond).WithClock(func() time.Time { return now })

	res, err := svc.Verify(context.Background(), qr, f.holderID)
	require.NoError(t, err)
	assert.Equal(t, admission.Timeout, res.Code)
	assert.Nil(t, res.Ticket)
	assert.Empty(t, f.st.AllTicketLogs())
}

// slowStore stalls around the calls the deadline tests care about.
type slowStore struct {
	store.Store
	commitDelay bool
	loadDelay   bool
}

func (s *slowStore) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if err := s.Store.Atomic(ctx, fn); err != nil {
		return err
	}
	if s.commitDelay {
		<-ctx.Done()
	}
	return nil
}

func (s *slowStore) TicketByQRCode(ctx context.Context, qrCode string) (*model.Ticket, error) {
	t, err := s.Store.TicketByQRCode(ctx, qrCode)
	if s.loadDelay {
		<-ctx.Done()
	}
	return t, err
}

func TestVerify_CommittedForceCloseOutlivesDeadline(t *testing.T) {
	closed := now.Add(-time.Minute)
	f := newFixture(t, model.SeatSale{AdmissionCloseAt: &closed})
	slow := &slowStore{Store: f.st, commitDelay: true}
	svc := admission.New(slow, f.nogo, f.face, 20*time.Millisecond).WithClock(func() time.Time { return now })

	res, err := svc.Verify(context.Background(), qr, f.holderID)
	require.NoError(t, err)
	assert.Equal(t, admission.TicketHasExpired, res.Code)
	require.NotNil(t, res.Ticket)
	assert.Len(t, f.st.AllTicketLogs(), 1)
}

func TestVerify_DeadlineBeforeForceCloseWritesNothing(t *testing.T) {
	closed := now.Add(-time.Minute)
	f := newFixture(t, model.SeatSale{AdmissionCloseAt: &closed})
	slow := &slowStore{Store: f.st, loadDelay: true}
	svc := admission.New(slow, f.nogo, f.face, 20*time.Millisecond).WithClock(func() time.Time { return now })

	res, err := svc.Verify(context.Background(), qr, f.holderID)
	require.NoError(t, err)
	assert.Equal(t, admission.Timeout, res.Code)
	assert.Empty(t, f.st.AllTicketLogs())
}

func TestUpdateLog_Validation(t *testing.T) {
	cases := []struct {
		name  string
		req   admission.LogRequest
		field string
		code  string
	}{
		{"missing status", admission.LogRequest{Result: boolp(true)}, "status", admission.CodeMissingParams},
		{"missing result", admission.LogRequest{Status: strp("entered")}, "result", admission.CodeMissingParams},
		{"unknown status", admission.LogRequest{Status: strp("teleported"), Result: boolp(true)}, "status", admission.CodeInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, model.SeatSale{})
			_, err := f.svc.UpdateLog(context.Background(), qr, tc.req)
			var verr *admission.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, tc.code, verr.Code)
			assert.Empty(t, f.st.AllTicketLogs())
			assert.Empty(t, f.st.VisitorProfiles())
		})
	}
}

func TestUpdateLog_CarriesStatusForward(t *testing.T) {
	f := newFixture(t, model.SeatSale{})
	ctx := context.Background()
	device := strp("gate-3")

	entered, err := f.svc.UpdateLog(ctx, qr, admission.LogRequest{Status: strp("entered"), Result: boolp(true), DeviceID: device})
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionBeforeEntry, entered.Status)
	assert.Equal(t, model.AdmissionEntered, entered.ResultStatus)

	rejected, err := f.svc.UpdateLog(ctx, qr, admission.LogRequest{Status: strp("left"), Result: boolp(false), DeviceID: device})
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionEntered, rejected.Status)
	assert.Equal(t, model.AdmissionEntered, rejected.ResultStatus)

	left, err := f.svc.UpdateLog(ctx, qr, admission.LogRequest{Status: strp("left"), Result: boolp(true), DeviceID: device})
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionEntered, left.Status)
	assert.Equal(t, model.AdmissionLeft, left.ResultStatus)

	trace, err := f.svc.Logs(ctx, qr)
	require.NoError(t, err)
	assert.True(t, trace.Consistent)
	assert.Equal(t, model.AdmissionLeft, trace.Status)
	assert.Len(t, trace.Logs, 3)
}

func TestUpdateLog_EntrySnapshotsHolderProfile(t *testing.T) {
	f := newFixture(t, model.SeatSale{})
	ctx := context.Background()

	entry, err := f.svc.UpdateLog(ctx, qr, admission.LogRequest{Status: strp("entered"), Result: boolp(true)})
	require.NoError(t, err)
	_, err = f.svc.UpdateLog(ctx, qr, admission.LogRequest{Status: strp("left"), Result: boolp(true)})
	require.NoError(t, err)

	profiles := f.st.VisitorProfiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, entry.ID, profiles[0].TicketLogID)
	assert.Equal(t, "Kim", profiles[0].Name)
	assert.Equal(t, "kim@example.com", profiles[0].Email)

	u, err := f.st.UserByID(ctx, f.holderID)
	require.NoError(t, err)
	u.Name = "Kim Renamed"
	f.st.PutUser(*u)
	assert.Equal(t, "Kim", f.st.VisitorProfiles()[0].Name)
}

func TestUpdateLog_ProfileFailureRollsBackLog(t *testing.T) {
	f := newFixture(t, model.SeatSale{})
	f.st.FailOn("CreateVisitorProfile", errors.New("disk full"))

	_, err := f.svc.UpdateLog(context.Background(), qr, admission.LogRequest{Status: strp("entered"), Result: boolp(true)})
	require.Error(t, err)
	assert.Empty(t, f.st.AllTicketLogs())
}

func TestUpdateLog_UnknownTicket(t *testing.T) {
	f := newFixture(t, model.SeatSale{})
	_, err := f.svc.UpdateLog(context.Background(), "qr-unknown", admission.LogRequest{Status: strp("entered"), Result: boolp(true)})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateCleanLog(t *testing.T) {
	ctx := context.Background()

	t.Run("resets an entered ticket", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		_, err := f.svc.UpdateLog(ctx, qr, admission.LogRequest{Status: strp("entered"), Result: boolp(true), DeviceID: strp("gate-1")})
		require.NoError(t, err)

		clean, err := f.svc.UpdateCleanLog(ctx, qr)
		require.NoError(t, err)
		assert.Equal(t, model.LogClean, clean.LogType)
		assert.Equal(t, model.AdmissionEntered, clean.Status)
		assert.Equal(t, model.AdmissionBeforeEntry, clean.ResultStatus)
		assert.Nil(t, clean.DeviceID)
		assert.Equal(t, []string{qr}, f.face.deleted)
	})

	t.Run("nothing to clean", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		_, err := f.svc.UpdateCleanLog(ctx, qr)
		assert.ErrorIs(t, err, admission.ErrNothingToClean)
		assert.Empty(t, f.face.deleted)
	})

	t.Run("face record already absent", func(t *testing.T) {
		f := newFixture(t, model.SeatSale{})
		_, err := f.svc.UpdateLog(ctx, qr, admission.LogRequest{Status: strp("entered"), Result: boolp(true)})
		require.NoError(t, err)
		f.face.err = clients.ErrFaceRecordNotFound

		_, err = f.svc.UpdateCleanLog(ctx, qr)
		assert.ErrorIs(t, err, admission.ErrFaceRecordNotFound)
		assert.Len(t, f.st.AllTicketLogs(), 1, "no clean log without the face delete")
	})
}

func TestCheckTrace_DetectsBrokenCarryForward(t *testing.T) {
	logs := []model.TicketLog{
		admission.Next(nil, model.LogNormal, model.AdmissionEntered, true, nil),
	}
	second := admission.Next(&logs[0], model.LogNormal, model.AdmissionLeft, true, nil)
	second.Status = model.AdmissionBeforeEntry
	logs = append(logs, second)

	assert.Equal(t, 1, admission.CheckTrace(logs))
	assert.Equal(t, model.AdmissionLeft, admission.Fold(logs))
	assert.Equal(t, model.AdmissionBeforeEntry, admission.Fold(nil))
}
