// Package memory is an in-process implementation of store.Store.  It keeps
// every table in maps guarded by a mutex and implements Atomic by running
// the callback against a copy of the state that replaces the original only
// when the callback succeeds.  Transactions are serialized.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

type state struct {
	seq      uint64
	tickets  map[uint64]model.Ticket
	reserves map[uint64]model.TicketReserve
	orders   map[uint64]model.Order
	payments map[uint64]model.Payment
	sales    map[uint64]model.SeatSale
	logs     []model.TicketLog
	users    map[uint64]model.User
	profiles []model.VisitorProfile
}

func newState() *state {
	return &state{
		tickets:  map[uint64]model.Ticket{},
		reserves: map[uint64]model.TicketReserve{},
		orders:   map[uint64]model.Order{},
		payments: map[uint64]model.Payment{},
		sales:    map[uint64]model.SeatSale{},
		users:    map[uint64]model.User{},
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.reserves {
		c.reserves[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	c.logs = append([]model.TicketLog(nil), s.logs...)
	c.profiles = append([]model.VisitorProfile(nil), s.profiles...)
	return c
}

func (s *state) nextID() uint64 {
	s.seq++
	return s.seq
}

// Store is the in-memory store.  The zero value is not usable; call New.
type Store struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	st   *state
	errs map[string]error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		mu:   &sync.Mutex{},
		txMu: &sync.Mutex{},
		st:   newState(),
		errs: map[string]error{},
	}
}

// FailOn makes every later call of the named method return err.  Passing a
// nil err clears the failure.
func (m *Store) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

func (m *Store) injected(method string) error {
	return m.errs[method]
}

// Atomic implements store.Store.
func (m *Store) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	tx := &Store{mu: &sync.Mutex{}, txMu: &sync.Mutex{}, st: m.st.clone(), errs: m.errs}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.st = tx.st
	m.mu.Unlock()
	return nil
}

// ---- seeding and inspection helpers ----

// PutSeatSale inserts or replaces a sale window and returns its ID.
func (m *Store) PutSeatSale(s model.SeatSale) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.st.nextID()
	}
	m.st.sales[s.ID] = s
	return s.ID
}

// PutTicket inserts or replaces a ticket and returns its ID.
func (m *Store) PutTicket(t model.Ticket) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.st.nextID()
	}
	m.st.tickets[t.ID] = t
	return t.ID
}

// PutUser inserts or replaces a user and returns its ID.
func (m *Store) PutUser(u model.User) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.st.nextID()
	}
	m.st.users[u.ID] = u
	return u.ID
}

// PutOrder inserts an order with its payment and returns both with their
// IDs filled in.
func (m *Store) PutOrder(o model.Order, p model.Payment) (model.Order, model.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		o.ID = m.st.nextID()
	}
	m.st.orders[o.ID] = o
	if p.ID == 0 {
		p.ID = m.st.nextID()
	}
	p.OrderID = o.ID
	m.st.payments[p.ID] = p
	return o, p
}

// PutReserve inserts or replaces a reserve and returns its ID.
func (m *Store) PutReserve(r model.TicketReserve) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.st.nextID()
	}
	m.st.reserves[r.ID] = r
	return r.ID
}

// PutTicketLog appends a log entry and returns its ID.
func (m *Store) PutTicketLog(l model.TicketLog) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.st.nextID()
	m.st.logs = append(m.st.logs, l)
	return l.ID
}

// Ticket returns a copy of a ticket; the zero value when absent.
func (m *Store) Ticket(id uint64) model.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.tickets[id]
}

// Payment returns a copy of a payment; the zero value when absent.
func (m *Store) Payment(id uint64) model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.payments[id]
}

// Order returns a copy of an order; the zero value when absent.
func (m *Store) Order(id uint64) model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.orders[id]
}

// SeatSale returns a copy of a sale window; the zero value when absent.
func (m *Store) SeatSale(id uint64) model.SeatSale {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.sales[id]
}

// Reserve returns a copy of a reserve; the zero value when absent.
func (m *Store) Reserve(id uint64) model.TicketReserve {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.reserves[id]
}

// VisitorProfiles returns every stored visitor profile.
func (m *Store) VisitorProfiles() []model.VisitorProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.VisitorProfile(nil), m.st.profiles...)
}

// AllTicketLogs returns every stored ticket log in insertion order.
func (m *Store) AllTicketLogs() []model.TicketLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TicketLog(nil), m.st.logs...)
}

// ---- store.Tickets ----

func (m *Store) TicketByID(_ context.Context, id uint64) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("TicketByID"); err != nil {
		return nil, err
	}
	t, ok := m.st.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (m *Store) TicketByQRCode(_ context.Context, qrCode string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("TicketByQRCode"); err != nil {
		return nil, err
	}
	for _, t := range m.st.tickets {
		if t.QRCode == qrCode {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Store) TicketByTransferUUID(_ context.Context, token string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.st.tickets {
		if t.TransferUUID != nil && *t.TransferUUID == token {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Store) CompareAndSwapTicketStatus(_ context.Context, id uint64, from, to model.TicketStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CompareAndSwapTicketStatus"); err != nil {
		return false, err
	}
	t, ok := m.st.tickets[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	m.st.tickets[id] = t
	return true, nil
}

func (m *Store) SettleTicket(_ context.Context, id, userID, reserveID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SettleTicket"); err != nil {
		return err
	}
	t, ok := m.st.tickets[id]
	if !ok {
		return store.ErrNotFound
	}
	uid, rid := userID, reserveID
	t.UserID = &uid
	t.CurrentReserveID = &rid
	if t.PurchaseReserveID == nil {
		pid := reserveID
		t.PurchaseReserveID = &pid
	}
	t.Status = model.TicketSold
	m.st.tickets[id] = t
	return nil
}

func (m *Store) ReleaseTicket(_ context.Context, id uint64, status model.TicketStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReleaseTicket"); err != nil {
		return err
	}
	t, ok := m.st.tickets[id]
	if !ok {
		return store.ErrNotFound
	}
	t.UserID = nil
	t.PurchaseReserveID = nil
	t.CurrentReserveID = nil
	t.TransferUUID = nil
	t.Status = status
	m.st.tickets[id] = t
	return nil
}

func (m *Store) SetTicketTransferUUID(_ context.Context, id uint64, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.st.tickets[id]
	if !ok {
		return store.ErrNotFound
	}
	t.TransferUUID = token
	m.st.tickets[id] = t
	return nil
}

func (m *Store) RelinkTicket(_ context.Context, id, userID, reserveID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.st.tickets[id]
	if !ok {
		return store.ErrNotFound
	}
	uid, rid := userID, reserveID
	t.UserID = &uid
	t.CurrentReserveID = &rid
	t.TransferUUID = nil
	m.st.tickets[id] = t
	return nil
}

// pendingTickets returns the tickets a requesting_payment payment refers
// to.  Callers hold m.mu.
func (m *Store) pendingTickets() map[uint64]bool {
	pending := map[uint64]bool{}
	for _, p := range m.st.payments {
		if p.Progress != model.PaymentRequesting {
			continue
		}
		for _, r := range m.st.reserves {
			if r.OrderID == p.OrderID {
				pending[r.TicketID] = true
			}
		}
	}
	return pending
}

func (m *Store) ReturnUnpaidHold(_ context.Context, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReturnUnpaidHold"); err != nil {
		return false, err
	}
	t, ok := m.st.tickets[id]
	if !ok || t.Status != model.TicketTemporarilyHeld || m.pendingTickets()[id] {
		return false, nil
	}
	t.Status = model.TicketAvailable
	m.st.tickets[id] = t
	return true, nil
}

func (m *Store) HeldTicketsWithoutPendingPayment(_ context.Context) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.pendingTickets()
	var ids []uint64
	for id, t := range m.st.tickets {
		if t.Status == model.TicketTemporarilyHeld && !pending[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ---- store.Reserves ----

func (m *Store) ReserveByID(_ context.Context, id uint64) (*model.TicketReserve, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.st.reserves[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (m *Store) ReservesByOrder(_ context.Context, orderID uint64) ([]model.TicketReserve, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReservesByOrder"); err != nil {
		return nil, err
	}
	var out []model.TicketReserve
	for _, r := range m.st.reserves {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) CreateReserve(_ context.Context, r *model.TicketReserve) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.st.nextID()
	r.CreatedAt = time.Now().UTC()
	m.st.reserves[r.ID] = *r
	return nil
}

func (m *Store) LinkNextReserve(_ context.Context, id, nextID uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.st.reserves[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.NextReserveID != nil {
		return store.ErrConflict
	}
	n := nextID
	r.NextReserveID = &n
	r.TransferAt = &at
	m.st.reserves[id] = r
	return nil
}

// ---- store.Orders ----

func (m *Store) OrderByID(_ context.Context, id uint64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (m *Store) CreateOrder(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = m.st.nextID()
	o.CreatedAt = time.Now().UTC()
	m.st.orders[o.ID] = *o
	return nil
}

func (m *Store) PendingPayments(_ context.Context, createdBefore, now time.Time) ([]model.OrderPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("PendingPayments"); err != nil {
		return nil, err
	}
	var out []model.OrderPayment
	for _, p := range m.st.payments {
		if p.Progress != model.PaymentRequesting || p.CreatedAt.After(createdBefore) {
			continue
		}
		o := m.st.orders[p.OrderID]
		sale, ok := m.st.sales[o.SeatSaleID]
		if !ok || !sale.InSalesPeriod(now) {
			continue
		}
		out = append(out, model.OrderPayment{Order: o, Payment: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Payment.ID < out[j].Payment.ID })
	return out, nil
}

func (m *Store) RefundablePayments(_ context.Context, seatSaleID uint64) ([]model.OrderPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RefundablePayments"); err != nil {
		return nil, err
	}
	var out []model.OrderPayment
	for _, p := range m.st.payments {
		if p.Progress != model.PaymentCaptured && p.Progress != model.PaymentRequesting {
			continue
		}
		o := m.st.orders[p.OrderID]
		if o.SeatSaleID != seatSaleID || o.ReturnedAt != nil {
			continue
		}
		out = append(out, model.OrderPayment{Order: o, Payment: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order.ID < out[j].Order.ID })
	return out, nil
}

func (m *Store) AdvancePayment(_ context.Context, paymentID uint64, from, to model.PaymentProgress, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("AdvancePayment"); err != nil {
		return false, err
	}
	p, ok := m.st.payments[paymentID]
	if !ok || p.Progress != from || !from.CanAdvanceTo(to) {
		return false, nil
	}
	p.Progress = to
	switch to {
	case model.PaymentCaptured:
		p.CapturedAt = &at
	case model.PaymentRefunded:
		p.RefundedAt = &at
	}
	m.st.payments[paymentID] = p
	return true, nil
}

func (m *Store) MarkOrderReturned(_ context.Context, orderID uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.ReturnedAt = &at
	m.st.orders[orderID] = o
	return nil
}

func (m *Store) SetOrderRefundError(_ context.Context, orderID uint64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.RefundErrorMessage = &message
	m.st.orders[orderID] = o
	return nil
}

// ---- store.SeatSales ----

func (m *Store) SeatSaleByID(_ context.Context, id uint64) (*model.SeatSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *Store) MarkRefundStarted(_ context.Context, id uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.st.sales[id]
	if !ok {
		return store.ErrNotFound
	}
	if s.RefundAt == nil {
		s.RefundAt = &at
	}
	m.st.sales[id] = s
	return nil
}

func (m *Store) MarkRefundFinished(_ context.Context, id uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.st.sales[id]
	if !ok {
		return store.ErrNotFound
	}
	s.RefundEndAt = &at
	m.st.sales[id] = s
	return nil
}

// ---- store.TicketLogs ----

func (m *Store) LatestTicketLog(_ context.Context, ticketID uint64) (*model.TicketLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.st.logs) - 1; i >= 0; i-- {
		if m.st.logs[i].TicketID == ticketID {
			l := m.st.logs[i]
			return &l, nil
		}
	}
	return nil, nil
}

func (m *Store) TicketLogs(_ context.Context, ticketID uint64) ([]model.TicketLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TicketLog
	for _, l := range m.st.logs {
		if l.TicketID == ticketID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Store) CreateTicketLog(_ context.Context, l *model.TicketLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateTicketLog"); err != nil {
		return err
	}
	l.ID = m.st.nextID()
	l.CreatedAt = time.Now().UTC()
	m.st.logs = append(m.st.logs, *l)
	return nil
}

// ---- store.Users ----

func (m *Store) UserByID(_ context.Context, id uint64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *Store) CreateVisitorProfile(_ context.Context, p *model.VisitorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateVisitorProfile"); err != nil {
		return err
	}
	p.ID = m.st.nextID()
	p.CreatedAt = time.Now().UTC()
	m.st.profiles = append(m.st.profiles, *p)
	return nil
}
