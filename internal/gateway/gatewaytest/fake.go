// Package gatewaytest provides an in-memory payment gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/iliyamo/ticket-reconciler/internal/gateway"
)

// Fake is a scripted gateway.  Charges are registered with Put; errors
// queued with FailNext are returned, in order, before the charge is
// consulted.
type Fake struct {
	mu      sync.Mutex
	charges map[string]*gateway.Charge
	fail    map[string][]error
	calls   map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		charges: map[string]*gateway.Charge{},
		fail:    map[string][]error{},
		calls:   map[string]int{},
	}
}

// Put registers a charge.
func (f *Fake) Put(c gateway.Charge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges[c.ID] = &c
}

// FailNext queues err for the next call of op ("status", "capture" or
// "refund") on chargeID.
func (f *Fake) FailNext(op, chargeID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := op + ":" + chargeID
	f.fail[k] = append(f.fail[k], err)
}

// Calls returns how often op was called for chargeID.
func (f *Fake) Calls(op, chargeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+":"+chargeID]
}

// Charge returns a copy of the stored charge.
func (f *Fake) Charge(id string) gateway.Charge {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.charges[id]; ok {
		return *c
	}
	return gateway.Charge{}
}

func (f *Fake) next(op, chargeID string) error {
	k := op + ":" + chargeID
	f.calls[k]++
	if q := f.fail[k]; len(q) > 0 {
		f.fail[k] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) lookup(chargeID string) (*gateway.Charge, error) {
	c, ok := f.charges[chargeID]
	if !ok {
		return nil, &gateway.Error{StatusCode: 404, Code: "resource_missing", Message: "no such charge"}
	}
	return c, nil
}

func (f *Fake) ChargeStatus(_ context.Context, chargeID string) (*gateway.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("status", chargeID); err != nil {
		return nil, err
	}
	c, err := f.lookup(chargeID)
	if err != nil {
		return nil, err
	}
	out := *c
	return &out, nil
}

func (f *Fake) Capture(_ context.Context, chargeID string, amount uint32) (*gateway.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("capture", chargeID); err != nil {
		return nil, err
	}
	c, err := f.lookup(chargeID)
	if err != nil {
		return nil, err
	}
	if c.Captured {
		return nil, &gateway.Error{StatusCode: 400, Code: gateway.CodeAlreadyCaptured, Message: "charge already captured"}
	}
	if !c.Authorized {
		return nil, &gateway.Error{StatusCode: 400, Code: "not_authorized", Message: "charge is not authorized"}
	}
	c.Captured = true
	c.Amount = amount
	c.Status = "captured"
	out := *c
	return &out, nil
}

func (f *Fake) Refund(_ context.Context, chargeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("refund", chargeID); err != nil {
		return err
	}
	c, err := f.lookup(chargeID)
	if err != nil {
		return err
	}
	if c.Refunded {
		return &gateway.Error{StatusCode: 400, Code: gateway.CodeAlreadyRefunded, Message: "charge already refunded"}
	}
	c.Refunded = true
	c.Status = "refunded"
	return nil
}
