package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-reconciler/internal/logging"
)

// RetryPolicy retries transient gateway errors a bounded number of times
// with a fixed delay between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy makes up to three attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: time.Second}

// WithRetry wraps g so that every call follows p.
func WithRetry(g Gateway, p RetryPolicy) Gateway {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return &retrying{next: g, policy: p}
}

type retrying struct {
	next   Gateway
	policy RetryPolicy
}

func (r *retrying) ChargeStatus(ctx context.Context, chargeID string) (*Charge, error) {
	var c *Charge
	err := r.policy.do(ctx, "charge status", chargeID, func() (err error) {
		c, err = r.next.ChargeStatus(ctx, chargeID)
		return err
	})
	return c, err
}

func (r *retrying) Capture(ctx context.Context, chargeID string, amount uint32) (*Charge, error) {
	var c *Charge
	err := r.policy.do(ctx, "capture", chargeID, func() (err error) {
		c, err = r.next.Capture(ctx, chargeID, amount)
		return err
	})
	return c, err
}

func (r *retrying) Refund(ctx context.Context, chargeID string) error {
	return r.policy.do(ctx, "refund", chargeID, func() error {
		return r.next.Refund(ctx, chargeID)
	})
}

// do runs fn until it succeeds, fails with a non-transient error or the
// attempts run out.  Exhausted transient errors are wrapped in ErrFatal.
func (p RetryPolicy) do(ctx context.Context, op, chargeID string, fn func() error) error {
	attempts := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		logging.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"charge_id": chargeID,
			"attempt":   attempts,
		}).Warn("transient gateway error")
		return err
	}, b)
	if err != nil && IsTransient(err) {
		return fmt.Errorf("%w: %s %s after %d attempts: %w", ErrFatal, op, chargeID, attempts, err)
	}
	return err
}
