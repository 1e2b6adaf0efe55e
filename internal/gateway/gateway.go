// Package gateway is the core's view of the external payment gateway.
// Every call is safe to retry: the gateway answers a repeated capture or
// refund with an "already" error code instead of acting twice.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeAlreadyCaptured = "already_captured"
	CodeAlreadyRefunded = "already_refunded"
	CodeExpiredToken    = "expired_token"
	CodeInvalidToken    = "invalid_token"
)

// ErrFatal marks a gateway failure that survived the retry policy.
var ErrFatal = errors.New("payment gateway unavailable")

// Charge is the gateway's view of one charge.
type Charge struct {
	ID         string `json:"id"`
	Amount     uint32 `json:"amount"`
	Authorized bool   `json:"authorized"`
	Captured   bool   `json:"captured"`
	Refunded   bool   `json:"refunded"`
	Status     string `json:"status"`
}

// Gateway is the payment gateway contract.
type Gateway interface {
	ChargeStatus(ctx context.Context, chargeID string) (*Charge, error)
	Capture(ctx context.Context, chargeID string, amount uint32) (*Charge, error)
	Refund(ctx context.Context, chargeID string) error
}

// Error is an error reported by the gateway.  StatusCode is zero for
// transport failures.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("gateway transport error: %v", e.Err)
	case e.Code != "":
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying the call may succeed: transport
// failures, gateway internal errors, rate limiting and expired or invalid
// auth tokens.
func (e *Error) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusUnauthorized:
		return e.Code == CodeExpiredToken || e.Code == CodeInvalidToken || e.Code == ""
	}
	return false
}

// Description returns the text stored on an order when a refund fails.
func Description(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		if gwErr.Code != "" {
			return fmt.Sprintf("%s: %s", gwErr.Code, gwErr.Message)
		}
		return gwErr.Message
	}
	return err.Error()
}

// IsTransient reports whether err is a retryable gateway error.
func IsTransient(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Transient()
}

// HasCode reports whether err is a gateway error with the given code.
func HasCode(err error, code string) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Code == code
}

// IsAlreadyCaptured reports whether a capture failed only because the
// charge had been captured before.
func IsAlreadyCaptured(err error) bool { return HasCode(err, CodeAlreadyCaptured) }
