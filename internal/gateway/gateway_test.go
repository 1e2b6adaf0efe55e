package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reconciler/internal/gateway"
)

func TestHTTPClient_ChargeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "sk_test", user)
		assert.Equal(t, "/v1/charges/ch_1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "ch_1", "amount": 3000, "authorized": true, "status": "authorized",
		})
	}))
	defer srv.Close()

	c := gateway.NewHTTPClient(srv.URL, "sk_test", time.Second)
	ch, err := c.ChargeStatus(context.Background(), "ch_1")
	require.NoError(t, err)
	assert.True(t, ch.Authorized)
	assert.False(t, ch.Captured)
	assert.Equal(t, uint32(3000), ch.Amount)
}

func TestHTTPClient_CaptureErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/charges/ch_1/capture", r.URL.Path)
		var body map[string]uint32
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, uint32(1500), body["amount"])
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"already_captured","message":"charge already captured"}}`))
	}))
	defer srv.Close()

	_, err := gateway.NewHTTPClient(srv.URL, "sk", time.Second).Capture(context.Background(), "ch_1", 1500)
	require.Error(t, err)
	assert.True(t, gateway.IsAlreadyCaptured(err))
	assert.False(t, gateway.IsTransient(err))
	assert.Equal(t, "already_captured: charge already captured", gateway.Description(err))
}

func TestErrorTransient(t *testing.T) {
	cases := []struct {
		name string
		err  *gateway.Error
		want bool
	}{
		{"transport", &gateway.Error{Err: errors.New("connection reset")}, true},
		{"server error", &gateway.Error{StatusCode: 503}, true},
		{"rate limited", &gateway.Error{StatusCode: 429}, true},
		{"expired token", &gateway.Error{StatusCode: 401, Code: gateway.CodeExpiredToken}, true},
		{"bad request", &gateway.Error{StatusCode: 400, Code: "invalid_amount"}, false},
		{"not found", &gateway.Error{StatusCode: 404}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Transient())
		})
	}
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := gateway.WithRetry(gateway.NewHTTPClient(srv.URL, "sk", time.Second),
		gateway.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond})
	require.NoError(t, g.Refund(context.Background(), "ch_1"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWithRetry_ExhaustedIsFatal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := gateway.WithRetry(gateway.NewHTTPClient(srv.URL, "sk", time.Second),
		gateway.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond})
	_, err := g.ChargeStatus(context.Background(), "ch_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrFatal)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWithRetry_PermanentErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"already_refunded","message":"done"}`))
	}))
	defer srv.Close()

	g := gateway.WithRetry(gateway.NewHTTPClient(srv.URL, "sk", time.Second),
		gateway.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond})
	err := g.Refund(context.Background(), "ch_1")
	require.Error(t, err)
	assert.True(t, gateway.HasCode(err, gateway.CodeAlreadyRefunded))
	assert.NotErrorIs(t, err, gateway.ErrFatal)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
