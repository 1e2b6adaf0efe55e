package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reconciler/internal/config"
	"github.com/iliyamo/ticket-reconciler/internal/middleware"
)

const secret = "s3cret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims middleware.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func claims(sub, role, device string, exp time.Time) middleware.Claims {
	return middleware.Claims{
		Role:     role,
		DeviceID: device,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

// newServer mounts an endpoint that echoes the identity JWTAuth stored.
func newServer(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, _ := middleware.UserID(c)
		out := echo.Map{"user_id": id, "role": middleware.Role(c)}
		if d := middleware.DeviceID(c); d != nil {
			out["device_id"] = *d
		}
		return c.JSON(http.StatusOK, out)
	}, mw...)
	return e
}

func get(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newServer(middleware.JWTAuth(secret))
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"valid", sign(t, jwt.SigningMethodHS256, []byte(secret), claims("42", middleware.RoleGate, "gate-1", future)), http.StatusOK},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), claims("42", middleware.RoleGate, "", future)), http.StatusUnauthorized},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), claims("42", middleware.RoleGate, "", time.Now().Add(-time.Minute))), http.StatusUnauthorized},
		{"other algorithm", sign(t, jwt.SigningMethodHS512, []byte(secret), claims("42", middleware.RoleGate, "", future)), http.StatusUnauthorized},
		{"non-numeric subject", sign(t, jwt.SigningMethodHS256, []byte(secret), claims("kim", middleware.RoleGate, "", future)), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, get(e, tt.token).Code)
		})
	}

	rec := get(e, tests[1].token)
	assert.JSONEq(t, `{"user_id":42,"role":"gate","device_id":"gate-1"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := newServer(middleware.JWTAuth(secret), middleware.RequireRole(middleware.RoleAdmin))
	future := time.Now().Add(time.Hour)

	rec := get(e, sign(t, jwt.SigningMethodHS256, []byte(secret), claims("1", middleware.RoleCustomer, "", future)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(e, sign(t, jwt.SigningMethodHS256, []byte(secret), claims("1", middleware.RoleAdmin, "", future)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "user_route",
		Prefix:         "rl",
	}
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), claims("7", middleware.RoleGate, "", time.Now().Add(time.Hour)))
	e := newServer(middleware.JWTAuth(secret), middleware.NewTokenBucket(cfg, rdb))

	assert.Equal(t, http.StatusOK, get(e, token).Code)
	assert.Equal(t, http.StatusOK, get(e, token).Code)
	rec := get(e, token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := sign(t, jwt.SigningMethodHS256, []byte(secret), claims("8", middleware.RoleGate, "", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusOK, get(e, other).Code, "buckets are per user")
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, Prefix: "rl"}
	e := newServer(middleware.NewTokenBucket(cfg, rdb))
	assert.Equal(t, http.StatusOK, get(e, "").Code)
	assert.Equal(t, http.StatusOK, get(e, "").Code)
}
