package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-reconciler/internal/config"
	"github.com/iliyamo/ticket-reconciler/internal/logging"
)

// bucketScript refills the bucket by whole intervals, takes one token if
// available and returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last = tonumber(state[2])
    if tokens == nil or last == nil then
        tokens = capacity
        last = now_ms
    end

    if interval_ms > 0 and refill > 0 then
        local n = math.floor(math.max(0, now_ms - last) / interval_ms)
        if n > 0 then
            tokens = math.min(capacity, tokens + n * refill)
            last = last + n * interval_ms
        end
    end

    local allowed = 0
    local wait = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        wait = math.max(0, interval_ms - (now_ms - last))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last)
    redis.call('EXPIRE', key, ttl)
    return { allowed, tokens, wait }
`)

// decision is the outcome of taking a token.
type decision struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

type tokenBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	now func() time.Time
}

func (b *tokenBucket) take(ctx context.Context, key string) (decision, error) {
	res, err := bucketScript.Run(ctx, b.rdb, []string{key},
		b.now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return decision{}, err
	}
	if len(res) != 3 {
		return decision{}, fmt.Errorf("unexpected bucket script result %v", res)
	}
	return decision{
		allowed:    res[0] == 1,
		remaining:  res[1],
		retryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits requests with a token bucket kept in Redis.  Gate
// devices scan in bursts, so the bucket is keyed per user and route by
// default.  Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	bucket := &tokenBucket{cfg: cfg, rdb: rdb, now: time.Now}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := rateKey(cfg, c)
			d, err := bucket.take(ctx, key)
			if err != nil {
				if cfg.Debug {
					logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("ratelimit: redis error")
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.allowed {
				return next(c)
			}

			secs := int(math.Ceil(d.retryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"retry_after": secs,
			})
		}
	}
}

// rateKey builds the bucket key for the configured strategy.  Unknown
// strategies key on IP, user and route together.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	user := userKey(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", user)
	case "route":
		parts = append(parts, "route", route)
	case "user_route":
		parts = append(parts, "user", user, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", user, "route", route)
	}
	return strings.Join(parts, ":")
}
