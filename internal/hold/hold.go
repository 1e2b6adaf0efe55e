// Package hold keeps the transient claim a checkout places on a ticket.
// A hold is a Redis string keyed by ticket ID that expires on its own; it
// is only ever created or removed through the ledger.
package hold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-reconciler/internal/model"
)

// releaseScript deletes a hold only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
	local v = redis.call('GET', KEYS[1])
	if not v then
		return 0
	end
	local ok, hold = pcall(cjson.decode, v)
	if ok and hold['holder'] == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return -1
`)

// ErrNotHolder is returned by Release when the hold belongs to someone else.
var ErrNotHolder = errors.New("hold belongs to another holder")

// RedisStore stores holds in Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a RedisStore using keys of the form
// "<prefix>:ticket:<id>".
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "hold"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(ticketID uint64) string {
	return fmt.Sprintf("%s:ticket:%d", s.prefix, ticketID)
}

// Acquire places a hold for holder that expires after ttl.  It reports
// false, with no error, when another hold already exists.
func (s *RedisStore) Acquire(ctx context.Context, ticketID uint64, holder string, ttl time.Duration) (*model.TicketHold, bool, error) {
	h := &model.TicketHold{
		TicketID:  ticketID,
		Holder:    holder,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().UTC().Add(ttl),
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, false, err
	}
	ok, err := s.rdb.SetNX(ctx, s.key(ticketID), b, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire hold on ticket %d: %w", ticketID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return h, true, nil
}

// Get returns the active hold on a ticket, or nil when there is none.
func (s *RedisStore) Get(ctx context.Context, ticketID uint64) (*model.TicketHold, error) {
	v, err := s.rdb.Get(ctx, s.key(ticketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hold on ticket %d: %w", ticketID, err)
	}
	var h model.TicketHold
	if err := json.Unmarshal(v, &h); err != nil {
		return nil, fmt.Errorf("decode hold on ticket %d: %w", ticketID, err)
	}
	return &h, nil
}

// Release removes holder's hold.  Releasing a hold that no longer exists is
// not an error.
func (s *RedisStore) Release(ctx context.Context, ticketID uint64, holder string) error {
	n, err := releaseScript.Run(ctx, s.rdb, []string{s.key(ticketID)}, holder).Int64()
	if err != nil {
		return fmt.Errorf("release hold on ticket %d: %w", ticketID, err)
	}
	if n < 0 {
		return ErrNotHolder
	}
	return nil
}
