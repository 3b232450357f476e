package admission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript runs the purge, count and append steps atomically on a
// sorted set scored by unix milliseconds.
//
// KEYS[1] history key
// ARGV[1] dayStart ms, ARGV[2] now ms, ARGV[3] quota, ARGV[4] member, ARGV[5] ttl ms
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
end
return 0
`)

// RedisHistory shares request history between engine instances. Keys expire
// two days after their last admission, which bounds memory unlike
// MemoryHistory.
type RedisHistory struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ HistoryStore = (*RedisHistory)(nil)

type RedisOption func(*RedisHistory)

func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisHistory) { r.prefix = strings.Trim(prefix, ":") }
}

func WithKeyTTL(d time.Duration) RedisOption {
	return func(r *RedisHistory) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func NewRedisHistory(rdb redis.UniversalClient, opts ...RedisOption) *RedisHistory {
	r := &RedisHistory{
		rdb:    rdb,
		prefix: "admission",
		ttl:    48 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisHistory) Admit(ctx context.Context, subjectID string, now, dayStart time.Time, quota int) (bool, error) {
	key := r.prefix + ":" + subjectID
	n, err := admitScript.Run(ctx, r.rdb, []string{key},
		dayStart.UnixMilli(),
		now.UnixMilli(),
		quota,
		uuid.NewString(),
		r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("admission script for %s: %w", subjectID, err)
	}
	return n == 1, nil
}
