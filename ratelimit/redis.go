package ratelimit

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "useradmin:rl:"

// incrScript increments the counter and starts the window on the first hit.
// It returns the counter and the remaining window in milliseconds.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter keeps counters in Redis keys that expire with the window.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.UniversalClient, cfg Config) (*RedisLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{redis: client, config: cfg}, nil
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (Result, error) {
	res, err := incrScript.Run(ctx, l.redis, []string{redisKeyPrefix + key}, l.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, apperrors.Unavailable(err)
	}
	if len(res) != 2 {
		return Result{}, apperrors.Wrapf(apperrors.ErrStoreUnavailable, "[RedisLimiter Check] unexpected script reply %v", res)
	}
	return newResult(l.config, int(res[0]), time.Duration(res[1])*time.Millisecond), nil
}
