// Package ratelimit implements a Redis sliding-window limiter.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// slidingWindowScript trims entries older than the window, then admits the
// call only while fewer than limit entries remain.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

return {1, now + window}
`)

type Limiter struct {
	client redis.Scripter
	now    func() time.Time
}

func New(client redis.Scripter) *Limiter {
	return &Limiter{client: client, now: time.Now}
}

// Allow records one hit under key. When Redis cannot be reached the hit is
// allowed and a warning is logged; matching must not stop because the
// limiter is down.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	now := l.now()

	result, err := slidingWindowScript.Run(
		ctx,
		l.client,
		[]string{key},
		now.Unix(),
		int64(window.Seconds()),
		limit,
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
		return true, now.Add(window)
	}
	if len(result) != 2 {
		log.Warn().Str("key", key).Msg("unexpected rate limit result, allowing request")
		return true, now.Add(window)
	}

	return result[0] == 1, time.Unix(result[1], 0)
}
