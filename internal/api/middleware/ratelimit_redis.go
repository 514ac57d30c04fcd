package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed window counter. Returns {count, pttl}.
const fixedWindowScript = `
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
`

// RedisLimiter shares a fixed-window limit across server instances.
type RedisLimiter struct {
	client   *redis.Client
	script   *redis.Script
	requests int
	window   time.Duration
	prefix   string
}

func NewRedisLimiter(client *redis.Client, prefix string, requests int, window time.Duration) *RedisLimiter {
	if requests <= 0 {
		requests = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:   client,
		script:   redis.NewScript(fixedWindowScript),
		requests: requests,
		window:   window,
		prefix:   prefix,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil || l.client == nil {
		return Decision{}, errors.New("redis rate limiter not configured")
	}

	res, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) < 2 {
		return Decision{}, errors.New("invalid rate limit script response")
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	remaining := l.requests - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= l.requests,
		Limit:     l.requests,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}
