package textgen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter gates generation requests. Allow consumes one token when it
// returns true.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter applies an in-process token bucket shared across all
// callers of one Generator. Suitable for single-instance deployments.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter allows rps sustained requests per second with the
// given burst.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	return &LocalLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}

// redisTokenBucketScript runs the token bucket refill-and-consume cycle
// atomically in Redis, keyed per caller.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = current unix timestamp (seconds)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisLimiter shares one token bucket per key across analyzer
// instances, so a horizontally scaled deployment still respects the
// backend's aggregate quota.
type RedisLimiter struct {
	client *redis.Client
	rps    float64
	burst  int
}

// NewRedisLimiter connects to Redis at addr and enforces rps sustained
// requests per second with the given burst per key.
func NewRedisLimiter(addr, password string, db int, rps float64, burst int) *RedisLimiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLimiter{client: rdb, rps: rps, burst: burst}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, l.client,
		[]string{"textgen_limit:" + key}, l.rps, l.burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("textgen: redis limiter: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("textgen: unexpected limiter script result")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// LimitedGenerator rejects requests with ErrRateLimited when the
// limiter is exhausted instead of queueing them.
type LimitedGenerator struct {
	inner   Generator
	limiter Limiter
	key     string
}

// WithLimit decorates gen with limiter under the given bucket key.
func WithLimit(gen Generator, limiter Limiter, key string) *LimitedGenerator {
	return &LimitedGenerator{inner: gen, limiter: limiter, key: key}
}

func (g *LimitedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ok, err := g.limiter.Allow(ctx, g.key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrRateLimited
	}
	return g.inner.Generate(ctx, req)
}
