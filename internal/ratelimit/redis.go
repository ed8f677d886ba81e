package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket state lives in redis so every proxy replica enforcing a service's
// limit draws from the same bucket. One hash per bucket key
// ("rl:<service>:ip:<ip>"), refilled lazily on each check; a hard five-minute
// expiry ages out buckets for clients that stopped sending.
const bucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local idle = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (idle / 1000.0) * rate)
  ts = now
end

local allowed = 0
local retry_ms = 0

if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
else
  local missing = cost - tokens
  if rate > 0 then
    retry_ms = math.floor((missing / rate) * 1000.0)
  else
    retry_ms = 1000
  end
end

redis.call("HSET", key, "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", key, 300000)
return {allowed, tokens, retry_ms}
`

type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, rps float64, burst float64, cost float64) (Decision, error) {
	now := time.Now().UnixMilli()
	res, err := r.rdb.Eval(ctx, bucketScript, []string{key}, now, rps, burst, cost).Result()
	if err != nil {
		return Decision{}, err
	}
	arr, ok := res.([]any)
	if !ok || len(arr) != 3 {
		return Decision{}, redis.Nil
	}

	dec := Decision{Allowed: toInt(arr[0]) == 1, Remaining: toFloat(arr[1])}
	if !dec.Allowed {
		dec.RetryAfterSeconds = int((toInt(arr[2]) + 999) / 1000)
	}
	return dec, nil
}

func (r *RedisLimiter) Close() error { return r.rdb.Close() }

func toInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
