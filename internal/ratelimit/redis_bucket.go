package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBucket is a cross-process token bucket. All state (tokens,
// last_update) lives in two Redis keys and every refill-then-take is done by
// a single Lua script so concurrent senders across multiple OS processes
// never race on the refill arithmetic (spec.md §4.1: "Must be safe under
// concurrent callers across multiple OS processes").
type RedisBucket struct {
	client   *redis.Client
	key      string
	capacity float64
	rate     float64
}

// NewRedisBucket creates a bucket under a fixed key shared by every sender
// process. The bucket starts full the first time any process touches it.
func NewRedisBucket(client *redis.Client, key string, capacity int, rate float64) *RedisBucket {
	return &RedisBucket{client: client, key: key, capacity: float64(capacity), rate: rate}
}

// takeScript atomically refills then takes n tokens, returning the
// remaining shortfall (0 if the take succeeded) so the caller can compute
// how long to sleep before retrying, mirroring spec.md §4.1's
// "suspend caller for -result/rate seconds" rule.
var takeScript = redis.NewScript(`
local tokensKey = KEYS[1]
local updatedKey = KEYS[2]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local n = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local tokens = tonumber(redis.call("GET", tokensKey))
local lastUpdate = tonumber(redis.call("GET", updatedKey))
if tokens == nil or lastUpdate == nil then
	tokens = capacity
	lastUpdate = now
end

local elapsed = now - lastUpdate
if elapsed < 0 then elapsed = 0 end
tokens = tokens + rate * elapsed
if tokens > capacity then tokens = capacity end

local remaining = tokens - n
local shortfall = 0
if remaining < 0 then
	shortfall = -remaining
else
	tokens = remaining
end

redis.call("SET", tokensKey, tostring(tokens), "EX", 3600)
redis.call("SET", updatedKey, tostring(now), "EX", 3600)

return tostring(shortfall)
`)

func (b *RedisBucket) tokensKey() string  { return b.key + ":tokens" }
func (b *RedisBucket) updatedKey() string { return b.key + ":updated" }

func (b *RedisBucket) Take(ctx context.Context, n int) error {
	for {
		wait, err := b.tryTake(ctx, n)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *RedisBucket) tryTake(ctx context.Context, n int) (time.Duration, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := takeScript.Run(ctx, b.client,
		[]string{b.tokensKey(), b.updatedKey()},
		b.capacity, b.rate, n, now,
	).Text()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: take: %w", err)
	}
	var shortfall float64
	fmt.Sscanf(res, "%g", &shortfall)
	if shortfall <= 0 {
		return 0, nil
	}
	return time.Duration(shortfall/b.rate*float64(time.Second)) + time.Millisecond, nil
}

var peekScript = redis.NewScript(`
local tokensKey = KEYS[1]
local updatedKey = KEYS[2]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call("GET", tokensKey))
local lastUpdate = tonumber(redis.call("GET", updatedKey))
if tokens == nil or lastUpdate == nil then
	return tostring(capacity)
end

local elapsed = now - lastUpdate
if elapsed < 0 then elapsed = 0 end
tokens = tokens + rate * elapsed
if tokens > capacity then tokens = capacity end
return tostring(tokens)
`)

func (b *RedisBucket) Peek(ctx context.Context) (float64, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := peekScript.Run(ctx, b.client,
		[]string{b.tokensKey(), b.updatedKey()},
		b.capacity, b.rate, now,
	).Text()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: peek: %w", err)
	}
	var tokens float64
	fmt.Sscanf(res, "%g", &tokens)
	return tokens, nil
}
