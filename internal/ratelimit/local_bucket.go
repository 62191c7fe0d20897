package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LocalBucket is a mutex-protected, single-process token bucket. It backs
// deployments with no Redis configured (config.RedisConfig.Addr == "");
// spec.md §9 allows a single-process runtime where "shared state ... lives
// in ... the token bucket" without requiring that state to cross a process
// boundary.
type LocalBucket struct {
	mu         sync.Mutex
	capacity   float64
	rate       float64
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

// NewLocalBucket creates a bucket starting full.
func NewLocalBucket(capacity int, rate float64) *LocalBucket {
	return &LocalBucket{
		capacity:   float64(capacity),
		rate:       rate,
		tokens:     float64(capacity),
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

func (b *LocalBucket) Take(ctx context.Context, n int) error {
	for {
		wait, ok := b.tryTake(n)
		if ok {
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

// tryTake attempts to take n tokens. On success returns (0, true). On
// failure it returns the duration the caller should wait before retrying,
// computed as -shortfall/rate (spec.md §4.1).
func (b *LocalBucket) tryTake(n int) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens = refill(b.tokens, b.rate, b.capacity, now.Sub(b.lastUpdate))
	b.lastUpdate = now

	remaining := b.tokens - float64(n)
	if remaining >= 0 {
		b.tokens = remaining
		return 0, true
	}
	wait := time.Duration(-remaining/b.rate*float64(time.Second)) + time.Millisecond
	return wait, false
}

func (b *LocalBucket) Peek(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.tokens = refill(b.tokens, b.rate, b.capacity, now.Sub(b.lastUpdate))
	b.lastUpdate = now
	return b.tokens, nil
}
