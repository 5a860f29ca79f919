package resilience

import (
	"context"
	"math"
	"sync"
	"time"
)

// minWait keeps Wait from spinning on a nearly full token.
const minWait = 10 * time.Millisecond

// RateLimiter is a token bucket. The event dispatcher uses it to cap the
// publish rate towards the topic.
type RateLimiter struct {
	rate  float64 // tokens per second
	burst float64 // bucket size
	now   func() time.Time

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter allows rate events per second with bursts of up to burst.
// The bucket starts full. Non-positive values default to 10/s and a burst
// equal to the rate.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = int(math.Max(1, rate))
	}
	return &RateLimiter{
		rate:   rate,
		burst:  float64(burst),
		now:    time.Now,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN takes n tokens if all of them are available.
func (rl *RateLimiter) AllowN(n int) bool {
	if n <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens < float64(n) {
		return false
	}
	rl.tokens -= float64(n)
	return true
}

// Wait blocks until a token is taken or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := rl.reserve()
		if ok {
			return nil
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reserve takes a token, or reports how long until one is due.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
	if wait < minWait {
		wait = minWait
	}
	return wait, false
}

// refill credits tokens for the time since the last call. Caller holds mu.
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens = math.Min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.rate)
	rl.last = now
}

// Stats returns the configured rate and burst and the tokens available now.
func (rl *RateLimiter) Stats() (rate float64, burst int, available float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.rate, int(rl.burst), rl.tokens
}
