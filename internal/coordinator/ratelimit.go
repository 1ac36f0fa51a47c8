package coordinator

import (
	"sync"
	"time"
)

// TokenBucket throttles inbound frames on one connection. The bucket starts
// full at burst capacity and refills continuously at refillPerSecond.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	refill   float64
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket builds a bucket with the provided burst capacity and refill
// rate. A nil clock falls back to time.Now.
func NewTokenBucket(burst int, refillPerSecond float64, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	b := &TokenBucket{
		capacity: float64(burst),
		tokens:   float64(burst),
		refill:   refillPerSecond,
		now:      now,
	}
	b.last = now()
	return b
}

// Allow consumes one token when available and reports whether the frame may
// proceed.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	//1.- Credit tokens for the elapsed interval, clamped to the burst capacity.
	current := b.now()
	elapsed := current.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refill
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.last = current
	//2.- Spend a token when one is available; otherwise the frame is dropped.
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
