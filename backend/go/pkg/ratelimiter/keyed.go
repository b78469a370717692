package ratelimiter

import (
	"sync"
	"time"
)

// KeyedTokenBucket keeps one TokenBucket per key. Buckets that have refilled
// completely carry no state worth keeping and are dropped by Sweep.
type KeyedTokenBucket struct {
	rate     float64
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewKeyedTokenBucket creates a per-key limiter with the given refill rate and burst.
func NewKeyedTokenBucket(rate float64, capacity int) *KeyedTokenBucket {
	return &KeyedTokenBucket{
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
		buckets:  make(map[string]*TokenBucket),
	}
}

// AllowKey consumes a token from the bucket of key.
func (k *KeyedTokenBucket) AllowKey(key string) bool {
	k.mu.Lock()
	b, ok := k.buckets[key]
	if !ok {
		b = newTokenBucket(k.rate, k.capacity, k.now)
		k.buckets[key] = b
	}
	k.mu.Unlock()
	return b.Allow()
}

// Sweep removes full buckets and returns how many were removed.
func (k *KeyedTokenBucket) Sweep() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for key, b := range k.buckets {
		if b.full() {
			delete(k.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *KeyedTokenBucket) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
