package ratelimiter

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	tb := newTokenBucket(1, 2, clock.Now)

	if !tb.Allow() || !tb.Allow() {
		t.Fatal("first two requests should fit in the burst")
	}
	if tb.Allow() {
		t.Fatal("third request should be limited")
	}

	clock.t = clock.t.Add(time.Second)
	if !tb.Allow() {
		t.Error("one token should have been refilled after 1s")
	}
	if tb.Allow() {
		t.Error("only one token should have been refilled")
	}
}

func TestTokenBucket_CapsAtCapacity(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	tb := newTokenBucket(10, 3, clock.Now)
	clock.t = clock.t.Add(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if tb.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed = %d, want 3", allowed)
	}
}

func TestKeyedTokenBucket_IndependentKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	k := NewKeyedTokenBucket(0.5, 1)
	k.now = clock.Now

	if !k.AllowKey("alice") {
		t.Fatal("alice's first request should pass")
	}
	if k.AllowKey("alice") {
		t.Fatal("alice's second request should be limited")
	}
	if !k.AllowKey("bob") {
		t.Fatal("bob must not be affected by alice")
	}
	if k.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", k.Len())
	}

	clock.t = clock.t.Add(2 * time.Second)
	if n := k.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if k.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", k.Len())
	}
}
