package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBucket(rate float64, burst int) (*TokenBucket, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tb := NewTokenBucket(rate, burst)
	tb.now = clock.now
	tb.last = clock.t
	return tb, clock
}

func TestTokenBucketBurstThenRefill(t *testing.T) {
	tb, clock := newTestBucket(2, 3)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if tb.Allow() {
		t.Fatal("request allowed past burst")
	}

	clock.t = clock.t.Add(500 * time.Millisecond)
	if !tb.Allow() {
		t.Fatal("token not refilled after 1/rate")
	}
	if tb.Allow() {
		t.Fatal("refill overshot")
	}

	clock.t = clock.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("refill not capped at burst, request %d denied", i)
		}
	}
	if tb.Allow() {
		t.Fatal("refill exceeded burst")
	}
}

func TestTokenBucketMinimumBurst(t *testing.T) {
	tb, _ := newTestBucket(1, 0)
	if !tb.Allow() {
		t.Fatal("zero burst should still admit one request")
	}
}

func TestTokenBucketWaitCanceled(t *testing.T) {
	tb, _ := newTestBucket(0, 1)
	if !tb.Allow() {
		t.Fatal("first request denied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(100, 1)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait took %v", elapsed)
	}
}
