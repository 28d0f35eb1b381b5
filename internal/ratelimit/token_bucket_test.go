package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestTokenBucket_StartsFull(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 3, 1)

	for i := 0; i < 3; i++ {
		if !b.Allow(1) {
			t.Fatalf("allow %d: want true", i)
		}
	}
	if b.Allow(1) {
		t.Fatalf("bucket should be empty")
	}
}

func TestTokenBucket_RefillsAtRate(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 10, 2)

	if !b.Allow(10) {
		t.Fatalf("drain: want true")
	}
	if b.Allow(1) {
		t.Fatalf("want empty after drain")
	}

	clk.Advance(500 * time.Millisecond) // 1 token at 2/s
	if !b.Allow(1) {
		t.Fatalf("want one refilled token")
	}
	if b.Allow(1) {
		t.Fatalf("want empty again")
	}

	clk.Advance(10 * time.Second) // far more than capacity
	if !b.Allow(10) {
		t.Fatalf("want refilled to capacity")
	}
	if b.Allow(1) {
		t.Fatalf("capacity must clamp the refill")
	}
}

func TestTokenBucket_NonPositiveCost(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 0, 0)

	if !b.Allow(0) {
		t.Fatalf("zero cost must always succeed")
	}
	if !b.Allow(-5) {
		t.Fatalf("negative cost must always succeed")
	}
	if b.Allow(1) {
		t.Fatalf("zero-capacity bucket must reject")
	}
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow(1) {
		t.Fatalf("want initial token")
	}

	clk.Advance(-50 * time.Second)
	if b.Allow(1) {
		t.Fatalf("a clock jump backwards must not refill")
	}

	clk.Advance(2 * time.Second)
	if !b.Allow(1) {
		t.Fatalf("refill should resume after the new reference point")
	}
}
