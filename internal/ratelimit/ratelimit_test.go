package ratelimit

import (
	"testing"
	"time"
)

func TestAllowPermitsUpToLimit(t *testing.T) {
	w := New(3, time.Second)
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		if !w.Allow(now) {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	if w.Allow(now) {
		t.Fatal("4th hit in the same instant should be rejected")
	}
}

func TestAllowRecoversAfterWindowSlides(t *testing.T) {
	w := New(2, time.Second)
	base := time.Unix(0, 0)
	if !w.Allow(base) || !w.Allow(base) {
		t.Fatal("first two hits should be allowed")
	}
	if w.Allow(base.Add(100 * time.Millisecond)) {
		t.Fatal("3rd hit within the window should be rejected")
	}
	if !w.Allow(base.Add(1100 * time.Millisecond)) {
		t.Fatal("hit after the window slides past should be allowed")
	}
}
