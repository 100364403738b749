package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNew_Unlimited(t *testing.T) {
	l := New(0, 0)

	for i := 0; i < 100; i++ {
		if !l.Allow(UpstreamMap) {
			t.Fatalf("Allow() = false on call %d, want unlimited", i)
		}
	}

	if err := l.Wait(context.Background(), UpstreamPlayer); err != nil {
		t.Errorf("Wait() returned unexpected error: %v", err)
	}
}

func TestAllow_PerUpstream(t *testing.T) {
	l := New(0.001, 1)

	if !l.Allow(UpstreamMap) {
		t.Fatal("first Allow(map) = false, want true")
	}
	if l.Allow(UpstreamMap) {
		t.Error("second Allow(map) = true, want burst exhausted")
	}

	// Buckets are independent per upstream
	if !l.Allow(UpstreamPlayer) {
		t.Error("first Allow(player) = false, want true")
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(0.001, 1)
	l.Allow(UpstreamMap)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, UpstreamMap); err == nil {
		t.Error("Wait() expected error for exhausted bucket and short deadline, got nil")
	}
}

func TestWait_NilLimiter(t *testing.T) {
	var l *Limiter

	if err := l.Wait(context.Background(), UpstreamMap); err != nil {
		t.Errorf("Wait() on nil limiter returned %v, want nil", err)
	}
	if !l.Allow(UpstreamMap) {
		t.Error("Allow() on nil limiter = false, want true")
	}
}
