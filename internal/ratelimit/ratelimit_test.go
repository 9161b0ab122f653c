package ratelimit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestLimiter(cfg Config) *Limiter {
	return New(cfg, prometheus.NewRegistry())
}

func TestAllowGrantsUpToBucketCapacity(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 2, MaxConcurrent: 10})

	for i := 0; i < 2; i++ {
		if _, ok, _ := l.Allow("agent-1"); !ok {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if _, ok, reason := l.Allow("agent-1"); ok || reason != DenyReasonRate {
		t.Fatalf("expected third request denied for rate, got ok=%v reason=%v", ok, reason)
	}
}

func TestAllowEnforcesMaxConcurrentIndependentlyOfTokens(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 1000, MaxConcurrent: 1})

	res, ok, _ := l.Allow("agent-1")
	if !ok {
		t.Fatal("expected first request allowed")
	}
	if _, ok, reason := l.Allow("agent-1"); ok || reason != DenyReasonConcurrent {
		t.Fatalf("expected second concurrent request denied, got ok=%v reason=%v", ok, reason)
	}

	res.Release()
	if _, ok, _ := l.Allow("agent-1"); !ok {
		t.Fatal("expected request allowed after release")
	}
}

func TestAllowTracksAgentsIndependently(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 1, MaxConcurrent: 10})

	if _, ok, _ := l.Allow("agent-1"); !ok {
		t.Fatal("expected agent-1's first request allowed")
	}
	if _, ok, _ := l.Allow("agent-1"); ok {
		t.Fatal("expected agent-1's second request denied")
	}
	if _, ok, _ := l.Allow("agent-2"); !ok {
		t.Fatal("expected agent-2 to have its own independent bucket")
	}
}

func TestDefaultConfigIsPermissive(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 || cfg.MaxConcurrent <= 0 {
		t.Fatalf("expected positive defaults, got %+v", cfg)
	}
}
