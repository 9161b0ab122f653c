// Package ratelimit implements the Agent API's per-agent token bucket:
// requests_per_minute plus a concurrent-request ceiling, with Prometheus
// counters tracking allow/deny decisions per agent.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the two knobs the Agent API exposes via
// RATE_LIMIT_RPM/RATE_LIMIT_CONCURRENT.
type Config struct {
	RequestsPerMinute int
	MaxConcurrent     int
}

// DefaultConfig matches an Agent API started with no rate-limit env vars
// set: generous enough to never trip in normal single-agent use.
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 600, MaxConcurrent: 16}
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	inFlight   int
}

// Limiter holds one token bucket per agent_id, lazily created on first
// use.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket

	allowed  *prometheus.CounterVec
	denied   *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
}

// New constructs a Limiter. Metrics are registered against reg; pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registry.
func New(cfg Config, reg prometheus.Registerer) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		allowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_agentapi_requests_allowed_total",
			Help: "Requests permitted by the per-agent rate limiter.",
		}, []string{"agent_id"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_agentapi_requests_denied_total",
			Help: "Requests rejected by the per-agent rate limiter.",
		}, []string{"agent_id", "reason"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substrate_agentapi_requests_in_flight",
			Help: "Requests currently in flight per agent.",
		}, []string{"agent_id"}),
	}
	if reg != nil {
		reg.MustRegister(l.allowed, l.denied, l.inFlight)
	}
	return l
}

func (l *Limiter) bucketFor(agentID string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[agentID]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.RequestsPerMinute), lastRefill: time.Now()}
		l.buckets[agentID] = b
	}
	return b
}

// Reservation is returned by Allow on success; the caller must call
// Release exactly once when the request finishes (success or failure).
type Reservation struct {
	limiter *Limiter
	agentID string
	b       *bucket
}

// Release decrements the in-flight counter for this reservation's agent.
func (r Reservation) Release() {
	r.b.mu.Lock()
	r.b.inFlight--
	r.b.mu.Unlock()
	r.limiter.inFlight.WithLabelValues(r.agentID).Dec()
}

// DenyReason identifies which half of the limiter rejected a request.
type DenyReason string

const (
	DenyReasonRate       DenyReason = "rate_limited"
	DenyReasonConcurrent DenyReason = "max_concurrent"
)

// Allow attempts to reserve one request slot for agentID, refilling the
// token bucket continuously based on elapsed time since the last refill.
// On denial it returns (Reservation{}, false, reason).
func (l *Limiter) Allow(agentID string) (Reservation, bool, DenyReason) {
	b := l.bucketFor(agentID)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	b.lastRefill = now
	refillRate := float64(l.cfg.RequestsPerMinute) / 60.0
	b.tokens += elapsed.Seconds() * refillRate
	if cap := float64(l.cfg.RequestsPerMinute); b.tokens > cap {
		b.tokens = cap
	}

	if b.inFlight >= l.cfg.MaxConcurrent {
		l.denied.WithLabelValues(agentID, string(DenyReasonConcurrent)).Inc()
		return Reservation{}, false, DenyReasonConcurrent
	}
	if b.tokens < 1 {
		l.denied.WithLabelValues(agentID, string(DenyReasonRate)).Inc()
		return Reservation{}, false, DenyReasonRate
	}

	b.tokens--
	b.inFlight++
	l.allowed.WithLabelValues(agentID).Inc()
	l.inFlight.WithLabelValues(agentID).Inc()
	return Reservation{limiter: l, agentID: agentID, b: b}, true, ""
}
