// Package ratelimit implements the gateway's keyed token-bucket admission
// gate. It follows the OCX backend's internal/middleware.RateLimiter in
// keeping per-key state in a map, here guarded by a single mutex for all
// keys, with this gateway's token-bucket refill math in place of a
// sliding window. Bucket state is never evicted; Reset clears it all.
package ratelimit

import (
	"log/slog"
	"sync"

	"github.com/ocx/trustgate/internal/gateway/clock"
)

// Config configures every key's bucket alike. Rate is derived by the
// caller from requests-per-minute (rate = rpm / 60).
type Config struct {
	RatePerSecond float64
	Burst         float64
}

type bucketState struct {
	tokens     float64
	lastUpdate float64
}

// Limiter is a keyed token-bucket rate limiter. The zero value is not
// usable; construct with New.
//
// Failure policy is fail-open: any internal inconsistency (a corrupted
// bucket, a clock that appears to have regressed) results in Admit
// returning true. The limiter is a capacity control, not an
// authorization decision, so availability is preferred over denial here.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
}

// GlobalKey is the default bucket key, matching the source gateway's
// single global bucket.
const GlobalKey = "global"

// New creates a Limiter. If cfg.Burst is zero it defaults to 1.2x the
// rate expressed per minute.
func New(cfg Config, c clock.Clock, logger *slog.Logger) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSecond * 60 * 1.2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		buckets: make(map[string]*bucketState),
		cfg:     cfg,
		clock:   c,
		logger:  logger,
	}
}

// Admit reports whether a request for key should proceed. It mutates the
// bucket's state as a side effect: on success, one token is consumed.
func (l *Limiter) Admit(key string) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("rate limiter panic recovered, failing open", "key", key, "panic", r)
			allowed = true
		}
	}()

	now := l.clock.NowMonotonic()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucketState{tokens: l.cfg.Burst - 1, lastUpdate: now}
		return true
	}

	elapsed := now - st.lastUpdate
	if elapsed < 0 {
		// Clock regression: fail open rather than guess at a refill.
		l.logger.Warn("rate limiter observed clock regression, failing open", "key", key)
		st.lastUpdate = now
		return true
	}

	tokens := st.tokens + elapsed*l.cfg.RatePerSecond
	if tokens > l.cfg.Burst {
		tokens = l.cfg.Burst
	}
	st.lastUpdate = now

	if tokens < 1 {
		st.tokens = tokens
		return false
	}

	st.tokens = tokens - 1
	return true
}

// AdmitGlobal is a convenience wrapper for the default global key used
// when the deployer has not opted into per-principal keying.
func (l *Limiter) AdmitGlobal() bool {
	return l.Admit(GlobalKey)
}

// Reset clears all bucket state. Exposed for tests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucketState)
}

// Stats reports the number of tracked keys, mirroring the OCX backend's
// RateLimiter.Stats shape for observability parity.
func (l *Limiter) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{
		"tracked_keys":    len(l.buckets),
		"rate_per_second": l.cfg.RatePerSecond,
		"burst":           l.cfg.Burst,
	}
}

// RateFromPerMinute converts a requests-per-minute figure to the
// tokens-per-second rate the bucket math operates on.
func RateFromPerMinute(rpm int) float64 {
	return float64(rpm) / 60.0
}
