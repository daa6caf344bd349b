// Package replay implements at-most-once enforcement over credential
// IDs (component C4). The locking and periodic-sweep shape follows the
// OCX backend's internal/security.TokenBroker.SweepExpired and
// internal/middleware.RateLimiter.cleanup: a single mutex around the
// critical section, plus a background ticker that evicts entries whose
// expiry has passed.
package replay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/trustgate/internal/gateway/clock"
)

// Config configures eviction behavior.
type Config struct {
	MaxSize           int
	PurgeInterval     time.Duration
	ClockDriftSeconds int64
}

// Suppressor is an in-memory set of seen credential IDs with expirations.
// Fail-closed: any internal failure causes CheckAndRecord to report a
// replay (true) rather than silently admitting an unverifiable jti.
type Suppressor struct {
	mu      sync.Mutex
	seen    map[string]int64 // jti -> exp
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	stopCh  chan struct{}
	stopped bool
}

// New creates a Suppressor and starts its background purge loop if
// cfg.PurgeInterval > 0. Call Stop to release the goroutine.
func New(cfg Config, c clock.Clock, logger *slog.Logger) *Suppressor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Suppressor{
		seen:   make(map[string]int64),
		cfg:    cfg,
		clock:  c,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	if cfg.PurgeInterval > 0 {
		go s.purgeLoop()
	}
	return s
}

// CheckAndRecord reports whether jti has already been recorded
// (replay==true), recording it if not. An empty jti is always treated as
// a replay (no jti means deny). The check and
// insert happen under a single critical section so concurrent identical
// jtis yield exactly one false and the rest true.
func (s *Suppressor) CheckAndRecord(jti string, exp int64) (replay bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("replay suppressor panic recovered, failing closed", "panic", r)
			replay = true
		}
	}()

	if jti == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[jti]; ok {
		return true
	}

	s.seen[jti] = exp
	if s.cfg.MaxSize > 0 && len(s.seen) > s.cfg.MaxSize {
		s.purgeLocked()
	}
	return false
}

// Size returns the current number of tracked jtis.
func (s *Suppressor) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Stop halts the background purge loop. Safe to call multiple times.
func (s *Suppressor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
}

func (s *Suppressor) purgeLoop() {
	ticker := time.NewTicker(s.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.purgeLocked()
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// purgeLocked removes entries whose exp has passed, accounting for the
// same clock-drift tolerance the verifier applies: a jti is only evicted
// once it could not possibly pass verification again, i.e. once
// now > exp + clock_drift. Must be called with s.mu held.
func (s *Suppressor) purgeLocked() {
	now := s.clock.Now()
	for jti, exp := range s.seen {
		if now > exp+s.cfg.ClockDriftSeconds {
			delete(s.seen, jti)
		}
	}
}
