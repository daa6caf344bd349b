// Package clock provides the single time source threaded through the
// rate limiter, credential verifier and replay suppressor, so that tests
// can inject a deterministic clock instead of wall time.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time abstraction every time-sensitive component depends
// on. Production wires RealClock; tests wire a clockwork.FakeClock.
type Clock interface {
	// Now returns the current wall-clock time, seconds since epoch.
	Now() int64
	// NowMonotonic returns a monotonically non-decreasing seconds value,
	// used for token-bucket refill math so NTP adjustments of wall time
	// cannot starve or over-credit a bucket.
	NowMonotonic() float64
}

type clockworkClock struct {
	c     clockwork.Clock
	start time.Time
}

// New wraps a clockwork.Clock (real or fake) as a Clock.
func New(c clockwork.Clock) Clock {
	return &clockworkClock{c: c, start: c.Now()}
}

// NewReal returns the production clock backed by wall time.
func NewReal() Clock {
	return New(clockwork.NewRealClock())
}

func (c *clockworkClock) Now() int64 {
	return c.c.Now().Unix()
}

func (c *clockworkClock) NowMonotonic() float64 {
	// Since measures elapsed time from the monotonic reading captured in
	// start, so wall-clock steps after New do not affect the result.
	return float64(c.start.UnixNano())/float64(time.Second) + c.c.Since(c.start).Seconds()
}
