package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwclock "github.com/ocx/trustgate/internal/gateway/clock"
)

func newLimiterForTest(t *testing.T, rps, burst float64) (*Limiter, clockwork.FakeClock) {
	t.Helper()
	fake := clockwork.NewFakeClock()
	l := New(Config{RatePerSecond: rps, Burst: burst}, gwclock.New(fake), nil)
	return l, fake
}

func TestLimiter_FirstRequestAlwaysAdmitted(t *testing.T) {
	l, _ := newLimiterForTest(t, 1, 5)
	assert.True(t, l.Admit("k"))
}

func TestLimiter_BurstThenExhausted(t *testing.T) {
	l, _ := newLimiterForTest(t, 1, 3)

	// Burst-1 tokens remain after the first admit (burst=3 -> 2 left).
	require.True(t, l.Admit("k"))
	require.True(t, l.Admit("k"))
	require.True(t, l.Admit("k"))
	assert.False(t, l.Admit("k"), "fourth immediate request should exceed burst")
}

func TestLimiter_RefillsOverTime(t *testing.T) {
	l, fake := newLimiterForTest(t, 10, 1) // 10 tokens/sec, burst 1

	require.True(t, l.Admit("k"))
	assert.False(t, l.Admit("k"), "bucket should be empty immediately after consuming the only token")

	fake.Advance(200 * time.Millisecond) // 2 tokens worth at 10/s
	assert.True(t, l.Admit("k"), "bucket should have refilled enough for one more token")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newLimiterForTest(t, 1, 1)

	require.True(t, l.Admit("a"))
	assert.False(t, l.Admit("a"))
	assert.True(t, l.Admit("b"), "a separate key must have its own bucket")
}

func TestLimiter_ConcurrentAdmitNeverExceedsBurst(t *testing.T) {
	l, _ := newLimiterForTest(t, 0, 50) // no refill, so exactly burst admits should succeed

	const n = 500
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if l.Admit(GlobalKey) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted, "exactly burst-many concurrent requests should be admitted with no refill")
}

func TestRateFromPerMinute(t *testing.T) {
	assert.InDelta(t, 100.0/60.0, RateFromPerMinute(100), 0.0001)
}
