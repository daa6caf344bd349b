package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestClockworkClock_NowTracksFakeClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	c := New(fake)

	assert.Equal(t, int64(1_700_000_000), c.Now())

	fake.Advance(90 * time.Second)
	assert.Equal(t, int64(1_700_000_090), c.Now())
}

func TestClockworkClock_NowMonotonicAdvancesWithClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	c := New(fake)

	first := c.NowMonotonic()
	fake.Advance(5 * time.Second)
	second := c.NowMonotonic()

	assert.InDelta(t, 5.0, second-first, 0.0001)
}
