package clockid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClockAdvanceAndSet(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFakeClock(base)
	require.True(t, c.Now().Equal(base))

	c.Advance(90 * time.Minute)
	require.True(t, c.Now().Equal(base.Add(90*time.Minute)))

	later := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	require.True(t, c.Now().Equal(later))
}

func TestSystemClockReturnsUTC(t *testing.T) {
	var c SystemClock
	require.Equal(t, time.UTC, c.Now().Location())
}
