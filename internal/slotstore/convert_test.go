package slotstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoundaryUTCConvertsISTToUTC(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tod := time.Date(0, 1, 1, 14, 0, 0, 0, time.UTC) // 14:00 IST

	got := boundaryUTC(date, tod, ist)
	want := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC) // IST is UTC+5:30
	require.True(t, got.Equal(want), "got %v want %v", got, want)
}

func TestOverlapsHalfOpenIntervals(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.True(t, overlaps(base, base.Add(10*time.Minute), base.Add(5*time.Minute), base.Add(15*time.Minute)))
	require.False(t, overlaps(base, base.Add(10*time.Minute), base.Add(10*time.Minute), base.Add(20*time.Minute)))
	require.False(t, overlaps(base, base.Add(10*time.Minute), base.Add(-10*time.Minute), base))
}
