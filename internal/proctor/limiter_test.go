package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterRequiresHold(t *testing.T) {
	l := NewWarningLimiter()
	require.False(t, l.Observe(KindMultiplePeople, ts(0)))
	require.False(t, l.Observe(KindMultiplePeople, ts(1000)))
	require.True(t, l.Observe(KindMultiplePeople, ts(2000)))
}

func TestLimiterDedupWindow(t *testing.T) {
	// Spec scenario S5: verdicts held and surfacing at t=10s, t=12s,
	// t=21s must persist warnings at t=10s and t=21s only.
	l := NewWarningLimiter()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.False(t, l.Observe(KindMultiplePeople, base.Add(8*time.Second)))
	require.True(t, l.Observe(KindMultiplePeople, base.Add(10*time.Second)))
	require.False(t, l.Observe(KindMultiplePeople, base.Add(12*time.Second)))
	require.True(t, l.Observe(KindMultiplePeople, base.Add(21*time.Second)))
}

func TestLimiterKindsAreIndependent(t *testing.T) {
	l := NewWarningLimiter()
	require.False(t, l.Observe(KindNoPerson, ts(0)))
	require.False(t, l.Observe(KindPhoneDetected, ts(0)))
	require.True(t, l.Observe(KindNoPerson, ts(2000)))
	require.True(t, l.Observe(KindPhoneDetected, ts(2500)))
}

func TestLimiterClearRestartsHold(t *testing.T) {
	l := NewWarningLimiter()
	require.False(t, l.Observe(KindNoPerson, ts(0)))
	l.Clear(KindNoPerson)
	require.False(t, l.Observe(KindNoPerson, ts(2000)))
	require.False(t, l.Observe(KindNoPerson, ts(3000)))
	require.True(t, l.Observe(KindNoPerson, ts(4000)))
}

func TestLimiterImmediateSkipsHoldButDedups(t *testing.T) {
	l := NewWarningLimiter()
	require.True(t, l.ObserveImmediate(KindTabSwitch, ts(0)))
	require.False(t, l.ObserveImmediate(KindTabSwitch, ts(5000)))
	require.True(t, l.ObserveImmediate(KindTabSwitch, ts(10500)))
}
