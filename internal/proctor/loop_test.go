package proctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/objectstore"
)

type captureSink struct {
	warnings []WarningEvent
	degraded int
}

func (s *captureSink) Warning(ev WarningEvent) { s.warnings = append(s.warnings, ev) }
func (s *captureSink) Degraded(string, error)  { s.degraded++ }

// countingDetector counts Detect calls and reports nothing.
type countingDetector struct{ calls int }

func (d *countingDetector) Detect(context.Context, Frame) ([]Detection, error) {
	d.calls++
	return nil, nil
}

func newTestLoop(t *testing.T, detector Detector, sink Sink) *Loop {
	t.Helper()
	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	clock := clockid.NewFakeClock(ts(0))
	return NewLoop("sess1", detector, store, sink, clock, nil, zerolog.Nop())
}

func TestLoopEmitsWarningWithSnapshot(t *testing.T) {
	detector := &MockDetector{Results: []DetectorResult{
		{Detections: []Detection{person(0.9, 0.3), person(0.8, 0.7)}},
	}}
	sink := &captureSink{}
	l := newTestLoop(t, detector, sink)

	frame := func(offMS int) Frame {
		return Frame{Data: []byte{0xff, 0xd8}, CapturedAt: ts(offMS)}
	}
	ctx := context.Background()
	l.processFrame(ctx, frame(0))
	l.processFrame(ctx, frame(1000))
	l.processFrame(ctx, frame(2000))

	require.Len(t, sink.warnings, 1)
	ev := sink.warnings[0]
	require.Equal(t, KindMultiplePeople, ev.Kind)
	require.Equal(t, "sess1", ev.SessionID)
	require.NotEmpty(t, ev.SnapshotRef)
}

func TestLoopDegradesAfterThreeConsecutiveFailures(t *testing.T) {
	detector := &MockDetector{Results: []DetectorResult{{Err: errors.New("inference down")}}}
	sink := &captureSink{}
	l := newTestLoop(t, detector, sink)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l.processFrame(ctx, Frame{CapturedAt: ts(i * 250)})
	}
	// Degraded is raised once, on the third consecutive failure, and
	// the session keeps running.
	require.Equal(t, 1, sink.degraded)
	require.Empty(t, sink.warnings)
}

func TestLoopFailureStreakResetsOnSuccess(t *testing.T) {
	detector := &MockDetector{Results: []DetectorResult{
		{Err: errors.New("flaky")},
		{Err: errors.New("flaky")},
		{Detections: []Detection{person(0.9, 0.5)}},
		{Err: errors.New("flaky")},
		{Err: errors.New("flaky")},
	}}
	sink := &captureSink{}
	l := newTestLoop(t, detector, sink)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l.processFrame(ctx, Frame{CapturedAt: ts(i * 250)})
	}
	require.Zero(t, sink.degraded)
}

func TestLoopSkipsStaleFrames(t *testing.T) {
	detector := &countingDetector{}
	sink := &captureSink{}
	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	clock := clockid.NewFakeClock(ts(0))
	l := NewLoop("sess1", detector, store, sink, clock, nil, zerolog.Nop())

	frames := make(chan Frame, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, frames)
		close(done)
	}()

	clock.Set(ts(10_000))
	frames <- Frame{CapturedAt: ts(0)} // 10s behind, skipped
	frames <- Frame{CapturedAt: ts(9800)}
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	require.Equal(t, 1, detector.calls)
}

func TestSignalJoinsDedupStream(t *testing.T) {
	detector := &MockDetector{}
	sink := &captureSink{}
	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	clock := clockid.NewFakeClock(ts(0))
	l := NewLoop("sess1", detector, store, sink, clock, nil, zerolog.Nop())

	ctx := context.Background()
	l.Signal(ctx, KindTabSwitch)
	clock.Advance(4 * time.Second)
	l.Signal(ctx, KindTabSwitch)
	clock.Advance(7 * time.Second)
	l.Signal(ctx, KindTabSwitch)

	require.Len(t, sink.warnings, 2)
}
