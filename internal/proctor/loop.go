package proctor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/objectstore"
	"github.com/interviewrt/core/internal/observability"
)

// Sink receives emitted warnings and degraded notices for a session.
type Sink interface {
	Warning(ev WarningEvent)
	Degraded(sessionID string, err error)
}

// Loop is the per-session proctoring pipeline: detect, classify,
// rate-limit, snapshot. One Loop runs per session, single-threaded, so
// warnings are observed in non-decreasing order.
type Loop struct {
	sessionID  string
	detector   Detector
	classifier *Classifier
	limiter    *WarningLimiter
	snapshots  objectstore.Store
	sink       Sink
	clock      clockid.Clock
	metrics    *observability.Metrics
	log        zerolog.Logger

	consecutiveFailures int
	paused              bool
}

func NewLoop(sessionID string, detector Detector, snapshots objectstore.Store, sink Sink, clock clockid.Clock, metrics *observability.Metrics, log zerolog.Logger) *Loop {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &Loop{
		sessionID:  sessionID,
		detector:   detector,
		classifier: &Classifier{},
		limiter:    NewWarningLimiter(),
		snapshots:  snapshots,
		sink:       sink,
		clock:      clock,
		metrics:    metrics,
		log:        log.With().Str("session_id", sessionID).Logger(),
	}
}

// Run consumes frames until ctx is canceled or frames closes. Frames
// that arrived more than maxFrameLag ago are skipped so the loop
// catches up instead of falling further behind.
func (l *Loop) Run(ctx context.Context, frames <-chan Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if l.paused {
				continue
			}
			if l.clock.Now().Sub(frame.CapturedAt) > maxFrameLag {
				continue
			}
			l.processFrame(ctx, frame)
		}
	}
}

// Pause stops frame processing without tearing the loop down; used
// when the candidate's connection drops but the session may resume.
func (l *Loop) Pause()  { l.paused = true }
func (l *Loop) Resume() { l.paused = false }

func (l *Loop) processFrame(ctx context.Context, frame Frame) {
	detections, err := l.detector.Detect(ctx, frame)
	if err != nil {
		l.consecutiveFailures++
		l.log.Warn().Err(err).Int("consecutive", l.consecutiveFailures).Msg("detector failure, frame dropped")
		if l.consecutiveFailures == degradedAfterFailures {
			l.sink.Degraded(l.sessionID, err)
		}
		return
	}
	l.consecutiveFailures = 0

	at := frame.CapturedAt
	kinds := l.classifier.Classify(detections, at)

	held := make(map[WarningKind]bool, len(kinds))
	for _, kind := range kinds {
		held[kind] = true
		if l.limiter.Observe(kind, at) {
			l.emit(ctx, kind, at, frame)
		}
	}
	l.limiter.ClearAllExcept(held)
}

// Signal injects an externally-observed warning kind (TabSwitch from
// the browser, NoiseBurst/MultipleSpeakers from the STT relay's
// diarization) into the same rate-limited stream.
func (l *Loop) Signal(ctx context.Context, kind WarningKind) {
	at := l.clock.Now()
	if l.limiter.ObserveImmediate(kind, at) {
		l.emit(ctx, kind, at, Frame{})
	}
}

func (l *Loop) emit(ctx context.Context, kind WarningKind, at time.Time, frame Frame) {
	ev := WarningEvent{
		SessionID: l.sessionID,
		Kind:      kind,
		At:        at,
		DedupKey:  fmt.Sprintf("%s/%s/%d", l.sessionID, kind, at.Unix()/10),
	}
	if len(frame.Data) > 0 && l.snapshots != nil {
		warningID := clockid.NewID()
		ref, err := l.snapshots.Put(ctx, "snapshots/"+l.sessionID, warningID+".jpg", bytes.NewReader(frame.Data))
		if err != nil {
			l.log.Warn().Err(err).Str("kind", string(kind)).Msg("snapshot write failed")
		} else {
			ev.SnapshotRef = ref
		}
	}
	if l.metrics != nil {
		l.metrics.ObserveProctorWarning(string(kind))
	}
	l.sink.Warning(ev)
}
