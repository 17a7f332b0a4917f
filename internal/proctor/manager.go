package proctor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/objectstore"
	"github.com/interviewrt/core/internal/observability"
)

// ErrNoLoop is returned when a session has no running proctoring loop.
var ErrNoLoop = errors.New("proctor: no loop for session")

// Manager owns one Loop per active session plus the in-memory warning
// log that is snapshotted to persistence at terminal transitions.
type Manager struct {
	detector  Detector
	snapshots objectstore.Store
	clock     clockid.Clock
	metrics   *observability.Metrics
	log       zerolog.Logger

	mu       sync.Mutex
	loops    map[string]*runningLoop
	warnings map[string][]WarningEvent
	degraded map[string]bool
}

type runningLoop struct {
	loop   *Loop
	frames chan Frame
	cancel context.CancelFunc
}

func NewManager(detector Detector, snapshots objectstore.Store, clock clockid.Clock, metrics *observability.Metrics, log zerolog.Logger) *Manager {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &Manager{
		detector:  detector,
		snapshots: snapshots,
		clock:     clock,
		metrics:   metrics,
		log:       log,
		loops:     make(map[string]*runningLoop),
		warnings:  make(map[string][]WarningEvent),
		degraded:  make(map[string]bool),
	}
}

// Start launches the proctoring loop for a session. Starting an
// already-running session is a no-op (resume re-uses the live loop).
func (m *Manager) Start(ctx context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rl, ok := m.loops[sessionID]; ok {
		rl.loop.Resume()
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	loop := NewLoop(sessionID, m.detector, m.snapshots, managerSink{m}, m.clock, m.metrics, m.log)
	frames := make(chan Frame, targetFrameHz)
	m.loops[sessionID] = &runningLoop{loop: loop, frames: frames, cancel: cancel}
	go loop.Run(loopCtx, frames)
}

// Ingest hands one frame to a session's loop; up to targetFrameHz
// frames wait in the loop's queue, and frames arriving while it is
// full are dropped.
func (m *Manager) Ingest(sessionID string, frame Frame) error {
	m.mu.Lock()
	rl, ok := m.loops[sessionID]
	m.mu.Unlock()
	if !ok {
		return ErrNoLoop
	}
	select {
	case rl.frames <- frame:
	default:
	}
	return nil
}

// Signal injects an externally-observed kind into a session's stream.
func (m *Manager) Signal(ctx context.Context, sessionID string, kind WarningKind) error {
	m.mu.Lock()
	rl, ok := m.loops[sessionID]
	m.mu.Unlock()
	if !ok {
		return ErrNoLoop
	}
	rl.loop.Signal(ctx, kind)
	return nil
}

// Pause suspends frame processing for a session without losing its
// warning log, for candidate disconnects inside the access window.
func (m *Manager) Pause(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rl, ok := m.loops[sessionID]; ok {
		rl.loop.Pause()
	}
}

// Stop tears down a session's loop and returns its accumulated
// warnings for persistence.
func (m *Manager) Stop(sessionID string) []WarningEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rl, ok := m.loops[sessionID]; ok {
		rl.cancel()
		delete(m.loops, sessionID)
	}
	out := m.warnings[sessionID]
	delete(m.warnings, sessionID)
	delete(m.degraded, sessionID)
	return out
}

// Warnings returns a copy of the session's warning log so far.
func (m *Manager) Warnings(sessionID string) []WarningEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WarningEvent, len(m.warnings[sessionID]))
	copy(out, m.warnings[sessionID])
	return out
}

// IsDegraded reports whether the session's detector has raised a
// ProctoringDegraded event.
func (m *Manager) IsDegraded(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded[sessionID]
}

// managerSink appends emitted warnings to the manager's per-session
// log under the manager lock.
type managerSink struct{ m *Manager }

func (s managerSink) Warning(ev WarningEvent) {
	s.m.mu.Lock()
	s.m.warnings[ev.SessionID] = append(s.m.warnings[ev.SessionID], ev)
	s.m.mu.Unlock()
}

func (s managerSink) Degraded(sessionID string, err error) {
	s.m.log.Warn().Err(err).Str("session_id", sessionID).Msg("proctoring degraded")
	s.m.mu.Lock()
	s.m.degraded[sessionID] = true
	s.m.mu.Unlock()
}
