package sttrelay

import (
	"context"
	"sync"
)

// MockProvider is the dev/test STT backend: callers script the events
// a session emits, and sent audio is counted but otherwise discarded.
type MockProvider struct {
	mu       sync.Mutex
	sessions []*MockSession

	// FailSessions makes the next N StartSession calls fail, for
	// reconnect-path tests.
	FailSessions int
	StartErr     error
}

// MockSession is one scripted upstream session.
type MockSession struct {
	events chan Event

	mu         sync.Mutex
	closed     bool
	audioBytes int
}

func (m *MockProvider) StartSession(_ context.Context, _ SessionConfig) (ProviderSession, <-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSessions > 0 {
		m.FailSessions--
		return nil, nil, m.StartErr
	}
	s := &MockSession{events: make(chan Event, 32)}
	m.sessions = append(m.sessions, s)
	return s, s.events, nil
}

// Session returns the i-th session started so far, or nil.
func (m *MockProvider) Session(i int) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.sessions) {
		return nil
	}
	return m.sessions[i]
}

// Emit pushes one scripted event downstream.
func (s *MockSession) Emit(ev Event) {
	s.events <- ev
}

// Drop simulates the provider connection closing.
func (s *MockSession) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *MockSession) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBytes += len(pcm)
	return nil
}

func (s *MockSession) AudioBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioBytes
}

func (s *MockSession) Close() error {
	s.Drop()
	return nil
}
