// Package registry holds the in-memory index of active interview
// sessions, adapted from a voice-companion session manager into the
// interview runtime's richer per-session state (dialogue phase,
// transcript turn index, warning/coding flags).
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/interviewrt/core/internal/clockid"
)

// ErrNotFound is returned when a session id has no registry entry.
var ErrNotFound = errors.New("registry: session not found")

// DialogueState mirrors the Dialogue Controller's state machine
// as observed from the registry's point of view.
type DialogueState string

const (
	StateBooting        DialogueState = "Booting"
	StatePreamble       DialogueState = "Preamble"
	StateAsking         DialogueState = "Asking"
	StateAwaitingAnswer DialogueState = "AwaitingAnswer"
	StateEvaluating     DialogueState = "Evaluating"
	StateClosing        DialogueState = "Closing"
	StateTerminal       DialogueState = "Terminal"
)

// Session is the runtime record for one ongoing interview.
type Session struct {
	ID            string
	InterviewID   string
	Language      string
	JobContext    string
	CandidateCtx  string

	DialogueState         DialogueState
	MaxQuestions          int
	CurrentQuestionIndex  int
	AwaitingAnswer        bool
	LastQuestionText      string
	CodingPhaseActive     bool
	Terminal              bool

	StartedAt      time.Time
	LastActivityAt time.Time
	ValidUntil     time.Time
}

// Registry is a concurrency-safe map of session id -> *Session with
// clone-on-read semantics: callers never hold a reference to live
// registry state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    clockid.Clock

	gcAfterValidUntil time.Duration
	onExpire          func(*Session)
}

func New(clock clockid.Clock, gcAfterValidUntil time.Duration) *Registry {
	if gcAfterValidUntil <= 0 {
		gcAfterValidUntil = 30 * time.Minute
	}
	return &Registry{
		sessions:          make(map[string]*Session),
		clock:             clock,
		gcAfterValidUntil: gcAfterValidUntil,
	}
}

func (r *Registry) SetExpireHook(hook func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// GetOrCreate returns the existing session for id, or creates one
// using init when none exists yet, as a single atomic step.
func (r *Registry) GetOrCreate(id string, init func() *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return clone(s)
	}
	s := init()
	s.ID = id
	now := r.clock.Now()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.LastActivityAt = now
	r.sessions[id] = s
	return clone(s)
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Mutate applies fn to the live session under the registry lock,
// returning the post-mutation snapshot. This is the single
// serialization point for Session mutations.
func (r *Registry) Mutate(id string, fn func(*Session)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(s)
	s.LastActivityAt = r.clock.Now()
	return clone(s), nil
}

func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = r.clock.Now()
	return nil
}

func (r *Registry) End(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Terminal = true
	s.DialogueState = StateTerminal
	s.LastActivityAt = r.clock.Now()
	return clone(s), nil
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if !s.Terminal {
			n++
		}
	}
	return n
}

// StartJanitor periodically evicts sessions that are terminal, or
// whose access window closed more than gcAfterValidUntil ago.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	now := r.clock.Now()
	var evicted []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		expired := s.Terminal || (!s.ValidUntil.IsZero() && now.Sub(s.ValidUntil) > r.gcAfterValidUntil)
		if !expired {
			continue
		}
		delete(r.sessions, id)
		evicted = append(evicted, clone(s))
	}
	hook := r.onExpire
	r.mu.Unlock()

	if hook != nil {
		for _, s := range evicted {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
