// Package transcript maintains the running finalized text of a
// candidate's spoken answer as partial and final STT events arrive,
// merging provider resends without ever losing already-finalized text.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Event is a single STT result delivered by the relay.
type Event struct {
	Text      string
	IsFinal   bool
	ArrivedAt time.Time
}

// Accumulator holds the finalized and interim text for the turn
// currently in progress. The zero value is ready to use. Methods are
// safe for concurrent use: the relay goroutine applies events while
// the answer path snapshots.
type Accumulator struct {
	mu           sync.Mutex
	accumulated  string
	interim      string
	lastSeenAt   time.Time
	firstVoiceAt time.Time
	turnIndex    int
}

// Apply folds one STT event into the accumulator per the merge rule:
// empty text is a no-op beyond bookkeeping the last-seen time; final
// events only ever grow accumulated (resends and prefixes are
// absorbed, never duplicated); interim events never touch accumulated.
func (a *Accumulator) Apply(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSeenAt = e.ArrivedAt

	text := strings.TrimSpace(e.Text)
	if text == "" {
		return
	}
	if a.firstVoiceAt.IsZero() {
		a.firstVoiceAt = e.ArrivedAt
	}

	if e.IsFinal {
		a.applyFinal(text)
		a.interim = ""
		return
	}
	a.applyInterim(text)
}

func (a *Accumulator) applyFinal(text string) {
	switch {
	case a.accumulated == "":
		a.accumulated = text
	case strings.Contains(a.accumulated, text):
		// provider resent a fragment we already hold
	case strings.Contains(text, a.accumulated):
		a.accumulated = text
	default:
		a.accumulated = a.accumulated + " " + text
	}
}

func (a *Accumulator) applyInterim(text string) {
	if strings.Contains(text, a.accumulated) {
		a.interim = strings.TrimSpace(strings.TrimPrefix(text, a.accumulated))
		return
	}
	a.interim = text
}

// Snapshot returns the finalized text trimmed of surrounding whitespace.
func (a *Accumulator) Snapshot() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(a.accumulated)
}

// FullForDisplay returns the finalized text followed by the current
// interim fragment, suitable for a live transcript view.
func (a *Accumulator) FullForDisplay() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.interim == "" {
		return strings.TrimSpace(a.accumulated)
	}
	return strings.TrimSpace(a.accumulated + " " + a.interim)
}

// LastSeenAt reports the arrival time of the most recent event, zero
// if none has arrived yet this turn.
func (a *Accumulator) LastSeenAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSeenAt
}

// FirstVoiceAt reports when the first non-empty event of this turn
// arrived, zero if the candidate has not spoken yet.
func (a *Accumulator) FirstVoiceAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.firstVoiceAt
}

// TurnIndex reports how many times BeginNewTurn has been called.
func (a *Accumulator) TurnIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turnIndex
}

// BeginNewTurn atomically clears accumulated and interim text and
// advances the turn index, so stale answer text can never leak into
// the next question's evaluation.
func (a *Accumulator) BeginNewTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accumulated = ""
	a.interim = ""
	a.lastSeenAt = time.Time{}
	a.firstVoiceAt = time.Time{}
	a.turnIndex++
}
