// Package dialogue drives the per-session interview turn state
// machine: Booting, Preamble, Asking, AwaitingAnswer, Evaluating,
// then Follow-up, Next, or Closing, ending at Terminal. Each session
// is a mailbox: state mutations are mutex-serialized and typed events
// fan out to the session's subscribers.
package dialogue

import (
	"time"

	"github.com/interviewrt/core/internal/llmclient"
)

// EventType enumerates the notifications pushed to a session's
// subscribers (the candidate-facing websocket handler).
type EventType string

const (
	EventQuestion EventType = "question"
	EventFallback EventType = "fallback"
	EventTurnEnd  EventType = "turn_end"
	EventClosing  EventType = "closing"
	EventError    EventType = "error"
)

// Event is one notification emitted for a session.
type Event struct {
	Type      EventType
	SessionID string
	Text      string
	AudioURL  string
	Level     llmclient.QuestionLevel
	Seq       int
	At        time.Time
}

// TurnRecord is one logged utterance of the interview transcript.
type TurnRecord struct {
	Role           string // Interviewer | Candidate | System
	Sequence       int
	Text           string
	CreatedAt      time.Time
	AudioURL       string
	ResponseTimeMS int64
}

const (
	RoleInterviewer = "Interviewer"
	RoleCandidate   = "Candidate"
	RoleSystem      = "System"
)

// maxConsecutiveEmpties bounds how many empty answers a MAIN question
// tolerates before the controller forces a move to the next question.
const maxConsecutiveEmpties = 2
