package httpapi

import (
	"context"
	"time"
)

// Answer-submit timing: the candidate has a bounded window per turn
// even without pressing submit. With voice, the turn auto-submits a
// fixed time after the first voice event; with no voice at all, a
// short grace applies and the empty submit flows into the dialogue's
// Empty handling.
const (
	voiceSubmitTimeout = 60 * time.Second
	noVoiceGrace       = 15 * time.Second
	watchdogTick       = time.Second
)

// startAnswerWatchdog runs the per-session inactivity timer until the
// session reaches a terminal state. One watchdog per session; started
// alongside the dialogue.
func (s *Server) startAnswerWatchdog(ctx context.Context, sessionID string) {
	go func() {
		ticker := time.NewTicker(watchdogTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			sess, err := s.Registry.Get(sessionID)
			if err != nil || sess.Terminal {
				return
			}
			if !sess.AwaitingAnswer {
				continue
			}
			askedAt := s.Dialogue.QuestionAskedAt(sessionID)
			if askedAt.IsZero() {
				continue
			}

			now := s.Clock.Now()
			firstVoice := s.accumulator(sessionID).FirstVoiceAt()
			var deadline time.Time
			if firstVoice.IsZero() || firstVoice.Before(askedAt) {
				deadline = askedAt.Add(noVoiceGrace)
			} else {
				deadline = firstVoice.Add(voiceSubmitTimeout)
			}
			if now.Before(deadline) {
				continue
			}

			if err := s.submitCurrentAnswer(ctx, sessionID, ""); err != nil {
				// Racing an explicit submit is fine; the next tick
				// re-evaluates from the fresh state.
				s.Log.Debug().Err(err).Str("session_id", sessionID).Msg("watchdog submit skipped")
			}
		}
	}()
}

// submitCurrentAnswer is the single submit path shared by the explicit
// submit endpoint and the inactivity watchdog: snapshot the
// accumulator (waiting briefly for a straggling final event), reset
// the turn, and hand the text to the dialogue controller.
func (s *Server) submitCurrentAnswer(ctx context.Context, sessionID, typed string) error {
	acc := s.accumulator(sessionID)
	text := typed
	if text == "" {
		text = acc.Snapshot()
		if text == "" {
			time.Sleep(time.Second)
			text = acc.Snapshot()
		}
	}

	responseTime := time.Duration(0)
	if askedAt := s.Dialogue.QuestionAskedAt(sessionID); !askedAt.IsZero() {
		responseTime = s.Clock.Now().Sub(askedAt)
	}

	acc.BeginNewTurn()
	return s.Dialogue.SubmitAnswer(ctx, sessionID, text, responseTime)
}
