package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/interviewrt/core/internal/dialogue"
	"github.com/interviewrt/core/internal/evaluation"
	"github.com/interviewrt/core/internal/recording"
	"github.com/interviewrt/core/internal/registry"
)

type finalizeRequest struct {
	SessionID string `json:"session_id"`
}

// handleFinalize runs the session's terminal transition: stop
// proctoring, mux the recording, close the dialogue, snapshot the
// runtime logs to persistence, and assemble the evaluation. Partial
// failures are logged but never block termination; the evaluation is
// assembled from whatever survived.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}

	sess, err := s.Registry.Get(req.SessionID)
	if errors.Is(err, registry.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "no such session")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	ev, err := s.finalizeSession(r.Context(), sess, false)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "finalized",
		"overall_score": ev.OverallScore,
		"recommend":     ev.Recommend,
		"report_ref":    ev.ReportRef,
	})
}

func (s *Server) finalizeSession(ctx context.Context, sess *registry.Session, abandoned bool) (evaluation.Evaluation, error) {
	log := s.Log.With().Str("session_id", sess.ID).Logger()

	warnings := s.Proctor.Stop(sess.ID)
	turns := s.Dialogue.Turns(sess.ID)
	scores := s.Dialogue.AnswerScores(sess.ID)

	var marks []recording.QuestionMark
	for _, t := range turns {
		if t.Role == dialogue.RoleInterviewer {
			marks = append(marks, recording.QuestionMark{Sequence: t.Sequence, Text: t.Text})
		}
	}

	var recordingRef string
	artifact, err := s.Recording.Finalize(ctx, sess.ID, marks)
	switch {
	case errors.Is(err, recording.ErrNoVideo):
		log.Warn().Msg("no recording uploaded for session")
	case err != nil:
		log.Error().Err(err).Msg("recording finalize failed")
	default:
		recordingRef = artifact.FinalRef
	}

	if err := s.Dialogue.Close(sess.ID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		log.Warn().Err(err).Msg("dialogue close failed")
	}

	// The terminal outcome must survive the registry janitor's sweep:
	// the persisted Interview row is what gates token replay after the
	// in-memory session is gone.
	if sess.InterviewID != "" {
		markTerminal := s.Slots.CompleteInterview
		if abandoned {
			markTerminal = s.Slots.AbandonInterview
		}
		if err := markTerminal(ctx, sess.InterviewID); err != nil {
			log.Error().Err(err).Str("interview_id", sess.InterviewID).Msg("persist terminal interview status failed")
		}
	}
	s.dropAccumulator(sess.ID)
	s.Metrics.ActiveSessions.Set(float64(s.Registry.ActiveCount()))
	s.Metrics.SessionEvents.WithLabelValues("finalized").Inc()

	if s.Snapshots != nil {
		if err := s.Snapshots.Snapshot(ctx, sess.ID, turns, warnings); err != nil {
			log.Error().Err(err).Msg("runtime snapshot persist failed")
		}
	}

	codingResults, err := s.CodeStore.ResultsForSession(ctx, sess.ID)
	if err != nil {
		log.Warn().Err(err).Msg("coding results unavailable for evaluation")
	}

	return s.Assembler.Assemble(ctx, evaluation.Inputs{
		InterviewID:    sess.InterviewID,
		SessionID:      sess.ID,
		JobDescription: sess.JobContext,
		Turns:          turns,
		AnswerScores:   scores,
		CodingResults:  codingResults,
		Warnings:       warnings,
		RecordingRef:   recordingRef,
	})
}

// ExpireSession is the hard-cancellation path at valid_until: the
// registry janitor calls it for sessions that never reached a natural
// terminal, transitioning them to Abandoned while still persisting
// partial artifacts.
func (s *Server) ExpireSession(sess *registry.Session) {
	if sess.Terminal {
		return
	}
	ctx := context.Background()
	if _, err := s.finalizeSession(ctx, sess, true); err != nil {
		s.Log.Error().Err(err).Str("session_id", sess.ID).Msg("expire-time finalize failed")
	}
	s.Metrics.SessionEvents.WithLabelValues("abandoned").Inc()
}
