package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/interviewrt/core/internal/coderunner"
	"github.com/interviewrt/core/internal/dialogue"
	"github.com/interviewrt/core/internal/portal"
	"github.com/interviewrt/core/internal/proctor"
	"github.com/interviewrt/core/internal/protocol"
	"github.com/interviewrt/core/internal/recording"
	"github.com/interviewrt/core/internal/registry"
	"github.com/interviewrt/core/internal/token"
	"github.com/interviewrt/core/internal/transcript"
)

// handlePortal redeems the access token and returns the candidate
// view state. Redemption is idempotent inside the window: subsequent
// calls resume the existing session.
func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		respondJSON(w, http.StatusBadRequest, portal.Failure())
		return
	}

	handle, err := s.Tokens.Redeem(r.Context(), raw, s.Clock.Now())
	var tooEarly token.ErrTooEarly
	switch {
	case errors.As(err, &tooEarly):
		s.Metrics.ObserveTokenRedemption("too_early")
		respondJSON(w, http.StatusOK, portal.TooEarly(tooEarly.SecondsRemaining))
		return
	case errors.Is(err, token.ErrExpired):
		s.Metrics.ObserveTokenRedemption("expired")
		respondJSON(w, http.StatusOK, portal.Expired())
		return
	case errors.Is(err, token.ErrAlreadyTerminal), errors.Is(err, token.ErrCanceled):
		s.Metrics.ObserveTokenRedemption("terminal")
		respondJSON(w, http.StatusOK, portal.Expired())
		return
	case errors.Is(err, token.ErrInvalidSignature), errors.Is(err, token.ErrMalformed):
		s.Metrics.ObserveTokenRedemption("invalid")
		respondError(w, http.StatusUnauthorized, "invalid_token", "access token is not valid")
		return
	case err != nil:
		s.Metrics.ObserveTokenRedemption("error")
		s.internalError(w, r, err)
		return
	}

	s.Metrics.ObserveTokenRedemption("ok")
	respondJSON(w, http.StatusOK, portal.Ready(handle.SessionID, handle.InterviewID, handle.Resumed))
}

type sessionStartRequest struct {
	SessionID      string `json:"session_id"`
	InterviewID    string `json:"interview_id"`
	Language       string `json:"language"`
	Company        string `json:"company"`
	Role           string `json:"role"`
	JobDescription string `json:"job_description"`
	Resume         string `json:"resume"`
	Difficulty     string `json:"difficulty"`
	AIType         string `json:"ai_type"`
	MaxQuestions   int    `json:"max_questions"`
}

// handleSessionStart binds the session's config (declared once, at
// session start) and kicks off the dialogue's first question. Calling
// it again for a live session is a no-op resume.
func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}
	if req.MaxQuestions <= 0 {
		req.MaxQuestions = 5
	}
	if req.Language == "" {
		req.Language = "en"
	}

	params := dialogue.StartParams{
		JobContext:   req.JobDescription,
		CandidateCtx: req.Resume,
		Company:      req.Company,
		Role:         req.Role,
		Difficulty:   req.Difficulty,
		AIType:       req.AIType,
		MaxQuestions: req.MaxQuestions,
	}

	// The access window bound survives in the registry so the janitor
	// can hard-cancel at valid_until.
	var validUntil time.Time
	if req.InterviewID != "" {
		if interview, err := s.Slots.GetInterview(r.Context(), req.InterviewID); err == nil && !interview.ScheduledEndUTC.IsZero() {
			validUntil = interview.ScheduledEndUTC.Add(time.Duration(s.Config.AccessWindowGraceMin) * time.Minute)
		}
	}

	created := false
	sess := s.Registry.GetOrCreate(req.SessionID, func() *registry.Session {
		created = true
		init := dialogue.SessionInit(params, req.Language)()
		init.InterviewID = req.InterviewID
		init.ValidUntil = validUntil
		return init
	})

	// Proctoring and the answer watchdog must outlive this request;
	// they run for the session.
	loopCtx := context.WithoutCancel(r.Context())
	s.Proctor.Start(loopCtx, req.SessionID)

	if !created {
		respondJSON(w, http.StatusOK, map[string]any{"status": "resumed", "state": sess.DialogueState})
		return
	}

	s.startAnswerWatchdog(loopCtx, req.SessionID)
	s.Metrics.ActiveSessions.Set(float64(s.Registry.ActiveCount()))
	if err := s.Dialogue.Start(r.Context(), req.SessionID, params); err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

// handleSessionEvents streams dialogue events (questions, fallbacks,
// closing) to the candidate over a WebSocket.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if _, err := s.Registry.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "no such session")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.Dialogue.Subscribe(sessionID)
	defer cancel()

	// Reader goroutine: only there to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			s.Proctor.Pause(sessionID)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(eventToMessage(ev)); err != nil {
				s.Metrics.WSWriteErrors.WithLabelValues("session_events").Inc()
				return
			}
			s.Metrics.WSMessages.WithLabelValues("out", string(ev.Type)).Inc()
		}
	}
}

func eventToMessage(ev dialogue.Event) any {
	switch ev.Type {
	case dialogue.EventQuestion, dialogue.EventFallback:
		return protocol.Question{Type: protocol.TypeQuestion, Text: ev.Text, AudioURL: ev.AudioURL, Index: ev.Seq, Level: string(ev.Level)}
	case dialogue.EventTurnEnd:
		return protocol.TurnEndMsg{Type: protocol.TypeTurnEnd}
	case dialogue.EventClosing:
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "closing"}
	case dialogue.EventError:
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "degraded", Message: portal.Degraded().Message}
	default:
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: string(ev.Type)}
	}
}

// handleSTT is the candidate side of the STT relay.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if _, err := s.Registry.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "no such session")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	acc := s.accumulator(sessionID)
	_ = s.Relay.Run(r.Context(), conn,
		func(ev transcript.Event) { acc.Apply(ev) },
		func(err error) { s.Dialogue.NotifyDegraded(sessionID, "speech recognition unavailable") },
	)
}

type submitAnswerRequest struct {
	SessionID string `json:"session_id"`
	// TypedText carries the text-only fallback; when set it overrides
	// the accumulator snapshot.
	TypedText string `json:"typed_text"`
}

// handleSubmitAnswer finalizes the candidate's current turn: snapshot
// the accumulator (waiting briefly for a straggling final event), then
// hand the text to the dialogue controller.
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}

	if err := s.submitCurrentAnswer(r.Context(), req.SessionID, strings.TrimSpace(req.TypedText)); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "no such session")
			return
		}
		respondError(w, http.StatusConflict, "not_awaiting_answer", err.Error())
		return
	}

	sess, err := s.Registry.Get(req.SessionID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"state":          sess.DialogueState,
		"question_index": sess.CurrentQuestionIndex,
	})
}

type codingSubmissionRequest struct {
	SessionID  string `json:"session_id"`
	QuestionID string `json:"question_id"`
	Language   string `json:"language"`
	Source     string `json:"source"`
}

func (s *Server) handleCodingSubmission(w http.ResponseWriter, r *http.Request) {
	var req codingSubmissionRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || req.QuestionID == "" || req.Source == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session_id, question_id, and source are required")
		return
	}
	if _, err := s.Registry.Get(req.SessionID); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "no such session")
		return
	}

	res, err := s.Runner.Execute(r.Context(), coderunner.Submission{
		SessionID:  req.SessionID,
		QuestionID: req.QuestionID,
		Language:   req.Language,
		Source:     req.Source,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if _, err := s.CodeStore.SaveResult(r.Context(), res); err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tests_passed": res.TestsPassed,
		"tests_total":  res.TestsTotal,
		"combined":     res.Combined,
		"feedback":     res.Feedback,
	})
}

func (s *Server) handleAudioChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if _, err := s.Registry.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "no such session")
		return
	}
	kind := recording.Kind(q.Get("kind"))
	if kind == "" {
		kind = recording.KindVideo
	}

	defer r.Body.Close()
	err := s.Recording.AppendChunk(sessionID, kind, q.Get("ext"), io.LimitReader(r.Body, 64<<20))
	if errors.Is(err, recording.ErrAlreadyFinal) {
		respondError(w, http.StatusConflict, "finalized", "session recording already finalized")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) handleProctorFrame(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "unreadable frame")
		return
	}
	if err := s.Proctor.Ingest(sessionID, proctor.Frame{Data: data, CapturedAt: s.Clock.Now()}); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "no proctoring loop for session")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type proctorSignalRequest struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
}

func (s *Server) handleProctorSignal(w http.ResponseWriter, r *http.Request) {
	var req proctorSignalRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}
	kind := proctor.WarningKind(req.Kind)
	switch kind {
	case proctor.KindTabSwitch, proctor.KindNoiseBurst, proctor.KindMultipleSpeakers:
	default:
		respondError(w, http.StatusBadRequest, "bad_request", "kind must be an externally-signaled warning")
		return
	}
	if err := s.Proctor.Signal(r.Context(), req.SessionID, kind); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "no proctoring loop for session")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
