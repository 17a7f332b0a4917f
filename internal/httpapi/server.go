// Package httpapi serves the two external surfaces of the interview
// runtime: the stateless admin/control API (bearer-token authorized)
// and the candidate streaming surface (portal, STT relay WebSocket,
// recording uploads, session finalize).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/coderunner"
	"github.com/interviewrt/core/internal/config"
	"github.com/interviewrt/core/internal/dialogue"
	"github.com/interviewrt/core/internal/evaluation"
	"github.com/interviewrt/core/internal/objectstore"
	"github.com/interviewrt/core/internal/observability"
	"github.com/interviewrt/core/internal/proctor"
	"github.com/interviewrt/core/internal/recording"
	"github.com/interviewrt/core/internal/registry"
	"github.com/interviewrt/core/internal/slotstore"
	"github.com/interviewrt/core/internal/sttrelay"
	"github.com/interviewrt/core/internal/token"
	"github.com/interviewrt/core/internal/transcript"
)

// Deps carries everything the server routes to.
type Deps struct {
	Config    config.Config
	Log       zerolog.Logger
	Metrics   *observability.Metrics
	Clock     clockid.Clock
	Slots     *slotstore.Store
	Tokens    *token.Service
	Registry  *registry.Registry
	Dialogue  *dialogue.Controller
	Relay     *sttrelay.Relay
	Proctor   *proctor.Manager
	Recording *recording.Service
	Runner    *coderunner.Runner
	CodeStore *coderunner.PostgresStore
	Snapshots *dialogue.SnapshotStore
	Assembler *evaluation.Assembler
	Evals     evaluation.Store
	Storage   objectstore.Store
}

type Server struct {
	Deps
	upgrader websocket.Upgrader

	mu   sync.Mutex
	accs map[string]*transcript.Accumulator
}

func New(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clockid.SystemClock{}
	}
	return &Server{
		Deps: d,
		accs: make(map[string]*transcript.Accumulator),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(r *http.Request) bool {
				if d.Config.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router builds the full route table, wrapped in the tracing
// middleware so every request carries a span.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	// Admin/control surface.
	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/slots", s.handleCreateSlot)
		r.Post("/slots/recurring", s.handleCreateRecurring)
		r.Get("/slots", s.handleSearchSlots)
		r.Post("/slots/{id}/book", s.handleBook)
		r.Post("/bookings/{id}/cancel", s.handleCancelBooking)
		r.Post("/interviews", s.handleCreateInterview)
		r.Post("/interviews/{id}/access-token", s.handleIssueToken)
		r.Get("/interviews/{id}/evaluation", s.handleGetEvaluation)
		r.Post("/coding-questions", s.handlePutCodingQuestion)
	})

	// Candidate streaming surface.
	r.Get("/portal", s.handlePortal)
	r.Post("/session/start", s.handleSessionStart)
	r.Get("/session/events", s.handleSessionEvents)
	r.Post("/session/answer", s.handleSubmitAnswer)
	r.Post("/session/coding", s.handleCodingSubmission)
	r.Post("/session/finalize", s.handleFinalize)
	r.Get("/stt", s.handleSTT)
	r.Post("/audio/chunks", s.handleAudioChunk)
	r.Post("/proctor/frames", s.handleProctorFrame)
	r.Post("/proctor/signal", s.handleProctorSignal)

	// Local-disk storage is served straight from the store root so
	// TTS audio, snapshots, and reports resolve by their URLs.
	if local, ok := s.Storage.(*objectstore.LocalStore); ok {
		r.Handle("/storage/*", http.StripPrefix("/storage/", http.FileServer(http.Dir(local.Root()))))
	}

	return otelhttp.NewHandler(r, "httpapi")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.Registry.ActiveCount(),
	})
}

// requireAdmin guards the control surface with the configured bearer
// token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.AdminBearerToken == "" {
			respondError(w, http.StatusForbidden, "admin_disabled", "admin surface is not configured")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.Config.AdminBearerToken {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accumulator returns the per-session transcript accumulator, creating
// it on first use.
func (s *Server) accumulator(sessionID string) *transcript.Accumulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accs[sessionID]
	if !ok {
		acc = &transcript.Accumulator{}
		s.accs[sessionID] = acc
	}
	return acc
}

func (s *Server) dropAccumulator(sessionID string) {
	s.mu.Lock()
	delete(s.accs, sessionID)
	s.mu.Unlock()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errEmptyBody = errors.New("httpapi: empty request body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
