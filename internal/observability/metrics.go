// Package observability centralizes Prometheus instrumentation and
// OpenTelemetry tracing setup for the interview runtime.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec

	BookingAttempts *prometheus.CounterVec
	TokenRedemption *prometheus.CounterVec

	WSMessages    *prometheus.CounterVec
	WSWriteErrors *prometheus.CounterVec
	STTReconnects *prometheus.CounterVec

	DialogueTurns      *prometheus.CounterVec
	DialogueFallbacks  *prometheus.CounterVec
	TurnStageLatency   *prometheus.HistogramVec
	FirstAudioLatency  prometheus.Histogram
	TTSCacheResult     *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	ProctorWarnings    *prometheus.CounterVec
	MuxOutcomes        *prometheus.CounterVec
	CodeRunOutcomes    *prometheus.CounterVec
	EvaluationAssembly *prometheus.HistogramVec

	turnStageWindow *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active interview sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		BookingAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Slot booking attempts by outcome.",
		}, []string{"outcome"}),
		TokenRedemption: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_redemption_total",
			Help:      "Access token redemption attempts by outcome.",
		}, []string{"outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write errors by reason.",
		}, []string{"reason"}),
		STTReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_relay_reconnects_total",
			Help:      "STT relay reconnect attempts by outcome.",
		}, []string{"outcome"}),
		DialogueTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_turns_total",
			Help:      "Dialogue turns by terminal state.",
		}, []string{"state"}),
		DialogueFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_llm_fallbacks_total",
			Help:      "Times the dialogue controller fell back to a canned question or default classification.",
		}, []string{"reason"}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Turn-stage latency in milliseconds.",
			Buckets:   []float64{20, 50, 100, 150, 250, 400, 700, 1200, 2000, 4000, 7000, 10000},
		}, []string{"stage"}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency to first assistant audio chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
		TTSCacheResult: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_cache_result_total",
			Help:      "TTS cache lookups by result (hit, miss, coalesced).",
		}, []string{"result"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		ProctorWarnings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proctor_warnings_total",
			Help:      "Proctoring warnings emitted by category.",
		}, []string{"category"}),
		MuxOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_mux_outcomes_total",
			Help:      "Recording mux attempts by outcome.",
		}, []string{"outcome"}),
		CodeRunOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coderunner_outcomes_total",
			Help:      "Coding round test case executions by outcome.",
		}, []string{"outcome"}),
		EvaluationAssembly: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_assembly_ms",
			Help:      "Time to assemble a final evaluation in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}, []string{"result"}),
		turnStageWindow: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	ms := float64(d.Milliseconds())
	m.TurnStageLatency.WithLabelValues(stage).Observe(ms)
	m.turnStageWindow.Observe(stage, ms)
}

func (m *Metrics) ObserveDialogueTurn(state string) {
	if m == nil || m.DialogueTurns == nil {
		return
	}
	m.DialogueTurns.WithLabelValues(state).Inc()
	m.turnStageWindow.ObserveIndicator(state)
}

func (m *Metrics) ObserveDialogueFallback(reason string) {
	if m == nil || m.DialogueFallbacks == nil {
		return
	}
	m.DialogueFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveBookingAttempt(outcome string) {
	if m == nil || m.BookingAttempts == nil {
		return
	}
	m.BookingAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTokenRedemption(outcome string) {
	if m == nil || m.TokenRedemption == nil {
		return
	}
	m.TokenRedemption.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSTTReconnect(outcome string) {
	if m == nil || m.STTReconnects == nil {
		return
	}
	m.STTReconnects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTTSCacheResult(result string) {
	if m == nil || m.TTSCacheResult == nil {
		return
	}
	m.TTSCacheResult.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProctorWarning(category string) {
	if m == nil || m.ProctorWarnings == nil {
		return
	}
	m.ProctorWarnings.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveMuxOutcome(outcome string) {
	if m == nil || m.MuxOutcomes == nil {
		return
	}
	m.MuxOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCodeRunOutcome(outcome string) {
	if m == nil || m.CodeRunOutcomes == nil {
		return
	}
	m.CodeRunOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEvaluationAssembly(result string, d time.Duration) {
	if m == nil || m.EvaluationAssembly == nil {
		return
	}
	m.EvaluationAssembly.WithLabelValues(result).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m.turnStageWindow == nil {
		return TurnStageSnapshot{}
	}
	return m.turnStageWindow.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil || m.turnStageWindow == nil {
		return
	}
	m.turnStageWindow.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
