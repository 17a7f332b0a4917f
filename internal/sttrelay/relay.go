package sttrelay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/interviewrt/core/internal/observability"
	"github.com/interviewrt/core/internal/protocol"
	"github.com/interviewrt/core/internal/reliability"
	"github.com/interviewrt/core/internal/transcript"
)

// Connection schedule: one immediate attempt, then up to three
// retries delayed 250ms, 500ms, and 1s.
const maxReconnectAttempts = 4

var backoffBase = 250 * time.Millisecond
var backoffCap = 1 * time.Second

// reconnectDelay is the gap before the given retry attempt (attempt 0
// is the immediate first try and never waits).
func reconnectDelay(attempt int) time.Duration {
	return reliability.ExponentialBackoff(attempt-1, backoffBase, backoffCap)
}

// BrowserConn is the subset of *gorilla/websocket.Conn the relay
// needs; *websocket.Conn satisfies it directly, and tests can supply a
// lightweight fake.
type BrowserConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Relay bridges one candidate browser connection to one upstream STT
// provider session.
type Relay struct {
	provider Provider
	metrics  *observability.Metrics
}

func New(provider Provider, metrics *observability.Metrics) *Relay {
	return &Relay{provider: provider, metrics: metrics}
}

// Run reads the initial config message, opens the upstream provider
// session (reconnecting on drop: an immediate attempt, then retries
// delayed 250ms/500ms/1s),
// and pumps audio and transcript events until the browser
// disconnects or the provider fails permanently. onTranscript is
// called once per provider event so the caller's transcript
// accumulator stays in sync with what the browser is shown.
func (r *Relay) Run(ctx context.Context, conn BrowserConn, onTranscript func(transcript.Event), onEnded func(err error)) error {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	cfg, err := protocol.ParseSTTConfig(raw)
	if err != nil {
		return err
	}

	sessionCfg := SessionConfig{
		Language:       cfg.Language,
		Model:          cfg.Model,
		EndpointingMS:  500,
		UtteranceEndMS: 2000,
		InterimResults: true,
		SampleRate:     cfg.SampleRate,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	session, events, err := r.connectWithRetry(ctx, sessionCfg)
	if err != nil {
		r.observeReconnect("exhausted")
		_ = conn.WriteJSON(protocol.STTEnded{Type: protocol.TypeSTTEnded, Error: err.Error()})
		if onEnded != nil {
			onEnded(err)
		}
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				// Events the provider queued before the browser went
				// away still reach onTranscript.
				for {
					select {
					case ev, ok := <-events:
						if !ok {
							return
						}
						if ev.Err == nil {
							onTranscript(transcript.Event{Text: ev.Text, IsFinal: ev.IsFinal, ArrivedAt: time.Now().UTC()})
						}
					default:
						return
					}
				}
			case ev, ok := <-events:
				if !ok {
					// Provider connection dropped; try to reconnect.
					mu.Lock()
					newSession, newEvents, rerr := r.connectWithRetry(ctx, sessionCfg)
					if rerr != nil {
						mu.Unlock()
						r.observeReconnect("exhausted")
						_ = conn.WriteJSON(protocol.STTEnded{Type: protocol.TypeSTTEnded, Error: rerr.Error()})
						if onEnded != nil {
							onEnded(rerr)
						}
						return
					}
					session, events = newSession, newEvents
					mu.Unlock()
					continue
				}
				if ev.Err != nil {
					continue
				}
				onTranscript(transcript.Event{Text: ev.Text, IsFinal: ev.IsFinal, ArrivedAt: time.Now().UTC()})
				msgType := protocol.TypeSTTInterim
				if ev.IsFinal {
					msgType = protocol.TypeSTTFinal
				}
				_ = conn.WriteJSON(protocol.STTResult{Type: msgType, Text: ev.Text, At: time.Now().UnixMilli()})
			}
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			cancel()
			mu.Lock()
			_ = session.Close()
			mu.Unlock()
			<-done
			return nil
		}
		mu.Lock()
		sendErr := session.SendAudio(ctx, frame)
		mu.Unlock()
		if sendErr != nil {
			continue
		}
	}
}

func (r *Relay) connectWithRetry(ctx context.Context, cfg SessionConfig) (ProviderSession, <-chan Event, error) {
	var lastErr error
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		if attempt > 0 {
			d := reconnectDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(d):
			}
		}
		session, events, err := r.provider.StartSession(ctx, cfg)
		if err == nil {
			r.observeReconnect("ok")
			return session, events, nil
		}
		lastErr = err
		r.observeReconnect("retry")
	}
	if lastErr == nil {
		lastErr = errors.New("sttrelay: provider unavailable")
	}
	return nil, nil, lastErr
}

func (r *Relay) observeReconnect(outcome string) {
	if r.metrics != nil {
		r.metrics.ObserveSTTReconnect(outcome)
	}
}
