package sttrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/interviewrt/core/internal/reliability"
)

// WSProvider connects to a hosted realtime STT service over
// WebSocket: session parameters go in the query string, PCM frames go
// up as binary messages, and hypotheses come back as JSON events.
type WSProvider struct {
	baseURL string
	apiKey  string
	dialer  *websocket.Dialer
}

func NewWSProvider(baseURL, apiKey string) *WSProvider {
	return &WSProvider{baseURL: baseURL, apiKey: apiKey, dialer: websocket.DefaultDialer}
}

type wsSession struct {
	conn *websocket.Conn
}

func (s *wsSession) SendAudio(_ context.Context, pcm []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *wsSession) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// upstreamEvent is the provider's result message shape.
type upstreamEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}

func (p *WSProvider) StartSession(ctx context.Context, cfg SessionConfig) (ProviderSession, <-chan Event, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("sttrelay: provider url: %w", err)
	}
	q := u.Query()
	q.Set("language", cfg.Language)
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	q.Set("endpointing", strconv.Itoa(cfg.EndpointingMS))
	q.Set("utterance_end_ms", strconv.Itoa(cfg.UtteranceEndMS))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	u.RawQuery = q.Encode()

	header := http.Header{}
	if p.apiKey != "" {
		header.Set("Authorization", "Token "+p.apiKey)
	}

	conn, resp, err := p.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("sttrelay: provider dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("sttrelay: provider dial: %w", err)
	}

	events := make(chan Event, 32)
	go func() {
		defer close(events)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev upstreamEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				continue
			}
			if ev.Error != "" {
				if reliability.IsRetryableRealtimeMessageType(ev.Type) {
					// Transient throttle; the session stays up and
					// later frames may still transcribe.
					continue
				}
				events <- Event{Err: fmt.Errorf("sttrelay: provider error: %s", ev.Error)}
				return
			}
			events <- Event{Text: ev.Text, IsFinal: ev.IsFinal}
		}
	}()

	return &wsSession{conn: conn}, events, nil
}
