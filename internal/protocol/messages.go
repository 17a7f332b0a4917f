// Package protocol defines the wire messages exchanged over the
// candidate-facing WebSocket surfaces: the STT relay
// and the push channel the Dialogue Controller uses to deliver
// questions, system notices, and typed errors to the browser.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a JSON envelope's payload shape.
type MessageType string

const (
	// Client -> relay, first message on /stt.
	TypeSTTConfig MessageType = "config"
	// Relay -> client, STT provider results.
	TypeSTTInterim MessageType = "interim"
	TypeSTTFinal   MessageType = "final"
	TypeSTTEnded   MessageType = "ended"

	// Dialogue push events.
	TypeQuestion     MessageType = "question"
	TypeSystemEvent  MessageType = "system_event"
	TypeErrorEvent   MessageType = "error_event"
	TypeWarningEvent MessageType = "warning_event"
	TypeTurnEnd      MessageType = "turn_end"
)

var ErrUnsupportedType = errors.New("protocol: unsupported message type")

// STTConfig is the first JSON message a candidate browser sends on
// /stt, parameterizing the upstream provider session.
type STTConfig struct {
	Type       MessageType `json:"type"`
	SampleRate int         `json:"sample_rate"`
	Language   string      `json:"language"`
	Model      string      `json:"model"`
}

// STTResult is pushed to the browser for each interim/final hypothesis.
type STTResult struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
	At   int64       `json:"at"`
}

// STTEnded signals the relay gave up on the upstream provider and the
// Dialogue Controller has degraded to text-only fallback.
type STTEnded struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error,omitempty"`
}

// Question is pushed when the Dialogue Controller enters Asking.
type Question struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	AudioURL string      `json:"audio_url,omitempty"`
	Index    int         `json:"index"`
	Level    string      `json:"level"`
}

// SystemEvent carries a non-fatal status notice (e.g. "fallback",
// "degraded").
type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ErrorEvent surfaces a candidate-visible failure category. No stack
// traces are ever included.
type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// WarningEventMsg is pushed so a proctoring-aware UI can show a
// transient notice; persistence happens server-side regardless.
type WarningEventMsg struct {
	Type MessageType `json:"type"`
	Kind string      `json:"kind"`
	At   int64       `json:"at"`
}

// TurnEndMsg signals the candidate's turn has been scored and the
// interviewer is about to speak again.
type TurnEndMsg struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

type envelope struct {
	Type       MessageType `json:"type"`
	SampleRate int         `json:"sample_rate"`
	Language   string      `json:"language"`
	Model      string      `json:"model"`
}

// ParseSTTConfig parses the first client message on /stt.
func ParseSTTConfig(raw []byte) (STTConfig, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return STTConfig{}, fmt.Errorf("protocol: invalid config message: %w", err)
	}
	if env.Type != TypeSTTConfig {
		return STTConfig{}, ErrUnsupportedType
	}
	if env.SampleRate <= 0 {
		return STTConfig{}, errors.New("protocol: config requires sample_rate")
	}
	return STTConfig{Type: TypeSTTConfig, SampleRate: env.SampleRate, Language: env.Language, Model: env.Model}, nil
}
