// Package sttrelay bridges a candidate browser's WebSocket connection
// to an external speech-to-text provider, forwarding binary PCM frames
// upstream and provider text events back downstream, with bounded
// reconnection and a text-only fallback on permanent failure.
package sttrelay

import "context"

// SessionConfig parameterizes the upstream provider session.
type SessionConfig struct {
	Language       string
	Model          string
	EndpointingMS  int
	UtteranceEndMS int
	InterimResults bool
	SampleRate     int
}

// Event is a provider transcription result.
type Event struct {
	Text    string
	IsFinal bool
	Err     error
}

// ProviderSession is a live upstream STT connection for one candidate.
type ProviderSession interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Close() error
}

// Provider opens upstream STT sessions.
type Provider interface {
	StartSession(ctx context.Context, cfg SessionConfig) (ProviderSession, <-chan Event, error)
}
