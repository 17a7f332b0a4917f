package sttrelay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interviewrt/core/internal/transcript"
)

type fakeSession struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeSession) SendAudio(_ context.Context, pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pcm)
	return nil
}
func (f *fakeSession) Close() error { return nil }

type fakeProvider struct {
	events chan Event
}

func (f *fakeProvider) StartSession(_ context.Context, _ SessionConfig) (ProviderSession, <-chan Event, error) {
	return &fakeSession{}, f.events, nil
}

type failingProvider struct{}

func (failingProvider) StartSession(_ context.Context, _ SessionConfig) (ProviderSession, <-chan Event, error) {
	return nil, nil, errors.New("provider down")
}

type fakeConn struct {
	mu       sync.Mutex
	inbound  [][]byte
	idx      int
	outbound []any
	closed   bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.inbound) {
		return 0, nil, errors.New("EOF")
	}
	msg := c.inbound[c.idx]
	c.idx++
	return 1, msg, nil
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outbound = append(c.outbound, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func configMsg(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"type": "config", "sample_rate": 16000, "language": "en"})
	require.NoError(t, err)
	return b
}

func TestRelayForwardsTranscriptEvents(t *testing.T) {
	events := make(chan Event, 1)
	conn := &fakeConn{inbound: [][]byte{configMsg(t), []byte("PCMFRAME")}}
	relay := New(&fakeProvider{events: events}, nil)

	var got []transcript.Event
	var mu sync.Mutex
	events <- Event{Text: "hello", IsFinal: true}

	done := make(chan error, 1)
	go func() {
		done <- relay.Run(context.Background(), conn, func(e transcript.Event) {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
		}, nil)
	}()

	err := <-done
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, "hello", got[0].Text)
}

func TestRelayEmitsEndedOnPermanentProviderFailure(t *testing.T) {
	conn := &fakeConn{inbound: [][]byte{configMsg(t)}}
	relay := New(failingProvider{}, nil)
	oldBase, oldCap := backoffBase, backoffCap
	backoffBase, backoffCap = 0, 0
	t.Cleanup(func() { backoffBase, backoffCap = oldBase, oldCap })

	var endedErr error
	err := relay.Run(context.Background(), conn, func(transcript.Event) {}, func(e error) {
		endedErr = e
	})
	require.Error(t, err)
	require.Error(t, endedErr)
	require.NotEmpty(t, conn.outbound)
}

func TestReconnectDelaySchedule(t *testing.T) {
	// Attempt 0 connects immediately; the three retries wait
	// 250ms, 500ms, and 1s.
	var delays []time.Duration
	for attempt := 1; attempt < maxReconnectAttempts; attempt++ {
		delays = append(delays, reconnectDelay(attempt))
	}
	require.Equal(t, []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
	}, delays)
}
