package ttscache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSynthServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func fastBackoff(t *testing.T) {
	t.Helper()
	oldBase, oldCap := synthBackoffBase, synthBackoffCap
	synthBackoffBase, synthBackoffCap = 0, 0
	t.Cleanup(func() { synthBackoffBase, synthBackoffCap = oldBase, oldCap })
}

func TestHTTPProviderRetriesTransientStatus(t *testing.T) {
	fastBackoff(t)
	var calls atomic.Int32
	srv := newSynthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("audio-bytes"))
	})

	p := NewHTTPProvider(srv.URL, "key", nil)
	audio, format, err := p.Synthesize(context.Background(), "hello", "v1", "en")
	require.NoError(t, err)
	require.Equal(t, "mp3", format)
	require.Equal(t, []byte("audio-bytes"), audio)
	require.Equal(t, int32(2), calls.Load())
}

func TestHTTPProviderDoesNotRetryPermanentStatus(t *testing.T) {
	fastBackoff(t)
	var calls atomic.Int32
	srv := newSynthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	p := NewHTTPProvider(srv.URL, "bad-key", nil)
	_, _, err := p.Synthesize(context.Background(), "hello", "v1", "en")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestHTTPProviderGivesUpAfterBoundedAttempts(t *testing.T) {
	fastBackoff(t)
	var calls atomic.Int32
	srv := newSynthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	p := NewHTTPProvider(srv.URL, "key", nil)
	_, _, err := p.Synthesize(context.Background(), "hello", "v1", "en")
	require.Error(t, err)
	require.Equal(t, int32(synthAttempts), calls.Load())
}
