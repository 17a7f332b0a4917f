package ttscache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/interviewrt/core/internal/reliability"
)

// synthAttempts bounds retries on transient provider failures; the
// caller's deadline still wins.
const synthAttempts = 3

var synthBackoffBase = 250 * time.Millisecond
var synthBackoffCap = 1 * time.Second

// HTTPProvider calls a hosted TTS service: JSON request in, audio
// bytes out, with the response Content-Type naming the container.
// Transient upstream failures (429/5xx) are retried with backoff;
// permanent ones fail the call so the dialogue degrades to text.
type HTTPProvider struct {
	Endpoint string
	APIKey   string
	Voice    string
	Client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{Endpoint: endpoint, APIKey: apiKey, Client: client}
}

type ttsRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

func (p *HTTPProvider) Synthesize(ctx context.Context, text, voice, language string) ([]byte, string, error) {
	body, err := json.Marshal(ttsRequest{Text: text, Voice: voice, Language: language})
	if err != nil {
		return nil, "", err
	}

	var lastErr error
	for attempt := 0; attempt < synthAttempts; attempt++ {
		if attempt > 0 {
			d := reliability.ExponentialBackoff(attempt-1, synthBackoffBase, synthBackoffCap)
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(d):
			}
		}
		audio, format, retryable, err := p.synthesizeOnce(ctx, body)
		if err == nil {
			return audio, format, nil
		}
		lastErr = err
		if !retryable {
			return nil, "", err
		}
	}
	return nil, "", lastErr
}

func (p *HTTPProvider) synthesizeOnce(ctx context.Context, body []byte) (audio []byte, format string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", false, fmt.Errorf("ttscache: build synth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		// Network-level failures are worth one more try.
		return nil, "", true, fmt.Errorf("ttscache: synth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", reliability.IsRetryableHTTPStatus(resp.StatusCode),
			fmt.Errorf("ttscache: provider returned status %d", resp.StatusCode)
	}
	audio, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", true, fmt.Errorf("ttscache: read synth response: %w", err)
	}
	return audio, formatFromContentType(resp.Header.Get("Content-Type")), false, nil
}

func formatFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "mp3"
	case strings.Contains(ct, "wav"):
		return "wav"
	case strings.Contains(ct, "ogg"):
		return "ogg"
	default:
		return "mp3"
	}
}

// MockProvider returns a deterministic payload without any network
// call, for dev setups and tests.
type MockProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *MockProvider) Synthesize(_ context.Context, text, _, _ string) ([]byte, string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return []byte("tts:" + text), "mp3", nil
}

func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
