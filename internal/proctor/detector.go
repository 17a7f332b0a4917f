package proctor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Detector runs object/face detection over one frame. Implementations
// are expected to honor ctx cancellation; the loop treats any error as
// a single dropped frame.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]Detection, error)
}

// MockDetector returns a scripted sequence of results, used in tests
// and local development where no inference endpoint is configured.
type MockDetector struct {
	Results []DetectorResult
	idx     int
}

// DetectorResult is one scripted Detect() outcome.
type DetectorResult struct {
	Detections []Detection
	Err        error
}

func (m *MockDetector) Detect(_ context.Context, _ Frame) ([]Detection, error) {
	if len(m.Results) == 0 {
		return nil, nil
	}
	r := m.Results[m.idx%len(m.Results)]
	m.idx++
	return r.Detections, r.Err
}

// RemoteDetector calls an external inference service over HTTP with
// a small JSON request/response contract.
type RemoteDetector struct {
	Endpoint string
	Client   *http.Client
}

func NewRemoteDetector(endpoint string, client *http.Client) *RemoteDetector {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return &RemoteDetector{Endpoint: endpoint, Client: client}
}

type remoteDetectResponse struct {
	Detections []Detection `json:"detections"`
}

func (r *RemoteDetector) Detect(ctx context.Context, frame Frame) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("proctor: build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proctor: detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proctor: detector returned status %d", resp.StatusCode)
	}

	var out remoteDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("proctor: decode detect response: %w", err)
	}
	return out.Detections, nil
}
