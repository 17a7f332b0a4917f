// Package proctor runs the per-session vision loop:
// detection, classification, warning rate-limiting, and snapshot
// writeback. The detector is pluggable: a mock for dev/test, or a
// remote HTTP inference endpoint for production, rather than a vision
// model vendored into this repo.
package proctor

import "time"

// Frame is one captured video frame handed to the detector.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
	Width      int
	Height     int
}

// Detection is one bounding box the detector reports.
type Detection struct {
	Class      string // "person", "phone", ...
	Confidence float64
	CenterX    float64 // normalized 0..1, frame-relative
}

// WarningKind names a proctoring observation worth persisting.
type WarningKind string

const (
	KindNoPerson         WarningKind = "NoPerson"
	KindMultiplePeople   WarningKind = "MultiplePeople"
	KindPhoneDetected    WarningKind = "PhoneDetected"
	KindLowAttention     WarningKind = "LowAttention"
	KindTabSwitch        WarningKind = "TabSwitch"
	KindNoiseBurst       WarningKind = "NoiseBurst"
	KindMultipleSpeakers WarningKind = "MultipleSpeakers"
)

// WarningEvent is one persisted proctoring warning.
type WarningEvent struct {
	SessionID   string
	Kind        WarningKind
	At          time.Time
	SnapshotRef string
	DedupKey    string
}

const (
	personConfidenceThreshold = 0.5
	phoneConfidenceThreshold  = 0.4
	attentionDeviationPct     = 0.35
	attentionSustainedFor     = 3 * time.Second

	debounceHold  = 2 * time.Second
	dedupWindow   = 10 * time.Second
	targetFrameHz = 4
	maxFrameLag   = 500 * time.Millisecond

	degradedAfterFailures = 3
)
