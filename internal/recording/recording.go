// Package recording accepts chunked A/V uploads from the candidate
// browser and, on session finalize, muxes video with the microphone
// (+ TTS) audio into a single merged artifact, the only form
// retained. The mux itself shells out to ffmpeg/ffprobe through a
// subprocess adapter.
package recording

import (
	"errors"
	"time"
)

// Artifact is the retained recording of one session.
type Artifact struct {
	SessionID     string
	FinalRef      string
	DurationMS    int64
	HasAudio      bool
	QuestionMarks []QuestionMark
}

// QuestionMark pins one interviewer question to an offset in the
// recording, for the report's question timeline.
type QuestionMark struct {
	Sequence int
	Text     string
	OffsetMS int64
}

// Kind distinguishes the upload streams a session may produce.
type Kind string

const (
	KindVideo Kind = "video"
	KindMic   Kind = "mic"
	KindTTS   Kind = "tts"
)

var (
	ErrNoVideo       = errors.New("recording: no video uploaded for session")
	ErrAlreadyFinal  = errors.New("recording: session already finalized")
	ErrProbeNoAudio  = errors.New("recording: merged output has no audio stream")
	ErrProbeMismatch = errors.New("recording: merged output does not have exactly one audio stream")
)

const (
	micGain = 1.0
	ttsGain = 0.8

	muxAttempts = 2
)

// probeTimeout bounds ffprobe; the mux itself runs unbounded
// post-session per the concurrency model.
const probeTimeout = 30 * time.Second
