package recording

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/interviewrt/core/internal/objectstore"
	"github.com/interviewrt/core/internal/observability"
)

// Service owns the upload-assemble-mux-verify flow for session
// recordings.
type Service struct {
	assembler *Assembler
	ffmpeg    *FFmpeg
	store     objectstore.Store
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewService(assembler *Assembler, ffmpeg *FFmpeg, store objectstore.Store, metrics *observability.Metrics, log zerolog.Logger) *Service {
	return &Service{assembler: assembler, ffmpeg: ffmpeg, store: store, metrics: metrics, log: log}
}

// AppendChunk accepts one uploaded chunk for a session stream.
func (s *Service) AppendChunk(sessionID string, kind Kind, ext string, chunk io.Reader) error {
	return s.assembler.Append(sessionID, kind, ext, chunk)
}

// Finalize produces the session's single merged artifact: use the
// upload as-is when it already carries audio and no
// separate mic file exists, otherwise mux video with mic (+ TTS),
// verify exactly one audio stream, and delete the unmerged original.
// The mux failure policy never blocks session termination: after two
// failed attempts the original is kept with HasAudio=false.
func (s *Service) Finalize(ctx context.Context, sessionID string, marks []QuestionMark) (Artifact, error) {
	paths, err := s.assembler.Paths(sessionID)
	if err != nil {
		return Artifact{}, err
	}
	videoPath, ok := paths[KindVideo]
	if !ok {
		return Artifact{}, ErrNoVideo
	}

	log := s.log.With().Str("session_id", sessionID).Logger()

	origProbe, probeErr := s.ffmpeg.Probe(ctx, videoPath)
	originalHasAudio := probeErr == nil && origProbe.AudioStreams > 0

	micPath, hasMic := paths[KindMic]
	if originalHasAudio && !hasMic {
		s.observe("as_is")
		return s.persist(ctx, sessionID, videoPath, origProbe.DurationMS, true, marks)
	}
	if !hasMic {
		// Nothing to mix in and the upload is silent; keep it as the
		// best artifact we have.
		s.observe("no_audio_source")
		return s.persist(ctx, sessionID, videoPath, origProbe.DurationMS, false, marks)
	}

	outPath := filepath.Join(filepath.Dir(videoPath), "final.mp4")
	var muxErr error
	for attempt := 1; attempt <= muxAttempts; attempt++ {
		muxErr = s.ffmpeg.Mux(ctx, videoPath, micPath, paths[KindTTS], outPath)
		if muxErr == nil {
			break
		}
		log.Warn().Err(muxErr).Int("attempt", attempt).Msg("mux attempt failed")
	}
	if muxErr != nil {
		s.observe("mux_failed")
		return s.persist(ctx, sessionID, videoPath, origProbe.DurationMS, false, marks)
	}

	merged, err := s.ffmpeg.Probe(ctx, outPath)
	if err != nil || merged.AudioStreams != 1 {
		if err == nil {
			err = ErrProbeMismatch
		}
		log.Warn().Err(err).Int("audio_streams", merged.AudioStreams).Msg("mux verification failed, keeping original")
		s.observe("verify_failed")
		return s.persist(ctx, sessionID, videoPath, origProbe.DurationMS, originalHasAudio, marks)
	}

	// Verified: the unmerged original must not survive the merge.
	if err := os.Remove(videoPath); err != nil {
		log.Warn().Err(err).Msg("remove unmerged original failed")
	}
	s.observe("merged")
	return s.persist(ctx, sessionID, outPath, merged.DurationMS, true, marks)
}

// persist uploads the chosen file as the session's final artifact and
// removes the working directory.
func (s *Service) persist(ctx context.Context, sessionID, path string, durationMS int64, hasAudio bool, marks []QuestionMark) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("recording: open final file: %w", err)
	}
	ref, err := s.store.Put(ctx, "recordings/"+sessionID, "final"+filepath.Ext(path), f)
	f.Close()
	if err != nil {
		return Artifact{}, fmt.Errorf("recording: persist final artifact: %w", err)
	}
	if err := s.assembler.Cleanup(sessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("cleanup working dir failed")
	}
	return Artifact{
		SessionID:     sessionID,
		FinalRef:      ref,
		DurationMS:    durationMS,
		HasAudio:      hasAudio,
		QuestionMarks: marks,
	}, nil
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveMuxOutcome(outcome)
	}
}
