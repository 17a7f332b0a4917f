package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/interviewrt/core/internal/objectstore"
)

// scriptedRunner fakes ffmpeg/ffprobe: probe responses are keyed by
// file path, and mux calls create the output file so the subsequent
// persist step has something to read.
type scriptedRunner struct {
	probes  map[string]string
	muxErr  []error
	muxRuns int
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if strings.Contains(name, "probe") {
		path := args[len(args)-1]
		out, ok := r.probes[filepath.Base(path)]
		if !ok {
			return nil, fmt.Errorf("probe: no such file %s", path)
		}
		return []byte(out), nil
	}
	// ffmpeg mux: last arg is the output path.
	var err error
	if r.muxRuns < len(r.muxErr) {
		err = r.muxErr[r.muxRuns]
	}
	r.muxRuns++
	if err != nil {
		return nil, err
	}
	return nil, os.WriteFile(args[len(args)-1], []byte("merged"), 0o644)
}

const (
	probeVideoOnly     = `{"streams":[{"codec_type":"video"}],"format":{"duration":"12.5"}}`
	probeVideoAndAudio = `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}],"format":{"duration":"12.5"}}`
	probeTwoAudio      = `{"streams":[{"codec_type":"video"},{"codec_type":"audio"},{"codec_type":"audio"}],"format":{"duration":"12.5"}}`
)

func newTestService(t *testing.T, runner Runner) (*Service, *Assembler, string) {
	t.Helper()
	work := t.TempDir()
	storeRoot := t.TempDir()
	assembler, err := NewAssembler(work)
	require.NoError(t, err)
	store, err := objectstore.NewLocalStore(storeRoot)
	require.NoError(t, err)
	ff := NewFFmpeg("ffmpeg", "ffprobe", runner)
	return NewService(assembler, ff, store, nil, zerolog.Nop()), assembler, storeRoot
}

func upload(t *testing.T, svc *Service, sessionID string, kind Kind, ext, content string) {
	t.Helper()
	require.NoError(t, svc.AppendChunk(sessionID, kind, ext, strings.NewReader(content)))
}

func TestFinalizeMuxesAndDeletesOriginal(t *testing.T) {
	// Spec scenario S6: silent video + separate mic audio. Expect one
	// merged artifact, unmerged chunk gone, probe shows 1 audio
	// stream, HasAudio=true.
	runner := &scriptedRunner{probes: map[string]string{
		"video.webm": probeVideoOnly,
		"final.mp4":  probeVideoAndAudio,
	}}
	svc, _, storeRoot := newTestService(t, runner)

	upload(t, svc, "sess1", KindVideo, "webm", "video-bytes")
	upload(t, svc, "sess1", KindMic, "webm", "mic-bytes")

	art, err := svc.Finalize(context.Background(), "sess1", nil)
	require.NoError(t, err)
	require.True(t, art.HasAudio)
	require.Equal(t, int64(12500), art.DurationMS)
	require.NotEmpty(t, art.FinalRef)
	require.Equal(t, 1, runner.muxRuns)

	// Merged artifact exists in the store; working dir is gone.
	_, err = os.Stat(filepath.Join(storeRoot, art.FinalRef))
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(storeRoot, "recordings", "sess1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFinalizeUsesUploadAsIsWhenItHasAudio(t *testing.T) {
	runner := &scriptedRunner{probes: map[string]string{
		"video.webm": probeVideoAndAudio,
	}}
	svc, _, _ := newTestService(t, runner)

	upload(t, svc, "sess1", KindVideo, "webm", "video-with-audio")

	art, err := svc.Finalize(context.Background(), "sess1", nil)
	require.NoError(t, err)
	require.True(t, art.HasAudio)
	require.Zero(t, runner.muxRuns)
}

func TestFinalizeKeepsOriginalAfterTwoMuxFailures(t *testing.T) {
	runner := &scriptedRunner{
		probes: map[string]string{"video.webm": probeVideoOnly},
		muxErr: []error{errors.New("boom"), errors.New("boom again")},
	}
	svc, _, _ := newTestService(t, runner)

	upload(t, svc, "sess1", KindVideo, "webm", "video-bytes")
	upload(t, svc, "sess1", KindMic, "webm", "mic-bytes")

	art, err := svc.Finalize(context.Background(), "sess1", nil)
	require.NoError(t, err)
	require.False(t, art.HasAudio)
	require.Equal(t, 2, runner.muxRuns)
	require.NotEmpty(t, art.FinalRef)
}

func TestFinalizeVerificationFailureKeepsOriginal(t *testing.T) {
	runner := &scriptedRunner{probes: map[string]string{
		"video.webm": probeVideoOnly,
		"final.mp4":  probeTwoAudio,
	}}
	svc, _, _ := newTestService(t, runner)

	upload(t, svc, "sess1", KindVideo, "webm", "video-bytes")
	upload(t, svc, "sess1", KindMic, "webm", "mic-bytes")

	art, err := svc.Finalize(context.Background(), "sess1", nil)
	require.NoError(t, err)
	// Original had no audio, so the kept artifact reports none.
	require.False(t, art.HasAudio)
}

func TestFinalizeWithoutVideoFails(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedRunner{})
	_, err := svc.Finalize(context.Background(), "sess1", nil)
	require.ErrorIs(t, err, ErrNoVideo)
}

func TestLateChunkAfterFinalizeRejected(t *testing.T) {
	runner := &scriptedRunner{probes: map[string]string{"video.webm": probeVideoAndAudio}}
	svc, _, _ := newTestService(t, runner)

	upload(t, svc, "sess1", KindVideo, "webm", "video")
	_, err := svc.Finalize(context.Background(), "sess1", nil)
	require.NoError(t, err)

	err = svc.AppendChunk("sess1", KindVideo, "webm", strings.NewReader("late"))
	require.ErrorIs(t, err, ErrAlreadyFinal)
}

func TestParseProbe(t *testing.T) {
	res, err := ParseProbe([]byte(probeVideoAndAudio))
	require.NoError(t, err)
	require.Equal(t, 1, res.AudioStreams)
	require.Equal(t, 1, res.VideoStreams)
	require.Equal(t, int64(12500), res.DurationMS)
}
