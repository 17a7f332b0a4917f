package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an external binary and returns its stdout. The seam
// lets tests drive the mux logic without ffmpeg installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, err error)
}

// ExecRunner runs real subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("recording: %s: %w: %s", name, err, msg)
	}
	return out.Bytes(), nil
}

// FFmpeg wraps the ffmpeg/ffprobe binaries behind a Runner.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Runner      Runner
}

func NewFFmpeg(ffmpegPath, ffprobePath string, runner Runner) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Runner: runner}
}

// Mux merges videoPath with the mic and optional TTS audio files into
// outPath: H.264 video (always re-encoded with libx264, even when the
// upload is already H.264), AAC 192 kbps stereo audio, mic at gain 1.0
// and TTS at gain 0.8.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, micPath, ttsPath, outPath string) error {
	args := []string{"-y", "-i", videoPath, "-i", micPath}
	filter := fmt.Sprintf("[1:a]volume=%.1f[mic]", micGain)
	amixInputs := "[mic]"
	n := 1
	if ttsPath != "" {
		args = append(args, "-i", ttsPath)
		filter += fmt.Sprintf(";[2:a]volume=%.1f[tts]", ttsGain)
		amixInputs += "[tts]"
		n = 2
	}
	filter += fmt.Sprintf(";%samix=inputs=%d:duration=longest[aout]", amixInputs, n)

	args = append(args,
		"-filter_complex", filter,
		"-map", "0:v:0",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ac", "2",
		"-movflags", "+faststart",
		outPath,
	)
	_, err := f.Runner.Run(ctx, f.FFmpegPath, args...)
	return err
}

// ProbeResult is the subset of ffprobe output the verifier needs.
type ProbeResult struct {
	AudioStreams int
	VideoStreams int
	DurationMS   int64
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a media file's stream layout and duration.
func (f *FFmpeg) Probe(ctx context.Context, path string) (ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := f.Runner.Run(ctx, f.FFprobePath,
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	)
	if err != nil {
		return ProbeResult{}, err
	}
	return ParseProbe(out)
}

// ParseProbe decodes ffprobe's JSON output.
func ParseProbe(raw []byte) (ProbeResult, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ProbeResult{}, fmt.Errorf("recording: parse ffprobe output: %w", err)
	}
	var res ProbeResult
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			res.AudioStreams++
		case "video":
			res.VideoStreams++
		}
	}
	if d := strings.TrimSpace(parsed.Format.Duration); d != "" {
		if secs, err := strconv.ParseFloat(d, 64); err == nil {
			res.DurationMS = int64(secs * 1000)
		}
	}
	return res, nil
}
