package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Toolchain is the external media tooling the assembler drives.
type Toolchain interface {
	// Transcode encodes a WAV as AAC at bitrate (e.g. "128k").
	Transcode(ctx context.Context, in, out, bitrate string) error
	// Concat joins same-codec files without re-encoding.
	Concat(ctx context.Context, inputs []string, out string) error
	// JoinWAV joins WAVs of differing formats, resampling to f.
	JoinWAV(ctx context.Context, inputs []string, out string, f Format) error
	// Mux combines audio, an optional cover and an FFMETADATA file.
	Mux(ctx context.Context, req MuxRequest) error
	// Duration measures a media file.
	Duration(ctx context.Context, path string) (time.Duration, error)
	// Chapters counts the chapter markers embedded in a container.
	Chapters(ctx context.Context, path string) (int, error)
}

// MuxRequest describes the final container write.
type MuxRequest struct {
	Audio    string
	Cover    string // optional JPEG
	Metadata string // FFMETADATA1 file
	Out      string
}

// FFmpeg implements Toolchain with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *slog.Logger
}

// NewFFmpeg returns a toolchain using the given binaries, defaulting to PATH
// lookups of "ffmpeg" and "ffprobe".
func NewFFmpeg(ffmpegPath, ffprobePath string, logger *slog.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Logger: logger}
}

// CheckAvailable verifies both binaries can be found.
func (f *FFmpeg) CheckAvailable() error {
	if _, err := exec.LookPath(f.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if _, err := exec.LookPath(f.FFprobePath); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}
	return nil
}

func (f *FFmpeg) Transcode(ctx context.Context, in, out, bitrate string) error {
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	return f.ffmpeg(ctx, "-y", "-i", in, "-vn", "-c:a", "aac", "-b:a", bitrate, out)
}

func (f *FFmpeg) Concat(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return ErrNoSegments
	}
	listPath := out + ".txt"
	if err := os.WriteFile(listPath, []byte(concatList(inputs)), 0o644); err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listPath)

	return f.ffmpeg(ctx, "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", out)
}

// concatList renders a concat demuxer list with single-quote escaping.
func concatList(inputs []string) string {
	var sb strings.Builder
	for _, in := range inputs {
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(in, "'", `'\''`))
	}
	return sb.String()
}

func (f *FFmpeg) JoinWAV(ctx context.Context, inputs []string, out string, format Format) error {
	if len(inputs) == 0 {
		return ErrNoSegments
	}
	if format.SampleRate <= 0 {
		format.SampleRate = DefaultSampleRate
	}
	layout := "mono"
	if format.Channels == 2 {
		layout = "stereo"
	}

	args := []string{"-y"}
	var filter strings.Builder
	for i, in := range inputs {
		args = append(args, "-i", in)
		fmt.Fprintf(&filter, "[%d:a]aresample=%d,aformat=sample_fmts=s16:channel_layouts=%s[a%d];", i, format.SampleRate, layout, i)
	}
	for i := range inputs {
		fmt.Fprintf(&filter, "[a%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[out]", len(inputs))

	args = append(args, "-filter_complex", filter.String(), "-map", "[out]", "-c:a", "pcm_s16le", out)
	return f.ffmpeg(ctx, args...)
}

func (f *FFmpeg) Mux(ctx context.Context, req MuxRequest) error {
	args := []string{"-y", "-i", req.Audio}
	if req.Cover != "" {
		args = append(args, "-i", req.Cover, "-i", req.Metadata,
			"-map", "0:a", "-map", "1:v", "-map_metadata", "2", "-map_chapters", "2",
			"-c:a", "copy", "-c:v", "mjpeg", "-disposition:v", "attached_pic")
	} else {
		args = append(args, "-i", req.Metadata,
			"-map", "0:a", "-map_metadata", "1", "-map_chapters", "1",
			"-c:a", "copy")
	}
	args = append(args, "-movflags", "+faststart", "-f", "mp4", req.Out)
	return f.ffmpeg(ctx, args...)
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Chapters []json.RawMessage `json:"chapters"`
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	var out probeOutput
	if err := f.probe(ctx, &out, "-show_entries", "format=duration", path); err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", out.Format.Duration, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (f *FFmpeg) Chapters(ctx context.Context, path string) (int, error) {
	var out probeOutput
	if err := f.probe(ctx, &out, "-show_chapters", path); err != nil {
		return 0, err
	}
	return len(out.Chapters), nil
}

func (f *FFmpeg) probe(ctx context.Context, v any, args ...string) error {
	args = append([]string{"-v", "error", "-of", "json"}, args...)
	cmd := exec.CommandContext(ctx, f.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffprobe failed: %w", err)
	}
	if err := json.Unmarshal(output, v); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return nil
}

func (f *FFmpeg) ffmpeg(ctx context.Context, args ...string) error {
	start := time.Now()
	output, err := runCommand(ctx, f.FFmpegPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, tail(output, 2000))
	}
	f.Logger.Debug("ffmpeg finished", "args", len(args), "elapsed", time.Since(start))
	return nil
}

// runCommand executes an external binary and captures combined output.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
