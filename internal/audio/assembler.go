package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultBitrate   = "128k"
	DefaultCrossfade = 50 * time.Millisecond
	DefaultSilence   = 3 * time.Second
)

// AssemblyValidationError means the written container does not match what
// was assembled.
type AssemblyValidationError struct {
	Path     string
	Reason   string
	Expected int
	Actual   int
}

func (e *AssemblyValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("audiobook validation failed for %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("audiobook validation failed for %s: %d chapters, expected %d", e.Path, e.Actual, e.Expected)
}

// Config controls assembly.
type Config struct {
	Toolchain Toolchain
	Bitrate   string
	Crossfade time.Duration
	Silence   time.Duration
	// Format is used for silence and for resampled joins.
	Format            Format
	KeepIntermediates bool
	Logger            *slog.Logger
}

// Assembler builds chapter WAVs and the final M4B.
type Assembler struct {
	cfg    Config
	tools  Toolchain
	logger *slog.Logger
}

// NewAssembler creates an assembler. A nil Toolchain uses ffmpeg from PATH.
func NewAssembler(cfg Config) *Assembler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Toolchain == nil {
		cfg.Toolchain = NewFFmpeg("", "", cfg.Logger)
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = DefaultBitrate
	}
	if cfg.Crossfade < 0 {
		cfg.Crossfade = 0
	}
	if cfg.Silence <= 0 {
		cfg.Silence = DefaultSilence
	}
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = DefaultSampleRate
	}
	if cfg.Format.Channels <= 0 {
		cfg.Format.Channels = DefaultChannels
	}
	cfg.Format.BitsPerSample = 16
	return &Assembler{cfg: cfg, tools: cfg.Toolchain, logger: cfg.Logger.With("component", "assembler")}
}

// ChapterAudio is one chapter's joined WAV.
type ChapterAudio struct {
	Title string
	Path  string
}

// Audiobook describes the finished container.
type Audiobook struct {
	Path      string        `json:"path"`
	Chapters  []ChapterMark `json:"chapters"`
	Duration  time.Duration `json:"duration"`
	SizeBytes int64         `json:"size_bytes"`
}

// WriteChapter joins synthesized chunk WAVs into one chapter WAV at
// outPath. Uniform 16-bit segments are crossfaded in process; anything else
// is handed to the toolchain for a plain resampled join. The file appears
// at outPath only once complete.
func (a *Assembler) WriteChapter(ctx context.Context, segments [][]byte, outPath string) (time.Duration, error) {
	if len(segments) == 0 {
		return 0, ErrNoSegments
	}
	wavs := make([]*WAV, 0, len(segments))
	uniform := true
	for i, seg := range segments {
		w, err := ParseWAV(seg)
		switch {
		case errors.Is(err, ErrUnsupportedFormat):
			uniform = false
		case err != nil:
			return 0, fmt.Errorf("segment %d: %w", i, err)
		}
		wavs = append(wavs, w)
	}

	if uniform {
		joined, err := Crossfade(wavs, a.cfg.Crossfade)
		if err == nil {
			return joined.Duration(), writeAtomic(outPath, joined.Bytes())
		}
		if !errors.Is(err, ErrFormatMismatch) && !errors.Is(err, ErrUnsupportedFormat) {
			return 0, err
		}
		a.logger.Debug("falling back to toolchain join", "reason", err)
	}
	return a.joinWithToolchain(ctx, segments, outPath)
}

func (a *Assembler) joinWithToolchain(ctx context.Context, segments [][]byte, outPath string) (time.Duration, error) {
	dir, err := os.MkdirTemp(filepath.Dir(outPath), ".segments-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	inputs := make([]string, len(segments))
	for i, seg := range segments {
		inputs[i] = filepath.Join(dir, fmt.Sprintf("segment_%04d.wav", i))
		if err := os.WriteFile(inputs[i], seg, 0o644); err != nil {
			return 0, err
		}
	}
	tmp := filepath.Join(dir, "joined.wav")
	if err := a.tools.JoinWAV(ctx, inputs, tmp, a.cfg.Format); err != nil {
		return 0, err
	}
	d, err := a.tools.Duration(ctx, tmp)
	if err != nil {
		return 0, err
	}
	return d, os.Rename(tmp, outPath)
}

// WriteSilence writes the placeholder used for a chapter that could not be
// synthesized.
func (a *Assembler) WriteSilence(outPath string) (time.Duration, error) {
	w := Silence(a.cfg.Silence, a.cfg.Format)
	return w.Duration(), writeAtomic(outPath, w.Bytes())
}

// Assemble transcodes each chapter, concatenates them, writes chapter
// metadata from measured durations and muxes the cover.
func (a *Assembler) Assemble(ctx context.Context, chapters []ChapterAudio, meta Metadata, cover []byte, outPath string) (*Audiobook, error) {
	if len(chapters) == 0 {
		return nil, ErrNoSegments
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, err
	}
	work, err := os.MkdirTemp(filepath.Dir(outPath), ".assemble-*")
	if err != nil {
		return nil, err
	}
	if !a.cfg.KeepIntermediates {
		defer os.RemoveAll(work)
	}
	logger := a.logger.With("output", outPath, "chapters", len(chapters))

	titles := make([]string, len(chapters))
	durations := make([]time.Duration, len(chapters))
	encoded := make([]string, len(chapters))
	for i, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		encoded[i] = filepath.Join(work, fmt.Sprintf("chapter_%03d.m4a", i+1))
		if err := a.tools.Transcode(ctx, ch.Path, encoded[i], a.cfg.Bitrate); err != nil {
			return nil, fmt.Errorf("transcode chapter %d: %w", i+1, err)
		}
		d, err := a.tools.Duration(ctx, encoded[i])
		if err != nil {
			return nil, fmt.Errorf("measure chapter %d: %w", i+1, err)
		}
		titles[i], durations[i] = ch.Title, d
	}

	marks, err := ChapterMarks(titles, durations)
	if err != nil {
		return nil, err
	}

	combined := filepath.Join(work, "combined.m4a")
	if err := a.tools.Concat(ctx, encoded, combined); err != nil {
		return nil, fmt.Errorf("concatenate chapters: %w", err)
	}

	metaPath := filepath.Join(work, "ffmetadata.txt")
	f, err := os.Create(metaPath)
	if err != nil {
		return nil, err
	}
	if err := WriteFFMetadata(f, meta, marks); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	req := MuxRequest{Audio: combined, Metadata: metaPath, Out: filepath.Join(work, "book.m4b")}
	if len(cover) > 0 {
		if jpg, err := CoverJPEG(cover); err != nil {
			logger.Warn("skipping cover", "error", err)
		} else {
			req.Cover = filepath.Join(work, "cover.jpg")
			if err := os.WriteFile(req.Cover, jpg, 0o644); err != nil {
				return nil, err
			}
		}
	}
	if err := a.tools.Mux(ctx, req); err != nil {
		return nil, fmt.Errorf("mux audiobook: %w", err)
	}

	size, err := a.Validate(ctx, req.Out, len(marks))
	if err != nil {
		return nil, err
	}
	if err := os.Rename(req.Out, outPath); err != nil {
		return nil, err
	}

	book := &Audiobook{
		Path:      outPath,
		Chapters:  marks,
		Duration:  marks[len(marks)-1].End,
		SizeBytes: size,
	}
	logger.Info("audiobook assembled", "duration", book.Duration.Round(time.Second), "size_bytes", size)
	return book, nil
}

// Validate checks the file is non-empty and carries the expected number of
// chapter markers.
func (a *Assembler) Validate(ctx context.Context, path string, expected int) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &AssemblyValidationError{Path: path, Reason: "file missing", Expected: expected}
	}
	if info.Size() == 0 {
		return 0, &AssemblyValidationError{Path: path, Reason: "file is empty", Expected: expected}
	}
	n, err := a.tools.Chapters(ctx, path)
	if err != nil {
		return 0, &AssemblyValidationError{Path: path, Reason: err.Error(), Expected: expected}
	}
	if n != expected {
		return 0, &AssemblyValidationError{Path: path, Expected: expected, Actual: n}
	}
	return info.Size(), nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
