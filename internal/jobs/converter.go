package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackzampolin/narrator/internal/audio"
	"github.com/jackzampolin/narrator/internal/chunker"
	"github.com/jackzampolin/narrator/internal/diskspace"
	"github.com/jackzampolin/narrator/internal/epub"
	"github.com/jackzampolin/narrator/internal/metrics"
	"github.com/jackzampolin/narrator/internal/notify"
	"github.com/jackzampolin/narrator/internal/tts"
)

// ErrJobCancelled ends a job stopped on request.
var ErrJobCancelled = errors.New("cancelled")

// Extractor produces chapters from an ebook.
type Extractor interface {
	Extract(ctx context.Context, path string) (*epub.Result, error)
}

// Synthesizer turns one chunk of text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Pacer spaces out synthesis requests.
type Pacer interface {
	Wait(ctx context.Context) error
	Done()
	Reset()
}

// MetricsRecorder receives one record per chapter attempt.
type MetricsRecorder interface {
	Record(ctx context.Context, m metrics.Chapter) error
}

// ConverterConfig wires the pipeline stages.
type ConverterConfig struct {
	Store       Store
	Extractor   Extractor
	Synthesizer Synthesizer
	Pacer       Pacer // optional
	Assembler   *audio.Assembler
	Chunking    chunker.Options
	WorkDir     string
	Events      notify.Publisher // optional
	Metrics     MetricsRecorder  // optional

	// DiskCheck defaults to diskspace.Check.
	DiskCheck func(path string, required uint64) error

	Logger *slog.Logger
}

// Converter drives one job from pending to a terminal state, persisting a
// checkpoint after every chapter.
type Converter struct {
	cfg    ConverterConfig
	logger *slog.Logger
}

// NewConverter creates a Converter.
func NewConverter(cfg ConverterConfig) (*Converter, error) {
	if cfg.Store == nil || cfg.Extractor == nil || cfg.Synthesizer == nil || cfg.Assembler == nil {
		return nil, fmt.Errorf("converter requires a store, extractor, synthesizer and assembler")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("converter requires a work directory")
	}
	if cfg.DiskCheck == nil {
		cfg.DiskCheck = diskspace.Check
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{cfg: cfg, logger: logger.With("component", "converter")}, nil
}

// JobDir returns the intermediate directory of a job.
func (c *Converter) JobDir(id string) string {
	return filepath.Join(c.cfg.WorkDir, id)
}

// ChapterPath returns the checkpoint WAV of a chapter.
func (c *Converter) ChapterPath(id string, index int) string {
	return filepath.Join(c.JobDir(id), fmt.Sprintf("chapter_%03d.wav", index))
}

// Outcome is what a finished conversion hands to output placement.
type Outcome struct {
	Book        *audio.Audiobook
	Cover       []byte
	Description string
	Date        string
}

// Control steers a running conversion. The zero value never blocks or stops.
type Control struct {
	// Gate is called between chapters and may block, for example while the
	// queue is paused.
	Gate func(context.Context) error
	// Stop is checked before every chunk and phase. Once it reports true the
	// run ends with ErrJobCancelled after the chunk in flight has finished.
	Stop func() bool
}

func (ctl Control) stopped() error {
	if ctl.Stop != nil && ctl.Stop() {
		return ErrJobCancelled
	}
	return nil
}

// Run converts rec, which must be pending. ctx bounds every backend call and
// is only cancelled on shutdown; a cancel request arrives through ctl.Stop.
//
// On success rec ends complete or partial. On error rec is left in the state
// where the error happened; the caller decides whether that means failed or,
// after a shutdown, a later resume.
func (c *Converter) Run(ctx context.Context, rec *Record, ctl Control) (*Outcome, error) {
	logger := c.logger.With("job_id", rec.ID)

	now := time.Now().UTC()
	if rec.StartedAt == nil {
		rec.StartedAt = &now
	}
	if err := c.advance(ctx, rec, StatusExtracting); err != nil {
		return nil, err
	}
	c.publish(notify.Event{Name: notify.JobStarted, JobID: rec.ID, Title: rec.Title, Author: rec.Author})

	res, err := c.cfg.Extractor.Extract(ctx, rec.EpubPath)
	if err != nil {
		return nil, err
	}
	c.adoptMetadata(rec, res)
	if err := ctl.stopped(); err != nil {
		return nil, err
	}

	if rec.ChaptersTotal != 0 && rec.ChaptersTotal != len(res.Chapters) {
		logger.Warn("chapter count changed since checkpoint, starting over",
			"checkpoint", rec.ChaptersTotal, "extracted", len(res.Chapters))
		rec.resetCheckpoint()
		if err := os.RemoveAll(c.JobDir(rec.ID)); err != nil {
			return nil, fmt.Errorf("failed to clear work dir: %w", err)
		}
	}
	rec.ChaptersTotal = len(res.Chapters)
	rec.ExtractionLevel = string(res.Level)

	dir := c.JobDir(rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	required := diskspace.Estimate(res.Words())
	if err := c.cfg.DiskCheck(dir, required); err != nil {
		return nil, err
	}

	if err := c.advance(ctx, rec, StatusSynthesizing); err != nil {
		return nil, err
	}
	logger.Info("synthesizing",
		"title", rec.Title, "chapters", rec.ChaptersTotal, "level", rec.ExtractionLevel,
		"resume_after", rec.LastChapter, "mode", rec.RetryMode)

	chapters := make([]audio.ChapterAudio, 0, len(res.Chapters))
	for pos, ch := range res.Chapters {
		if ctl.Gate != nil && pos > 0 {
			if err := ctl.Gate(ctx); err != nil {
				return nil, err
			}
		}
		path := c.ChapterPath(rec.ID, ch.Index)
		chapters = append(chapters, audio.ChapterAudio{Title: ch.Title, Path: path})

		if c.completed(rec, ch.Index, path) {
			logger.Debug("chapter already synthesized", "chapter", ch.Index)
			continue
		}
		if err := c.synthesizeChapter(ctx, rec, ch, path, ctl, logger); err != nil {
			return nil, err
		}
		rec.LastChapter = max(rec.LastChapter, ch.Index)
		rec.ChaptersDone = max(rec.ChaptersDone, pos+1)
		if err := c.cfg.Store.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}

	if len(rec.FailedChapters) == len(res.Chapters) {
		return nil, fmt.Errorf("all %d chapters failed synthesis", len(res.Chapters))
	}

	if err := ctl.stopped(); err != nil {
		return nil, err
	}
	if err := c.advance(ctx, rec, StatusBuilding); err != nil {
		return nil, err
	}
	meta := audio.Metadata{
		Title:       rec.Title,
		Author:      rec.Author,
		Series:      rec.Series,
		SeriesIndex: rec.SeriesIndex,
		Date:        res.Document.Metadata.Date,
		Description: res.Document.Metadata.Description,
		Narrator:    "AI Narration (" + rec.Voice + ")",
	}
	book, err := c.cfg.Assembler.Assemble(ctx, chapters, meta, res.Document.Cover, filepath.Join(dir, "audiobook.m4b"))
	if err != nil {
		return nil, err
	}

	rec.OutputPath = book.Path
	rec.DurationSeconds = book.Duration.Seconds()
	rec.FileSizeBytes = book.SizeBytes
	rec.ErrorMessage = ""
	final := StatusComplete
	if len(rec.FailedChapters) > 0 {
		final = StatusPartial
		rec.ErrorMessage = fmt.Sprintf("%d chapter(s) failed: %s", len(rec.FailedChapters), joinInts(rec.FailedChapters))
	}
	done := time.Now().UTC()
	rec.CompletedAt = &done
	if err := c.advance(ctx, rec, final); err != nil {
		return nil, err
	}

	logger.Info("conversion finished",
		"status", final, "duration", book.Duration.Round(time.Second), "failed_chapters", rec.FailedChapters)
	return &Outcome{
		Book:        book,
		Cover:       res.Document.Cover,
		Description: res.Document.Metadata.Description,
		Date:        res.Document.Metadata.Date,
	}, nil
}

// completed reports whether a chapter can be reused from a checkpoint. In
// failed_only mode recorded failures are synthesized again.
func (c *Converter) completed(rec *Record, index int, path string) bool {
	if index > rec.LastChapter {
		return false
	}
	if rec.RetryMode == RetryFailedOnly && rec.ChapterFailed(index) {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// synthesizeChapter writes the chapter WAV, or a silent placeholder when a
// chunk exhausts its retries.
func (c *Converter) synthesizeChapter(ctx context.Context, rec *Record, ch epub.Chapter, path string, ctl Control, logger *slog.Logger) error {
	chunks := chunker.ChunkChapter(ch, c.cfg.Chunking)
	logger = logger.With("chapter", ch.Index)
	logger.Info("chapter started", "title", ch.Title, "chunks", len(chunks), "words", ch.WordCount)
	c.publish(notify.Event{Name: notify.ChapterStarted, JobID: rec.ID, Title: rec.Title, Author: rec.Author, Chapter: ch.Index, ChapterTitle: ch.Title})

	if c.cfg.Pacer != nil {
		c.cfg.Pacer.Reset()
	}
	m := metrics.Chapter{JobID: rec.ID, ChapterIndex: ch.Index, Title: ch.Title, Voice: rec.Voice, Chunks: len(chunks)}
	segments := make([][]byte, 0, len(chunks))
	var chapterErr error
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ctl.stopped(); err != nil {
			return err
		}
		audioBytes, took, err := c.synthesize(ctx, chunk.Text, rec.Voice, ctl)
		rec.LastChunk = chunk.Seq
		m.SynthesisSeconds += took.Seconds()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrJobCancelled) || errors.Is(err, tts.ErrBackendUnavailable) {
				return err
			}
			chapterErr = fmt.Errorf("chunk %d: %w", chunk.Seq, err)
			m.ErrorType = "synthesis"
			break
		}
		m.Characters += utf8.RuneCountInString(chunk.Text)
		segments = append(segments, audioBytes)
	}

	if chapterErr == nil {
		d, err := c.cfg.Assembler.WriteChapter(ctx, segments, path)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			chapterErr = err
			m.ErrorType = "assembly"
		}
		m.AudioSeconds = d.Seconds()
	}

	if chapterErr != nil {
		logger.Error("chapter failed, writing silence", "error", chapterErr)
		if _, err := c.cfg.Assembler.WriteSilence(path); err != nil {
			return fmt.Errorf("failed to write silence for chapter %d: %w", ch.Index, err)
		}
		m.AudioSeconds = 0
		c.record(ctx, m, logger)
		rec.markChapterFailed(ch.Index)
		c.publish(notify.Event{Name: notify.ChapterFailed, JobID: rec.ID, Title: rec.Title, Author: rec.Author, Chapter: ch.Index, ChapterTitle: ch.Title, Error: chapterErr.Error()})
		return nil
	}

	m.Success = true
	c.record(ctx, m, logger)
	rec.clearChapterFailed(ch.Index)
	logger.Info("chapter completed", "segments", len(segments), "audio", time.Duration(m.AudioSeconds*float64(time.Second)).Round(time.Second))
	c.publish(notify.Event{Name: notify.ChapterCompleted, JobID: rec.ID, Title: rec.Title, Author: rec.Author, Chapter: ch.Index, ChapterTitle: ch.Title})
	return nil
}

// synthesize returns the audio and the time spent in the backend, not
// counting pacing.
func (c *Converter) synthesize(ctx context.Context, text, voice string, ctl Control) ([]byte, time.Duration, error) {
	if c.cfg.Pacer != nil {
		if err := c.cfg.Pacer.Wait(ctx); err != nil {
			return nil, 0, err
		}
		defer c.cfg.Pacer.Done()
		// A rest period may have outlasted a cancel request.
		if err := ctl.stopped(); err != nil {
			return nil, 0, err
		}
	}
	start := time.Now()
	out, err := c.cfg.Synthesizer.Synthesize(ctx, text, voice)
	return out, time.Since(start), err
}

// record stores a chapter metric. Failures are logged and never fail the
// job.
func (c *Converter) record(ctx context.Context, m metrics.Chapter, logger *slog.Logger) {
	if c.cfg.Metrics == nil {
		return
	}
	if err := c.cfg.Metrics.Record(ctx, m); err != nil {
		logger.Warn("failed to record chapter metrics", "error", err)
	}
}

// adoptMetadata fills fields the enqueue request left empty.
func (c *Converter) adoptMetadata(rec *Record, res *epub.Result) {
	md := res.Document.Metadata
	if rec.Title == "" {
		rec.Title = md.Title
	}
	if rec.Author == "" {
		rec.Author = md.Author
	}
	if rec.Series == "" {
		rec.Series = md.Series
		if rec.SeriesIndex == "" {
			rec.SeriesIndex = md.SeriesIndex
		}
	}
}

// advance validates and persists a status change.
func (c *Converter) advance(ctx context.Context, rec *Record, to Status) error {
	if err := Transition(rec.Status, to); err != nil {
		return err
	}
	rec.Status = to
	if err := c.cfg.Store.Update(ctx, rec); err != nil {
		return fmt.Errorf("failed to save status %s: %w", to, err)
	}
	return nil
}

func (c *Converter) publish(e notify.Event) {
	if c.cfg.Events != nil {
		c.cfg.Events.Publish(e)
	}
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
