package epub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Defaults for Options.
const (
	DefaultMinChapterWords      = 50
	DefaultFallbackChapterWords = 5000
)

// Chapter is an ordered unit of narration.
type Chapter struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Text      string `json:"-"`
	WordCount int    `json:"word_count"`
	Level     Level  `json:"level"`
	Excluded  bool   `json:"excluded,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Result is the outcome of a successful extraction.
type Result struct {
	Document *Document
	Level    Level
	Chapters []Chapter
	Skipped  []Chapter
}

// Words returns the total word count of narrated chapters.
func (r *Result) Words() int {
	n := 0
	for _, ch := range r.Chapters {
		n += ch.WordCount
	}
	return n
}

// Options configures an Extractor.
type Options struct {
	MinChapterWords      int
	FallbackChapterWords int
	Logger               *slog.Logger
}

// Extractor turns ebook containers into chapters using the first detection
// level that yields a usable chapter.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// NewExtractor creates an Extractor, filling unset options with defaults.
func NewExtractor(opts Options) *Extractor {
	if opts.MinChapterWords <= 0 {
		opts.MinChapterWords = DefaultMinChapterWords
	}
	if opts.FallbackChapterWords <= 0 {
		opts.FallbackChapterWords = DefaultFallbackChapterWords
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger.With("component", "extractor")}
}

// Extract opens and segments the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	doc, err := Open(path)
	if err != nil {
		return nil, err
	}
	return e.ExtractDocument(ctx, doc)
}

// ExtractDocument segments an already opened document.
func (e *Extractor) ExtractDocument(ctx context.Context, doc *Document) (*Result, error) {
	for _, s := range detectionChain {
		cands, err := s.detect(ctx, doc, e.opts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &ExtractionError{Path: doc.Path, Err: fmt.Errorf("%s detection: %w", s.level, err)}
		}
		if len(cands) == 0 {
			e.logger.Debug("detection level not applicable", "level", s.level, "path", doc.Path)
			continue
		}

		chapters, skipped := e.finalize(cands, s.level)
		if len(chapters) == 0 {
			e.logger.Debug("detection level yielded no usable chapters",
				"level", s.level, "candidates", len(cands), "path", doc.Path)
			continue
		}

		e.logger.Info("extracted chapters",
			"path", doc.Path, "level", s.level,
			"chapters", len(chapters), "skipped", len(skipped))
		return &Result{Document: doc, Level: s.level, Chapters: chapters, Skipped: skipped}, nil
	}
	return nil, &ExtractionError{Path: doc.Path, Err: ErrNoContent}
}

func (e *Extractor) finalize(cands []candidate, level Level) (chapters, skipped []Chapter) {
	for i, c := range cands {
		title := collapseSpace(c.title)
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		text := stripLeadingTitle(normalizeText(c.text), title)
		ch := Chapter{
			Title:     title,
			Text:      text,
			WordCount: WordCount(text),
			Level:     level,
		}
		if reason := exclusionReason(title, text, ch.WordCount, e.opts.MinChapterWords); reason != "" {
			ch.Excluded = true
			ch.Reason = reason
			skipped = append(skipped, ch)
			continue
		}
		ch.Index = len(chapters) + 1
		chapters = append(chapters, ch)
	}
	return chapters, skipped
}
