package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/narrator/internal/defra"
)

// Collection is the DefraDB collection holding job records.
const Collection = "NarrationJob"

var recordFields = []string{
	"_docID", "book_id", "title", "author", "series", "series_index", "voice",
	"epub_path", "status", "retry_mode", "chapters_total", "chapters_done",
	"last_chapter", "last_chunk", "failed_chapters", "extraction_level",
	"error_message", "output_path", "duration_seconds", "file_size_bytes",
	"created_at", "started_at", "completed_at",
}

// DefraStore persists job records in DefraDB.
type DefraStore struct {
	defra  *defra.Client
	logger *slog.Logger
}

// NewDefraStore creates a store backed by client. The NarrationJob schema
// must already be applied.
func NewDefraStore(client *defra.Client, logger *slog.Logger) *DefraStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefraStore{
		defra:  client,
		logger: logger.With("component", "job_store"),
	}
}

// Create stores r and sets r.ID to the document ID DefraDB assigned.
func (s *DefraStore) Create(ctx context.Context, r *Record) error {
	id, err := s.defra.Create(ctx, Collection, recordInput(r))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	r.ID = id
	s.logger.Info("job created", "id", id, "epub", r.EpubPath)
	return nil
}

func (s *DefraStore) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := defra.FindByID(ctx, s.defra, Collection, id, recordFields...)
	if errors.Is(err, defra.ErrNoDocument) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return s.parseRecord(doc), nil
}

func (s *DefraStore) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	names := make([]string, 0, len(filter.statuses()))
	for _, st := range filter.statuses() {
		names = append(names, string(st))
	}
	q := defra.NewQuery(Collection).
		Fields(recordFields...).
		FilterIn("status", names).
		OrderBy("created_at", defra.Ascending).
		Limit(filter.limit()).
		Offset(filter.Offset)
	if filter.BookID != "" {
		q.Filter("book_id", filter.BookID)
	}

	docs, err := q.Documents(ctx, s.defra)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	records := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, s.parseRecord(doc))
	}
	sortOldestFirst(records)
	return records, nil
}

func (s *DefraStore) Update(ctx context.Context, r *Record) error {
	if err := defra.ValidateID(r.ID); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	if err := s.defra.Update(ctx, Collection, r.ID, recordInput(r)); err != nil {
		return fmt.Errorf("failed to update job %s: %w", r.ID, err)
	}
	return nil
}

func (s *DefraStore) Delete(ctx context.Context, id string) error {
	if err := defra.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.defra.Delete(ctx, Collection, id)
}

// recordInput maps a record onto collection fields. failed_chapters is
// stored as a JSON array string.
func recordInput(r *Record) map[string]any {
	failed, _ := json.Marshal(r.FailedChapters)
	if r.FailedChapters == nil {
		failed = []byte("[]")
	}
	input := map[string]any{
		"book_id":          r.BookID,
		"title":            r.Title,
		"author":           r.Author,
		"series":           r.Series,
		"series_index":     r.SeriesIndex,
		"voice":            r.Voice,
		"epub_path":        r.EpubPath,
		"status":           string(r.Status),
		"retry_mode":       string(r.RetryMode),
		"chapters_total":   r.ChaptersTotal,
		"chapters_done":    r.ChaptersDone,
		"last_chapter":     r.LastChapter,
		"last_chunk":       r.LastChunk,
		"failed_chapters":  string(failed),
		"extraction_level": r.ExtractionLevel,
		"error_message":    r.ErrorMessage,
		"output_path":      r.OutputPath,
		"duration_seconds": r.DurationSeconds,
		"file_size_bytes":  r.FileSizeBytes,
		"created_at":       r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	// Cleared timestamps are written as null so a retried job loses them.
	input["started_at"] = timestamp(r.StartedAt)
	input["completed_at"] = timestamp(r.CompletedAt)
	return input
}

func timestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *DefraStore) parseRecord(data map[string]any) *Record {
	r := &Record{FailedChapters: []int{}}

	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}
	num := func(key string) float64 {
		f, _ := data[key].(float64)
		return f
	}
	ts := func(key string) *time.Time {
		s := str(key)
		if s == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil
		}
		return &t
	}

	r.ID = str("_docID")
	r.BookID = str("book_id")
	r.Title = str("title")
	r.Author = str("author")
	r.Series = str("series")
	r.SeriesIndex = str("series_index")
	r.Voice = str("voice")
	r.EpubPath = str("epub_path")
	r.Status = Status(str("status"))
	r.RetryMode = RetryMode(str("retry_mode"))
	r.ChaptersTotal = int(num("chapters_total"))
	r.ChaptersDone = int(num("chapters_done"))
	r.LastChapter = int(num("last_chapter"))
	r.LastChunk = int(num("last_chunk"))
	r.ExtractionLevel = str("extraction_level")
	r.ErrorMessage = str("error_message")
	r.OutputPath = str("output_path")
	r.DurationSeconds = num("duration_seconds")
	r.FileSizeBytes = int64(num("file_size_bytes"))

	if fc := str("failed_chapters"); fc != "" {
		if err := json.Unmarshal([]byte(fc), &r.FailedChapters); err != nil {
			s.logger.Warn("unreadable failed chapters, failed_only retry will redo none", "job_id", r.ID, "value", fc, "error", err)
			r.FailedChapters = []int{}
		}
	}
	if t := ts("created_at"); t != nil {
		r.CreatedAt = *t
	}
	r.StartedAt = ts("started_at")
	r.CompletedAt = ts("completed_at")
	return r
}
