// Package jobs persists narration jobs and runs them: the Converter drives
// one job through extraction, synthesis and assembly with chapter
// checkpoints, and the Worker sequences jobs from the store.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Status represents the current state of a job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusExtracting   Status = "extracting"
	StatusSynthesizing Status = "synthesizing"
	StatusBuilding     Status = "building"
	StatusComplete     Status = "complete"
	StatusPartial      Status = "partial"
	StatusFailed       Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusExtracting, StatusSynthesizing, StatusBuilding,
	StatusComplete, StatusPartial, StatusFailed,
}

// ErrInvalidTransition is returned for an edge the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:      {StatusExtracting, StatusFailed},
	StatusExtracting:   {StatusSynthesizing, StatusFailed, StatusPending},
	StatusSynthesizing: {StatusBuilding, StatusFailed, StatusPending},
	StatusBuilding:     {StatusComplete, StatusPartial, StatusFailed, StatusPending},
	StatusPartial:      {StatusPending},
	StatusFailed:       {StatusPending},
}

// Transition validates a status change. Active states may fall back to
// pending only when a job is resumed after a restart.
func Transition(from, to Status) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// Terminal reports whether no further work happens without a request.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusPartial || s == StatusFailed
}

// Active reports whether the worker owns the job right now.
func (s Status) Active() bool {
	return s == StatusExtracting || s == StatusSynthesizing || s == StatusBuilding
}

// ActiveStatuses lists the states of a job that is being worked on.
var ActiveStatuses = []Status{StatusExtracting, StatusSynthesizing, StatusBuilding}

// Retryable reports whether an external retry request is accepted.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusPartial
}

// RetryMode selects what a retry reprocesses.
type RetryMode string

const (
	RetryFull       RetryMode = "full"
	RetryFailedOnly RetryMode = "failed_only"
)

// Valid reports whether m is a known mode.
func (m RetryMode) Valid() bool { return m == RetryFull || m == RetryFailedOnly }

// Record is the persisted job. The Worker is its only writer while active.
type Record struct {
	ID          string    `json:"id"`
	BookID      string    `json:"book_id,omitempty"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Series      string    `json:"series,omitempty"`
	SeriesIndex string    `json:"series_index,omitempty"`
	Voice       string    `json:"voice"`
	EpubPath    string    `json:"epub_path"`
	Status      Status    `json:"status"`
	RetryMode   RetryMode `json:"retry_mode,omitempty"`

	ChaptersTotal  int   `json:"chapters_total"`
	ChaptersDone   int   `json:"chapters_done"`
	LastChapter    int   `json:"last_chapter"`
	LastChunk      int   `json:"last_chunk"`
	FailedChapters []int `json:"failed_chapters"`

	ExtractionLevel string  `json:"extraction_level,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	OutputPath      string  `json:"output_path,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	FileSizeBytes   int64   `json:"file_size_bytes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRecord creates a pending job for an ebook.
func NewRecord(epubPath, voice string) *Record {
	return &Record{
		EpubPath:       epubPath,
		Voice:          voice,
		Status:         StatusPending,
		RetryMode:      RetryFull,
		FailedChapters: []int{},
		CreatedAt:      time.Now().UTC(),
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.FailedChapters = slices.Clone(r.FailedChapters)
	if c.FailedChapters == nil {
		c.FailedChapters = []int{}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ChapterFailed reports whether chapter index is recorded as failed.
func (r *Record) ChapterFailed(index int) bool {
	return slices.Contains(r.FailedChapters, index)
}

func (r *Record) markChapterFailed(index int) {
	if !r.ChapterFailed(index) {
		r.FailedChapters = append(r.FailedChapters, index)
		slices.Sort(r.FailedChapters)
	}
}

func (r *Record) clearChapterFailed(index int) {
	r.FailedChapters = slices.DeleteFunc(r.FailedChapters, func(i int) bool { return i == index })
}

// resetCheckpoint forgets all chapter progress.
func (r *Record) resetCheckpoint() {
	r.ChaptersTotal = 0
	r.ChaptersDone = 0
	r.LastChapter = 0
	r.LastChunk = 0
	r.FailedChapters = []int{}
}

// ErrNotFound is returned for an unknown job ID.
var ErrNotFound = errors.New("job not found")

// ListFilter specifies criteria for listing jobs.
type ListFilter struct {
	Status   Status   // empty = all
	Statuses []Status // any of, combined with Status
	BookID   string   // library book, empty = any
	Offset   int
	Limit    int // 0 = default 100
}

// Store persists job records. List returns jobs oldest first.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id string) error
}
