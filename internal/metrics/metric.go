// Package metrics records how long each chapter took to synthesize, so a
// job can report throughput against the audio it produced.
package metrics

import (
	"context"
	"sort"
	"time"
)

// Collection is the DefraDB collection holding chapter metrics.
const Collection = "ChapterMetric"

// Chapter is one append-only record per synthesized chapter attempt.
type Chapter struct {
	ID string `json:"_docID,omitempty"`

	// Attribution
	JobID        string `json:"job_id"`
	ChapterIndex int    `json:"chapter_index"`
	Title        string `json:"title,omitempty"`
	Voice        string `json:"voice,omitempty"`

	// Work
	Chunks     int `json:"chunks"`
	Characters int `json:"characters"`

	// Timing
	AudioSeconds     float64 `json:"audio_seconds"`
	SynthesisSeconds float64 `json:"synthesis_seconds"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ToMap converts the metric to a map for DefraDB storage.
func (m *Chapter) ToMap() map[string]any {
	data := map[string]any{
		"job_id":            m.JobID,
		"chapter_index":     m.ChapterIndex,
		"chunks":            m.Chunks,
		"characters":        m.Characters,
		"audio_seconds":     m.AudioSeconds,
		"synthesis_seconds": m.SynthesisSeconds,
		"success":           m.Success,
		"created_at":        m.CreatedAt.Format(time.RFC3339Nano),
	}
	if m.Title != "" {
		data["title"] = m.Title
	}
	if m.Voice != "" {
		data["voice"] = m.Voice
	}
	if m.ErrorType != "" {
		data["error_type"] = m.ErrorType
	}
	return data
}

// Store persists chapter metrics.
type Store interface {
	Record(ctx context.Context, m Chapter) error
	ForJob(ctx context.Context, jobID string) ([]Chapter, error)
}

func sortByTime(ms []Chapter) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
}
