package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/narrator/internal/defra"
)

var fields = []string{
	"_docID", "job_id", "chapter_index", "title", "voice", "chunks",
	"characters", "audio_seconds", "synthesis_seconds", "success",
	"error_type", "created_at",
}

// DefraStore records metrics in DefraDB. The ChapterMetric schema must
// already be applied.
type DefraStore struct {
	client *defra.Client
}

func NewDefraStore(client *defra.Client) *DefraStore {
	return &DefraStore{client: client}
}

// Record stores a single metric.
func (s *DefraStore) Record(ctx context.Context, m Chapter) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := s.client.Create(ctx, Collection, m.ToMap()); err != nil {
		return fmt.Errorf("failed to record chapter metric: %w", err)
	}
	return nil
}

// ForJob returns every attempt recorded for a job, oldest first.
func (s *DefraStore) ForJob(ctx context.Context, jobID string) ([]Chapter, error) {
	docs, err := defra.NewQuery(Collection).
		Fields(fields...).
		Filter("job_id", jobID).
		Documents(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	out := make([]Chapter, 0, len(docs))
	for _, doc := range docs {
		out = append(out, parseChapter(doc))
	}
	sortByTime(out)
	return out, nil
}

// parseChapter converts a raw document to a Chapter.
func parseChapter(m map[string]any) Chapter {
	var c Chapter
	if v, ok := m["_docID"].(string); ok {
		c.ID = v
	}
	if v, ok := m["job_id"].(string); ok {
		c.JobID = v
	}
	if v, ok := m["chapter_index"].(float64); ok {
		c.ChapterIndex = int(v)
	}
	if v, ok := m["title"].(string); ok {
		c.Title = v
	}
	if v, ok := m["voice"].(string); ok {
		c.Voice = v
	}
	if v, ok := m["chunks"].(float64); ok {
		c.Chunks = int(v)
	}
	if v, ok := m["characters"].(float64); ok {
		c.Characters = int(v)
	}
	if v, ok := m["audio_seconds"].(float64); ok {
		c.AudioSeconds = v
	}
	if v, ok := m["synthesis_seconds"].(float64); ok {
		c.SynthesisSeconds = v
	}
	if v, ok := m["success"].(bool); ok {
		c.Success = v
	}
	if v, ok := m["error_type"].(string); ok {
		c.ErrorType = v
	}
	if v, ok := m["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			c.CreatedAt = t
		}
	}
	return c
}
