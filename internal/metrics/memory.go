package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps metrics for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	byJob map[string][]Chapter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byJob: make(map[string][]Chapter)}
}

func (s *MemoryStore) Record(_ context.Context, m Chapter) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ID = uuid.NewString()
	s.mu.Lock()
	s.byJob[m.JobID] = append(s.byJob[m.JobID], m)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ForJob(_ context.Context, jobID string) ([]Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chapter, len(s.byJob[jobID]))
	copy(out, s.byJob[jobID])
	return out, nil
}
