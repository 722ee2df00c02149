// Package voices keeps a catalog of the voices the TTS backend offers, so
// the list survives backend restarts and outages.
package voices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Collection is the DefraDB collection holding synced voices.
const Collection = "Voice"

// Voice is one backend voice and what its name says about it.
type Voice struct {
	DocID    string    `json:"_docID,omitempty"`
	VoiceID  string    `json:"voice_id"`
	Language string    `json:"language,omitempty"`
	Gender   string    `json:"gender,omitempty"`
	SyncedAt time.Time `json:"synced_at"`
}

// Store persists the catalog.
type Store interface {
	Save(ctx context.Context, vs []Voice) error
	List(ctx context.Context) ([]Voice, error)
}

// Lister is the backend side of the catalog.
type Lister interface {
	Voices(ctx context.Context) ([]string, error)
}

// ErrNoVoices is returned when neither the backend nor the catalog has any.
var ErrNoVoices = errors.New("no voices available")

// Catalog answers voice lists from the backend when it is up and from the
// last sync when it is not.
type Catalog struct {
	backend Lister
	store   Store
	logger  *slog.Logger
}

func NewCatalog(backend Lister, store Store, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{backend: backend, store: store, logger: logger}
}

// Sync copies the backend's voice list into the store.
func (c *Catalog) Sync(ctx context.Context) (int, error) {
	names, err := c.backend.Voices(ctx)
	if err != nil {
		return 0, fmt.Errorf("list backend voices: %w", err)
	}
	if len(names) == 0 {
		c.logger.Info("backend reported no voices")
		return 0, nil
	}
	now := time.Now().UTC()
	vs := make([]Voice, 0, len(names))
	for _, n := range names {
		vs = append(vs, Describe(n, now))
	}
	if err := c.store.Save(ctx, vs); err != nil {
		return 0, err
	}
	c.logger.Info("voice sync complete", "count", len(vs))
	return len(vs), nil
}

// List returns voice names. cached reports that the backend was
// unreachable and the names came from the last sync.
func (c *Catalog) List(ctx context.Context) (names []string, cached bool, err error) {
	names, err = c.backend.Voices(ctx)
	if err == nil {
		return names, false, nil
	}
	backendErr := err

	stored, err := c.store.List(ctx)
	if err != nil {
		c.logger.Warn("voice catalog unreadable", "error", err)
		return nil, false, backendErr
	}
	if len(stored) == 0 {
		return nil, false, fmt.Errorf("%w: %v", ErrNoVoices, backendErr)
	}
	c.logger.Debug("serving cached voices", "count", len(stored), "error", backendErr)
	names = make([]string, 0, len(stored))
	for _, v := range stored {
		names = append(names, v.VoiceID)
	}
	return names, true, nil
}

// Entries returns the synced catalog with metadata.
func (c *Catalog) Entries(ctx context.Context) ([]Voice, error) {
	return c.store.List(ctx)
}

// Kokoro names voices <language><gender>_<name>, e.g. af_heart.
var languages = map[byte]string{
	'a': "en-US",
	'b': "en-GB",
	'e': "es",
	'f': "fr",
	'h': "hi",
	'i': "it",
	'j': "ja",
	'p': "pt-BR",
	'z': "zh",
}

// Describe builds a catalog entry from a voice name.
func Describe(name string, syncedAt time.Time) Voice {
	v := Voice{VoiceID: name, SyncedAt: syncedAt}
	if len(name) < 3 || name[2] != '_' {
		return v
	}
	v.Language = languages[name[0]]
	switch name[1] {
	case 'f':
		v.Gender = "female"
	case 'm':
		v.Gender = "male"
	}
	return v
}

// MemoryStore is the catalog for runs without DefraDB.
type MemoryStore struct {
	mu     sync.RWMutex
	voices map[string]Voice
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{voices: make(map[string]Voice)}
}

func (s *MemoryStore) Save(_ context.Context, vs []Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vs {
		s.voices[v.VoiceID] = v
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Voice, 0, len(s.voices))
	for _, v := range s.voices {
		out = append(out, v)
	}
	sortByID(out)
	return out, nil
}

func sortByID(vs []Voice) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].VoiceID < vs[j].VoiceID })
}
