package voices

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/narrator/internal/defra"
)

type fakeLister struct {
	names []string
	err   error
}

func (f *fakeLister) Voices(context.Context) ([]string, error) { return f.names, f.err }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		language string
		gender   string
	}{
		{"af_heart", "en-US", "female"},
		{"bm_george", "en-GB", "male"},
		{"jf_alpha", "ja", "female"},
		{"qx_odd", "", ""},
		{"custom", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Describe(tt.name, time.Time{})
			if v.VoiceID != tt.name || v.Language != tt.language || v.Gender != tt.gender {
				t.Errorf("Describe(%q) = %+v", tt.name, v)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	backend := &fakeLister{names: []string{"bf_emma", "af_heart"}}
	store := NewMemoryStore()
	c := NewCatalog(backend, store, quiet())

	t.Run("nothing synced while backend down", func(t *testing.T) {
		backend.err = errors.New("connection refused")
		if _, _, err := c.List(ctx); !errors.Is(err, ErrNoVoices) {
			t.Errorf("List() error = %v, want ErrNoVoices", err)
		}
		backend.err = nil
	})

	n, err := c.Sync(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Sync() = %d, %v", n, err)
	}

	t.Run("live", func(t *testing.T) {
		names, cached, err := c.List(ctx)
		if err != nil || cached || len(names) != 2 {
			t.Errorf("List() = %v, %v, %v", names, cached, err)
		}
	})

	t.Run("cached", func(t *testing.T) {
		backend.err = errors.New("connection refused")
		defer func() { backend.err = nil }()
		names, cached, err := c.List(ctx)
		if err != nil || !cached {
			t.Fatalf("List() cached = %v, err = %v", cached, err)
		}
		if len(names) != 2 || names[0] != "af_heart" {
			t.Errorf("names = %v, want sorted catalog", names)
		}
	})

	t.Run("entries", func(t *testing.T) {
		es, err := c.Entries(ctx)
		if err != nil || len(es) != 2 || es[1].Language != "en-GB" {
			t.Errorf("Entries() = %+v, %v", es, err)
		}
	})

	t.Run("sync error", func(t *testing.T) {
		backend.err = errors.New("boom")
		defer func() { backend.err = nil }()
		if _, err := c.Sync(ctx); err == nil {
			t.Error("expected sync error")
		}
	})
}

func TestDefraStore(t *testing.T) {
	var mutations []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "create_Voice"):
			mutations = append(mutations, "create")
			w.Write([]byte(`{"data":{"create_Voice":[{"_docID":"bae-new"}]}}`))
		case strings.Contains(req.Query, "update_Voice"):
			mutations = append(mutations, "update")
			w.Write([]byte(`{"data":{"update_Voice":[{"_docID":"bae-1"}]}}`))
		default:
			w.Write([]byte(`{"data":{"Voice":[
				{"_docID":"bae-1","voice_id":"bf_emma","language":"en-GB","gender":"female","synced_at":"2026-01-02T03:04:05Z"}
			]}}`))
		}
	}))
	defer srv.Close()

	s := NewDefraStore(defra.NewClient(srv.URL))
	ctx := context.Background()

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].DocID != "bae-1" || got[0].SyncedAt.Year() != 2026 {
		t.Fatalf("List() = %+v", got)
	}

	now := time.Now()
	if err := s.Save(ctx, []Voice{Describe("bf_emma", now), Describe("af_heart", now)}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(mutations) != 2 || mutations[0] != "update" || mutations[1] != "create" {
		t.Errorf("mutations = %v, want update then create", mutations)
	}
}
