package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackzampolin/narrator/docs/swagger"
	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/audio"
	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/epub"
	"github.com/jackzampolin/narrator/internal/health"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/library"
	"github.com/jackzampolin/narrator/internal/metrics"
	"github.com/jackzampolin/narrator/internal/notify"
	"github.com/jackzampolin/narrator/internal/svcctx"
	"github.com/jackzampolin/narrator/internal/tts"
	"github.com/jackzampolin/narrator/internal/voices"
)

type noopExtractor struct{}

func (noopExtractor) Extract(context.Context, string) (*epub.Result, error) {
	return nil, errors.New("not used")
}

type noopSynth struct{}

func (noopSynth) Synthesize(context.Context, string, string) ([]byte, error) { return nil, nil }

// newTestServices wires in-memory services. The worker is never started,
// so queued jobs stay pending.
func newTestServices(t *testing.T) *svcctx.Services {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := config.WriteDefault(cfgPath); err != nil {
		t.Fatal(err)
	}
	cm, err := config.NewManager(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	settings := config.NewMemoryStore()
	if err := cm.UseStore(context.Background(), settings, nil); err != nil {
		t.Fatal(err)
	}

	store := jobs.NewMemoryStore()
	bus := notify.NewBus(100)
	conv, err := jobs.NewConverter(jobs.ConverterConfig{
		Store:       store,
		Extractor:   noopExtractor{},
		Synthesizer: noopSynth{},
		Assembler:   audio.NewAssembler(audio.Config{}),
		WorkDir:     filepath.Join(dir, "work"),
		Events:      bus,
	})
	if err != nil {
		t.Fatal(err)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		Store:        store,
		Converter:    conv,
		Events:       bus,
		DefaultVoice: "af_heart",
	})
	if err != nil {
		t.Fatal(err)
	}

	return &svcctx.Services{
		JobStore:      store,
		Worker:        worker,
		ConfigManager: cm,
		SettingStore:  settings,
		Events:        bus,
		Metrics:       metrics.NewMemoryStore(),
		Health: health.NewMonitor(health.Config{
			Worker:    worker,
			OutputDir: t.TempDir(),
		}),
	}
}

func newTestServer(t *testing.T, svcs *svcctx.Services) *httptest.Server {
	t.Helper()
	registry := api.NewRegistry()
	for _, ep := range All(Config{}) {
		registry.Register(ep)
	}
	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svcs != nil {
			r = r.WithContext(svcctx.WithServices(r.Context(), svcs))
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func writeEpub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	if err := os.WriteFile(path, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("starting without services", func(t *testing.T) {
		srv := newTestServer(t, nil)
		var report health.Report
		if code := do(t, srv, "GET", "/health", nil, &report); code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", code)
		}
		if report.Status != StatusStarting {
			t.Errorf("report status = %q", report.Status)
		}
	})

	t.Run("degraded without tts", func(t *testing.T) {
		srv := newTestServer(t, newTestServices(t))
		var report health.Report
		if code := do(t, srv, "GET", "/health", nil, &report); code != http.StatusOK {
			t.Errorf("status = %d", code)
		}
		if report.Status != health.StatusDegraded || !report.Output.Writable {
			t.Errorf("report = %+v", report)
		}
	})
}

func TestJobEndpoints(t *testing.T) {
	svcs := newTestServices(t)
	srv := newTestServer(t, svcs)
	epubPath := writeEpub(t)

	var created jobs.Record
	code := do(t, srv, "POST", "/api/jobs", CreateJobRequest{EpubPath: epubPath, Title: "Dune"}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if created.ID == "" || created.Status != jobs.StatusPending || created.Voice != "af_heart" || created.Title != "Dune" {
		t.Fatalf("created = %+v", created)
	}

	t.Run("create validation", func(t *testing.T) {
		var errResp ErrorResponse
		if code := do(t, srv, "POST", "/api/jobs", CreateJobRequest{}, &errResp); code != http.StatusBadRequest {
			t.Errorf("empty request status = %d", code)
		}
		missing := CreateJobRequest{EpubPath: filepath.Join(t.TempDir(), "missing.epub")}
		if code := do(t, srv, "POST", "/api/jobs", missing, &errResp); code != http.StatusBadRequest {
			t.Errorf("missing file status = %d", code)
		}
		if code := do(t, srv, "POST", "/api/jobs", CreateJobRequest{BookID: "x"}, &errResp); code != http.StatusServiceUnavailable {
			t.Errorf("book id without library status = %d", code)
		}
	})

	t.Run("list and get", func(t *testing.T) {
		var list ListJobsResponse
		if code := do(t, srv, "GET", "/api/jobs?status=pending,failed", nil, &list); code != http.StatusOK {
			t.Fatalf("list status = %d", code)
		}
		if len(list.Jobs) != 1 || list.Jobs[0].ID != created.ID {
			t.Errorf("list = %+v", list.Jobs)
		}
		var errResp ErrorResponse
		if code := do(t, srv, "GET", "/api/jobs?status=running", nil, &errResp); code != http.StatusBadRequest {
			t.Errorf("bad status filter = %d", code)
		}
		if code := do(t, srv, "GET", "/api/jobs?limit=-1", nil, &errResp); code != http.StatusBadRequest {
			t.Errorf("bad limit = %d", code)
		}

		var got JobResponse
		if code := do(t, srv, "GET", "/api/jobs/"+created.ID, nil, &got); code != http.StatusOK {
			t.Fatalf("get status = %d", code)
		}
		if got.Job.EpubPath != epubPath {
			t.Errorf("get = %+v", got.Job)
		}
		if code := do(t, srv, "GET", "/api/jobs/nope", nil, &errResp); code != http.StatusNotFound {
			t.Errorf("unknown job status = %d", code)
		}
	})

	t.Run("retry of pending job conflicts", func(t *testing.T) {
		var errResp ErrorResponse
		if code := do(t, srv, "POST", "/api/jobs/"+created.ID+"/retry", RetryJobRequest{Mode: jobs.RetryFull}, &errResp); code != http.StatusConflict {
			t.Errorf("status = %d", code)
		}
		if code := do(t, srv, "POST", "/api/jobs/"+created.ID+"/retry", RetryJobRequest{Mode: "sometimes"}, &errResp); code != http.StatusBadRequest {
			t.Errorf("bad mode status = %d", code)
		}
	})

	t.Run("cancel pending then retry", func(t *testing.T) {
		var resp CancelJobResponse
		if code := do(t, srv, "POST", "/api/jobs/"+created.ID+"/cancel", nil, &resp); code != http.StatusAccepted {
			t.Fatalf("cancel status = %d", code)
		}
		rec, err := svcs.JobStore.Get(context.Background(), created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Status != jobs.StatusFailed {
			t.Fatalf("status after cancel = %s", rec.Status)
		}

		var retried jobs.Record
		if code := do(t, srv, "POST", "/api/jobs/"+created.ID+"/retry", RetryJobRequest{Mode: jobs.RetryFailedOnly}, &retried); code != http.StatusOK {
			t.Fatalf("retry status = %d", code)
		}
		if retried.Status != jobs.StatusPending || retried.RetryMode != jobs.RetryFailedOnly {
			t.Errorf("retried = %+v", retried)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if code := do(t, srv, "DELETE", "/api/jobs/"+created.ID, nil, nil); code != http.StatusNoContent {
			t.Fatalf("delete status = %d", code)
		}
		var errResp ErrorResponse
		if code := do(t, srv, "DELETE", "/api/jobs/"+created.ID, nil, &errResp); code != http.StatusNotFound {
			t.Errorf("second delete status = %d", code)
		}
	})
}

func TestJobMetricsEndpoint(t *testing.T) {
	svcs := newTestServices(t)
	srv := newTestServer(t, svcs)
	ctx := context.Background()

	var created jobs.Record
	if code := do(t, srv, "POST", "/api/jobs", CreateJobRequest{EpubPath: writeEpub(t)}, &created); code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	_ = svcs.Metrics.Record(ctx, metrics.Chapter{JobID: created.ID, ChapterIndex: 1, Characters: 100, AudioSeconds: 20, SynthesisSeconds: 5, Success: true})
	_ = svcs.Metrics.Record(ctx, metrics.Chapter{JobID: created.ID, ChapterIndex: 2, Success: false, ErrorType: "synthesis"})

	var sum metrics.Summary
	if code := do(t, srv, "GET", "/api/jobs/"+created.ID+"/metrics", nil, &sum); code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}
	if sum.JobID != created.ID || sum.Chapters != 2 || sum.FailedChapters != 1 || sum.RealTimeFactor != 4 {
		t.Errorf("summary = %+v", sum)
	}

	var errResp ErrorResponse
	if code := do(t, srv, "GET", "/api/jobs/nope/metrics", nil, &errResp); code != http.StatusNotFound {
		t.Errorf("unknown job = %d", code)
	}
}

func TestQueueEndpoints(t *testing.T) {
	svcs := newTestServices(t)
	srv := newTestServer(t, svcs)
	ctx := context.Background()

	var st jobs.QueueStatus
	if code := do(t, srv, "POST", "/api/queue/pause", nil, &st); code != http.StatusOK {
		t.Fatalf("pause status = %d", code)
	}
	if !st.Paused {
		t.Error("queue not paused")
	}
	entry, err := svcs.SettingStore.Get(ctx, config.KeyPaused)
	if err != nil || entry == nil || entry.Value != true {
		t.Errorf("pause not persisted: %+v, %v", entry, err)
	}
	if !svcs.ConfigManager.Get().Worker.Paused {
		t.Error("effective config not refreshed")
	}

	if code := do(t, srv, "POST", "/api/queue/resume", nil, &st); code != http.StatusOK {
		t.Fatalf("resume status = %d", code)
	}
	if st.Paused {
		t.Error("queue still paused")
	}
	if code := do(t, srv, "GET", "/api/queue", nil, &st); code != http.StatusOK || st.Paused || st.Concurrency != 1 {
		t.Errorf("queue = %d %+v", code, st)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	svcs := newTestServices(t)
	srv := newTestServer(t, svcs)

	find := func(resp SettingsResponse, key string) Setting {
		for _, s := range resp.Settings {
			if s.Key == key {
				return s
			}
		}
		t.Fatalf("setting %s missing", key)
		return Setting{}
	}

	var resp SettingsResponse
	if code := do(t, srv, "GET", "/api/settings", nil, &resp); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(resp.Settings) != len(config.DefaultEntries()) {
		t.Errorf("settings = %d", len(resp.Settings))
	}
	if s := find(resp, config.KeyDefaultVoice); s.Overridden || s.Value != "af_heart" {
		t.Errorf("default voice = %+v", s)
	}

	path := "/api/settings/" + config.KeyDefaultVoice
	if code := do(t, srv, "PUT", path, UpdateSettingRequest{Value: "bf_emma"}, &resp); code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	if s := find(resp, config.KeyDefaultVoice); !s.Overridden || s.Value != "bf_emma" || s.Default != "af_heart" {
		t.Errorf("after update = %+v", s)
	}
	if svcs.ConfigManager.Get().TTS.DefaultVoice != "bf_emma" {
		t.Error("override not applied")
	}
	var created jobs.Record
	if do(t, srv, "POST", "/api/jobs", CreateJobRequest{EpubPath: writeEpub(t)}, &created); created.Voice != "bf_emma" {
		t.Errorf("new job voice = %q", created.Voice)
	}

	var errResp ErrorResponse
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"wrong type", "PUT", "/api/settings/" + config.KeyPaused, UpdateSettingRequest{Value: "yes"}, http.StatusBadRequest},
		{"missing value", "PUT", "/api/settings/" + config.KeyPaused, UpdateSettingRequest{}, http.StatusBadRequest},
		{"not a runtime setting", "PUT", "/api/settings/tts.url", UpdateSettingRequest{Value: "http://x"}, http.StatusNotFound},
		{"bad clock", "PUT", "/api/settings/" + config.KeyQuietHoursStart, UpdateSettingRequest{Value: "late"}, http.StatusBadRequest},
		{"reset unknown", "POST", "/api/settings/reset/tts.url", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := do(t, srv, tt.method, tt.path, tt.body, &errResp); code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, errResp.Error)
			}
		})
	}

	if code := do(t, srv, "POST", "/api/settings/reset/"+config.KeyDefaultVoice, nil, &resp); code != http.StatusOK {
		t.Fatalf("reset status = %d", code)
	}
	if s := find(resp, config.KeyDefaultVoice); s.Overridden || s.Value != "af_heart" {
		t.Errorf("after reset = %+v", s)
	}
}

func TestEventsEndpoint(t *testing.T) {
	svcs := newTestServices(t)
	srv := newTestServer(t, svcs)

	svcs.Events.Publish(notify.Event{Name: notify.JobStarted, JobID: "a"})
	svcs.Events.Publish(notify.Event{Name: notify.JobStarted, JobID: "b"})
	svcs.Events.Publish(notify.Event{Name: notify.JobFailed, JobID: "a"})

	var resp EventsResponse
	if code := do(t, srv, "GET", "/api/events", nil, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Events) != 3 || resp.LastSeq != resp.Events[2].Seq {
		t.Fatalf("events = %+v", resp)
	}
	last := resp.LastSeq

	if do(t, srv, "GET", "/api/events?job_id=a", nil, &resp); len(resp.Events) != 2 || resp.LastSeq != last {
		t.Errorf("job filter = %+v", resp)
	}
	if do(t, srv, "GET", "/api/events?since=2", nil, &resp); len(resp.Events) != 1 || resp.Events[0].Name != notify.JobFailed {
		t.Errorf("since = %+v", resp)
	}

	svcs.Events.Publish(notify.Event{Name: notify.JobCompleted, JobID: "b"})
	if do(t, srv, "GET", "/api/events?since="+jsonInt(last), nil, &resp); len(resp.Events) != 1 || resp.Events[0].Name != notify.JobCompleted {
		t.Errorf("incremental read = %+v", resp)
	}

	var errResp ErrorResponse
	if code := do(t, srv, "GET", "/api/events?since=abc", nil, &errResp); code != http.StatusBadRequest {
		t.Errorf("bad since = %d", code)
	}
}

func jsonInt(n int64) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func TestLibraryEndpoints(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Frank Herbert")
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bookDir, "Dune.epub"), []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}

	svcs := newTestServices(t)
	svcs.Library = library.NewReader(root, nil)
	srv := newTestServer(t, svcs)

	var resp LibraryResponse
	if code := do(t, srv, "GET", "/api/library?q=herbert", nil, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Books) != 1 || resp.Root != root {
		t.Fatalf("books = %+v", resp)
	}
	book := resp.Books[0]

	if do(t, srv, "GET", "/api/library?q=tolkien", nil, &resp); len(resp.Books) != 0 {
		t.Errorf("unmatched query = %+v", resp.Books)
	}

	var got library.Book
	if code := do(t, srv, "GET", "/api/library/"+book.ID, nil, &got); code != http.StatusOK || got.Path != book.Path {
		t.Errorf("get = %d %+v", code, got)
	}
	var errResp ErrorResponse
	if code := do(t, srv, "GET", "/api/library/nope", nil, &errResp); code != http.StatusNotFound {
		t.Errorf("unknown book = %d", code)
	}

	var created jobs.Record
	if code := do(t, srv, "POST", "/api/jobs", CreateJobRequest{BookID: book.ID, Author: "F. Herbert"}, &created); code != http.StatusCreated {
		t.Fatalf("create from library = %d", code)
	}
	if created.BookID != book.ID || created.EpubPath != book.Path || created.Author != "F. Herbert" {
		t.Errorf("created = %+v", created)
	}
}

func TestVoicesEndpoint(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/voices" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"voices":["af_heart","bf_emma"]}`))
	}))
	defer backend.Close()

	svcs := newTestServices(t)
	srv := newTestServer(t, svcs)

	var errResp ErrorResponse
	if code := do(t, srv, "GET", "/api/voices", nil, &errResp); code != http.StatusServiceUnavailable {
		t.Errorf("without tts = %d", code)
	}

	svcs.TTS = tts.NewClient(tts.Config{URL: backend.URL})
	var resp VoicesResponse
	if code := do(t, srv, "GET", "/api/voices", nil, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Voices) != 2 || resp.Default != "af_heart" || resp.Cached {
		t.Errorf("voices = %+v", resp)
	}

	t.Run("catalog while backend down", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		store := voices.NewMemoryStore()
		_ = store.Save(context.Background(), []voices.Voice{voices.Describe("bf_emma", time.Now())})
		svcs.TTS = tts.NewClient(tts.Config{URL: dead.URL})
		svcs.Voices = voices.NewCatalog(svcs.TTS, store, nil)

		var resp VoicesResponse
		if code := do(t, srv, "GET", "/api/voices", nil, &resp); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if !resp.Cached || len(resp.Voices) != 1 || resp.Voices[0] != "bf_emma" {
			t.Errorf("voices = %+v", resp)
		}
	})
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, newTestServices(t))
	var resp StatusResponse
	if code := do(t, srv, "GET", "/status", nil, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Storage != "memory" || resp.Defra != nil || resp.Queue == nil {
		t.Errorf("status = %+v", resp)
	}
}

func TestSwaggerEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	var spec map[string]any
	if code := do(t, srv, "GET", "/swagger.json", nil, &spec); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if spec["swagger"] != "2.0" {
		t.Errorf("spec = %v", spec["swagger"])
	}
}

func TestParseSettingValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"1", 1.0},
		{"30", 30.0},
		{"0.5", 0.5},
		{"bf_emma", "bf_emma"},
		{"22:00", "22:00"},
	}
	for _, tt := range tests {
		if got := parseSettingValue(tt.in); got != tt.want {
			t.Errorf("parseSettingValue(%q) = %v (%T)", tt.in, got, got)
		}
	}
}
