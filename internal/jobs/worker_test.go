package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/narrator/internal/notify"
	"github.com/jackzampolin/narrator/internal/output"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) find(name notify.Name) (notify.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.Name == name {
			return e, true
		}
	}
	return notify.Event{}, false
}

type countingScanner struct {
	mu    sync.Mutex
	scans int
	err   error
}

func (s *countingScanner) Scan(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	return s.err
}

func (s *countingScanner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

type workerHarness struct {
	*harness
	worker   *Worker
	out      *output.Manager
	notifier *recordingNotifier
	scanner  *countingScanner
}

func newWorkerHarness(t *testing.T, synth *fakeSynth, settings Settings) *workerHarness {
	t.Helper()
	h := newHarness(t, synth)
	wh := &workerHarness{
		harness:  h,
		out:      output.NewManager(output.Config{Dir: filepath.Join(h.dir, "library"), Sidecars: true}),
		notifier: &recordingNotifier{},
		scanner:  &countingScanner{err: errors.New("abs offline")},
	}
	if settings.PollInterval == 0 {
		settings.PollInterval = 10 * time.Millisecond
	}
	w, err := NewWorker(WorkerConfig{
		Store:        h.store,
		Converter:    h.conv,
		Events:       h.bus,
		Placer:       wh.out,
		Scanner:      wh.scanner,
		Notifier:     wh.notifier,
		DefaultVoice: "af_heart",
		Settings:     settings,
	})
	if err != nil {
		t.Fatal(err)
	}
	wh.worker = w
	return wh
}

// start runs the worker until the test ends.
func (wh *workerHarness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := wh.worker.Run(ctx); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (wh *workerHarness) waitStatus(t *testing.T, id string, want Status) *Record {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := wh.store.Get(context.Background(), id)
		if err == nil && rec.Status == want && !wh.worker.isActive(id) {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec, _ := wh.store.Get(context.Background(), id)
	t.Fatalf("job %s never reached %s (status %s, error %q)", id, want, rec.Status, rec.ErrorMessage)
	return nil
}

func (wh *workerHarness) enqueue(t *testing.T) *Record {
	t.Helper()
	path := wh.writeBook(t)
	rec, err := wh.worker.Enqueue(context.Background(), &Record{EpubPath: path})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return rec
}

func TestWorkerCompletesJob(t *testing.T) {
	wh := newWorkerHarness(t, &fakeSynth{}, Settings{})
	wh.start(t)
	rec := wh.enqueue(t)
	if rec.Voice != "af_heart" || rec.Status != StatusPending {
		t.Errorf("enqueued record = %+v", rec)
	}

	done := wh.waitStatus(t, rec.ID, StatusComplete)
	book := output.Book{Title: "River Tales", Author: "A. Writer", Series: "Rivers"}
	if done.OutputPath != wh.out.Path(book) {
		t.Errorf("output path = %q, want %q", done.OutputPath, wh.out.Path(book))
	}
	if _, err := os.Stat(filepath.Join(wh.out.BookDir(book), "reader.txt")); err != nil {
		t.Errorf("reader.txt missing: %v", err)
	}
	if _, err := os.Stat(wh.conv.JobDir(rec.ID)); !os.IsNotExist(err) {
		t.Error("work dir kept after completion")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if e, ok := wh.notifier.find(notify.JobCompleted); ok {
			if e.OutputPath != done.OutputPath || e.Seq == 0 {
				t.Errorf("job_completed event = %+v", e)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job_completed not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// A scan failure is logged only.
	if wh.scanner.count() != 1 {
		t.Errorf("scans = %d, want 1", wh.scanner.count())
	}
}

func TestWorkerPlacementFailureKeepsAudiobook(t *testing.T) {
	wh := newWorkerHarness(t, &fakeSynth{}, Settings{})
	blocker := filepath.Join(wh.dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	wh.worker.cfg.Placer = output.NewManager(output.Config{Dir: filepath.Join(blocker, "library")})
	wh.start(t)
	rec := wh.enqueue(t)

	done := wh.waitStatus(t, rec.ID, StatusComplete)
	if !strings.HasPrefix(done.OutputPath, wh.conv.JobDir(rec.ID)) {
		t.Errorf("output path = %q, want the work dir copy", done.OutputPath)
	}
	if _, err := os.Stat(done.OutputPath); err != nil {
		t.Errorf("audiobook removed after failed placement: %v", err)
	}
}

func TestWorkerPartialKeepsIntermediates(t *testing.T) {
	synth := &fakeSynth{}
	synth.setFail(failOn("third", chunkErr))
	wh := newWorkerHarness(t, synth, Settings{})
	wh.start(t)
	rec := wh.enqueue(t)

	done := wh.waitStatus(t, rec.ID, StatusPartial)
	if _, err := os.Stat(wh.conv.ChapterPath(rec.ID, 1)); err != nil {
		t.Error("chapter WAVs removed after a partial result")
	}
	if !strings.Contains(done.ErrorMessage, "3") {
		t.Errorf("error message = %q", done.ErrorMessage)
	}

	t.Run("failed_only retry", func(t *testing.T) {
		synth.setFail(nil)
		before := synth.calls("first")
		if _, err := wh.worker.Retry(context.Background(), rec.ID, RetryFailedOnly); err != nil {
			t.Fatal(err)
		}
		wh.waitStatus(t, rec.ID, StatusComplete)
		if synth.calls("first") != before {
			t.Error("chapter 1 synthesized again on failed_only retry")
		}
	})
}

func TestWorkerFailsJob(t *testing.T) {
	synth := &fakeSynth{}
	synth.setFail(failOn("second", backendErr))
	wh := newWorkerHarness(t, synth, Settings{})
	wh.start(t)
	rec := wh.enqueue(t)

	failed := wh.waitStatus(t, rec.ID, StatusFailed)
	if !strings.Contains(failed.ErrorMessage, "unavailable") || failed.CompletedAt == nil {
		t.Errorf("failed record = %+v", failed)
	}
	if e, ok := wh.notifier.find(notify.JobFailed); !ok || e.Error == "" {
		t.Errorf("job_failed event = %+v (found %v)", e, ok)
	}

	t.Run("full retry clears the checkpoint", func(t *testing.T) {
		synth.setFail(nil)
		retried, err := wh.worker.Retry(context.Background(), rec.ID, RetryFull)
		if err != nil {
			t.Fatal(err)
		}
		if retried.LastChapter != 0 || retried.ErrorMessage != "" {
			t.Errorf("checkpoint kept: %+v", retried)
		}
		wh.waitStatus(t, rec.ID, StatusComplete)
	})

	t.Run("complete jobs cannot be retried", func(t *testing.T) {
		if _, err := wh.worker.Retry(context.Background(), rec.ID, RetryFull); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if _, err := wh.worker.Retry(context.Background(), rec.ID, "sometimes"); !errors.Is(err, ErrInvalidJob) {
			t.Errorf("expected ErrInvalidJob, got %v", err)
		}
	})
}

func TestWorkerResumesInterruptedJobs(t *testing.T) {
	wh := newWorkerHarness(t, &fakeSynth{}, Settings{})
	rec := wh.create(t)
	rec.Status = StatusSynthesizing
	if err := wh.store.Update(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	wh.start(t)
	wh.waitStatus(t, rec.ID, StatusComplete)
}

func TestWorkerPause(t *testing.T) {
	wh := newWorkerHarness(t, &fakeSynth{}, Settings{Paused: true})
	wh.start(t)
	rec := wh.enqueue(t)

	time.Sleep(50 * time.Millisecond)
	got, _ := wh.store.Get(context.Background(), rec.ID)
	if got.Status != StatusPending {
		t.Fatalf("paused worker started job: %s", got.Status)
	}
	st := wh.worker.Status()
	if !st.Running || !st.Paused || st.CurrentJob != "" {
		t.Errorf("status = %+v", st)
	}

	wh.worker.SetPaused(false)
	wh.waitStatus(t, rec.ID, StatusComplete)

	names := wh.names()
	if count(names, notify.QueuePaused) != 1 || count(names, notify.QueueResumed) != 1 {
		t.Errorf("queue events = %v", names)
	}
}

func TestWorkerQuietHours(t *testing.T) {
	q, err := ParseQuietHours("22:00", "06:00")
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, &fakeSynth{})
	w, err := NewWorker(WorkerConfig{
		Store:     h.store,
		Converter: h.conv,
		Events:    h.bus,
		Settings:  Settings{QuietHours: q, PollInterval: 10 * time.Millisecond},
		Now:       func() time.Time { return time.Date(2026, 5, 1, 23, 15, 0, 0, time.Local) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if st := w.Status(); !st.InQuietHours || st.QuietHours != "22:00-06:00" {
		t.Errorf("status = %+v", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := w.gate(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("gate() = %v, want deadline exceeded inside quiet hours", err)
	}
	events := h.bus.Since(0)
	if len(events) != 1 || events[0].Name != notify.QueuePaused || events[0].Reason != "quiet_hours" {
		t.Errorf("events = %+v", events)
	}
}

func TestWorkerCancel(t *testing.T) {
	t.Run("active job finishes its chunk", func(t *testing.T) {
		synth := &fakeSynth{hold: make(chan struct{}), started: make(chan struct{}, 1)}
		wh := newWorkerHarness(t, synth, Settings{})
		wh.start(t)
		rec := wh.enqueue(t)

		select {
		case <-synth.started:
		case <-time.After(10 * time.Second):
			t.Fatal("job never started")
		}
		if st := wh.worker.Status(); st.CurrentJob != rec.ID {
			t.Errorf("current job = %q, want %q", st.CurrentJob, rec.ID)
		}
		if err := wh.worker.Delete(context.Background(), rec.ID); !errors.Is(err, ErrJobActive) {
			t.Errorf("Delete() of active job = %v", err)
		}
		if err := wh.worker.Cancel(context.Background(), rec.ID); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
		if _, aborted := synth.total(); aborted != 0 {
			t.Fatal("cancel tore down the synthesis call in flight")
		}
		close(synth.hold)

		failed := wh.waitStatus(t, rec.ID, StatusFailed)
		if failed.ErrorMessage != "cancelled" {
			t.Errorf("error message = %q", failed.ErrorMessage)
		}
		if calls, aborted := synth.total(); calls != 1 || aborted != 0 {
			t.Errorf("calls = %d aborted = %d, want one completed request", calls, aborted)
		}
	})

	t.Run("active job waiting at the pause gate", func(t *testing.T) {
		wh := newWorkerHarness(t, &fakeSynth{}, Settings{})
		wh.synth.setFail(func(text string) error {
			if strings.Contains(text, "first") {
				wh.worker.Update(Settings{Paused: true})
			}
			return nil
		})
		wh.start(t)
		rec := wh.enqueue(t)

		deadline := time.Now().Add(10 * time.Second)
		for count(wh.names(), notify.QueuePaused) == 0 {
			if time.Now().After(deadline) {
				t.Fatal("job never reached the pause gate")
			}
			time.Sleep(5 * time.Millisecond)
		}
		if err := wh.worker.Cancel(context.Background(), rec.ID); err != nil {
			t.Fatal(err)
		}
		failed := wh.waitStatus(t, rec.ID, StatusFailed)
		if failed.ErrorMessage != "cancelled" {
			t.Errorf("error message = %q", failed.ErrorMessage)
		}
		if wh.synth.calls("second") != 0 {
			t.Error("cancelled job kept synthesizing")
		}
	})

	t.Run("pending job", func(t *testing.T) {
		wh := newWorkerHarness(t, &fakeSynth{}, Settings{Paused: true})
		rec := wh.enqueue(t)
		if err := wh.worker.Cancel(context.Background(), rec.ID); err != nil {
			t.Fatal(err)
		}
		got, _ := wh.store.Get(context.Background(), rec.ID)
		if got.Status != StatusFailed || got.ErrorMessage != "cancelled" {
			t.Errorf("record = %s %q", got.Status, got.ErrorMessage)
		}
		if err := wh.worker.Cancel(context.Background(), rec.ID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("second Cancel() = %v", err)
		}
		if err := wh.worker.Delete(context.Background(), rec.ID); err != nil {
			t.Errorf("Delete() = %v", err)
		}
		if _, err := wh.store.Get(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("deleted job still stored: %v", err)
		}
	})
}

func TestWorkerEnqueueValidation(t *testing.T) {
	wh := newWorkerHarness(t, &fakeSynth{}, Settings{})
	tests := []struct {
		name string
		rec  *Record
	}{
		{"missing path", &Record{}},
		{"nonexistent file", &Record{EpubPath: filepath.Join(wh.dir, "missing.epub")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := wh.worker.Enqueue(context.Background(), tt.rec); !errors.Is(err, ErrInvalidJob) {
				t.Errorf("expected ErrInvalidJob, got %v", err)
			}
		})
	}
}
