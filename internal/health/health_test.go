package health

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/narrator/internal/jobs"
)

type fakeTTS struct {
	voices []string
	err    error
}

func (f fakeTTS) Voices(context.Context) ([]string, error) { return f.voices, f.err }

type fakeStore struct{ err error }

func (f fakeStore) HealthCheck(context.Context) error { return f.err }

type fakeWorker struct{ st jobs.QueueStatus }

func (f fakeWorker) Status() jobs.QueueStatus { return f.st }

func TestMonitorCheck(t *testing.T) {
	library := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")

	tests := []struct {
		name   string
		cfg    Config
		status string
	}{
		{
			name:   "all components up",
			cfg:    Config{TTS: fakeTTS{voices: []string{"af_heart", "am_adam"}}, Library: library, OutputDir: output},
			status: StatusHealthy,
		},
		{
			name:   "backend down",
			cfg:    Config{TTS: fakeTTS{err: errors.New("connection refused")}, Library: library, OutputDir: output},
			status: StatusDegraded,
		},
		{
			name:   "library missing",
			cfg:    Config{TTS: fakeTTS{}, Library: filepath.Join(library, "absent"), OutputDir: output},
			status: StatusDegraded,
		},
		{
			name:   "no library configured",
			cfg:    Config{TTS: fakeTTS{}, OutputDir: output},
			status: StatusHealthy,
		},
		{
			name:   "no output folder",
			cfg:    Config{TTS: fakeTTS{}, Library: library},
			status: StatusUnhealthy,
		},
		{
			name:   "store unreachable",
			cfg:    Config{TTS: fakeTTS{}, Store: fakeStore{err: errors.New("dial tcp")}, OutputDir: output},
			status: StatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewMonitor(tt.cfg).Check(context.Background())
			if r.Status != tt.status {
				t.Errorf("status = %s, want %s (%+v)", r.Status, tt.status, r)
			}
		})
	}
}

func TestMonitorReport(t *testing.T) {
	w := &fakeWorker{st: jobs.QueueStatus{Running: true, Paused: true, CurrentJob: "job-1"}}
	m := NewMonitor(Config{
		TTS:       fakeTTS{voices: []string{"af_heart"}},
		Worker:    w,
		OutputDir: t.TempDir(),
	})

	r := m.Report(context.Background())
	if !r.TTS.Connected || r.TTS.Voices != 1 {
		t.Errorf("tts = %+v", r.TTS)
	}
	if !r.Output.Writable || !r.Output.Accessible {
		t.Errorf("output = %+v", r.Output)
	}
	if !r.Worker.Running || !r.Worker.QueuePaused || r.Worker.CurrentJob != "job-1" {
		t.Errorf("worker = %+v", r.Worker)
	}

	// Worker state is read live; probes come from the cached snapshot.
	w.st = jobs.QueueStatus{Running: true}
	r = m.Report(context.Background())
	if r.Worker.QueuePaused || r.Worker.CurrentJob != "" {
		t.Errorf("worker state not refreshed: %+v", r.Worker)
	}
}
