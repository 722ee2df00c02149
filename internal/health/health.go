// Package health aggregates the state of the synthesis backend, the library
// and output folders, the job store and the worker into one report.
package health

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackzampolin/narrator/internal/jobs"
)

// Overall states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultInterval is how often Run refreshes the probes.
const DefaultInterval = 60 * time.Second

// VoiceLister is the synthesis backend.
type VoiceLister interface {
	Voices(ctx context.Context) ([]string, error)
}

// Pinger is the job store.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// WorkerStatus reports the queue state.
type WorkerStatus interface {
	Status() jobs.QueueStatus
}

// Config wires the probed components. Nil components are reported as absent.
type Config struct {
	TTS       VoiceLister
	Store     Pinger
	Worker    WorkerStatus
	Library   string
	OutputDir string
	Interval  time.Duration
	Logger    *slog.Logger
}

// Report is one health snapshot.
type Report struct {
	Status        string       `json:"status"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	CheckedAt     time.Time    `json:"checked_at"`
	TTS           TTSHealth    `json:"tts"`
	Library       FolderHealth `json:"library"`
	Output        FolderHealth `json:"output"`
	Store         StoreHealth  `json:"store"`
	Worker        WorkerHealth `json:"worker"`
}

// TTSHealth describes the synthesis backend.
type TTSHealth struct {
	Connected bool   `json:"connected"`
	Voices    int    `json:"voices"`
	Error     string `json:"error,omitempty"`
}

// FolderHealth describes a library or output folder.
type FolderHealth struct {
	Path       string `json:"path,omitempty"`
	Accessible bool   `json:"accessible"`
	Writable   bool   `json:"writable,omitempty"`
}

// StoreHealth describes the job store.
type StoreHealth struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// WorkerHealth describes the queue.
type WorkerHealth struct {
	Running      bool   `json:"running"`
	QueuePaused  bool   `json:"queue_paused"`
	InQuietHours bool   `json:"in_quiet_hours"`
	CurrentJob   string `json:"current_job,omitempty"`
}

// Monitor probes components periodically and serves the latest snapshot.
type Monitor struct {
	cfg    Config
	start  time.Time
	logger *slog.Logger

	mu   sync.RWMutex
	last *Report
}

// NewMonitor creates a Monitor. Uptime is measured from this call.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{cfg: cfg, start: time.Now(), logger: logger.With("component", "health")}
}

// Run refreshes the snapshot until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check probes every component now and stores the result.
func (m *Monitor) Check(ctx context.Context) *Report {
	r := &Report{CheckedAt: time.Now().UTC()}

	if m.cfg.TTS != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		voices, err := m.cfg.TTS.Voices(probeCtx)
		cancel()
		if err != nil {
			r.TTS.Error = err.Error()
		} else {
			r.TTS.Connected = true
			r.TTS.Voices = len(voices)
		}
	}

	r.Library = FolderHealth{Path: m.cfg.Library, Accessible: isDir(m.cfg.Library)}
	r.Output = FolderHealth{Path: m.cfg.OutputDir}
	r.Output.Writable = writable(m.cfg.OutputDir)
	r.Output.Accessible = r.Output.Writable || isDir(m.cfg.OutputDir)

	if m.cfg.Store != nil {
		if err := m.cfg.Store.HealthCheck(ctx); err != nil {
			r.Store.Error = err.Error()
		} else {
			r.Store.Connected = true
		}
	} else {
		// In-memory store.
		r.Store.Connected = true
	}

	snap := *r
	m.mu.Lock()
	m.last = &snap
	m.mu.Unlock()
	if r.TTS.Error != "" {
		m.logger.Debug("synthesis backend unreachable", "error", r.TTS.Error)
	}
	return m.finish(r)
}

// Report returns the latest snapshot with live worker state, probing first
// when nothing has been checked yet.
func (m *Monitor) Report(ctx context.Context) *Report {
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()
	if last == nil {
		return m.Check(ctx)
	}
	r := *last
	return m.finish(&r)
}

func (m *Monitor) finish(r *Report) *Report {
	if m.cfg.Worker != nil {
		st := m.cfg.Worker.Status()
		r.Worker = WorkerHealth{
			Running:      st.Running,
			QueuePaused:  st.Paused,
			InQuietHours: st.InQuietHours,
			CurrentJob:   st.CurrentJob,
		}
	}
	r.UptimeSeconds = int64(time.Since(m.start).Seconds())
	r.Status = Overall(*r, m.cfg.Library != "")
	return r
}

// Overall folds a report into one state. Losing the output folder or the
// store stops all work; losing the backend or the library only delays it.
func Overall(r Report, libraryConfigured bool) string {
	if !r.Output.Writable || !r.Store.Connected {
		return StatusUnhealthy
	}
	if !r.TTS.Connected || (libraryConfigured && !r.Library.Accessible) {
		return StatusDegraded
	}
	return StatusHealthy
}

func isDir(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// writable creates the folder when missing and writes a probe file.
func writable(dir string) bool {
	if dir == "" {
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".narrator_write_test")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name)) == nil
}
