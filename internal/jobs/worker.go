package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/narrator/internal/notify"
	"github.com/jackzampolin/narrator/internal/output"
)

var (
	// ErrInvalidJob is returned for an enqueue request that cannot run.
	ErrInvalidJob = errors.New("invalid job")

	// ErrJobActive is returned when a change requires the job to be idle.
	ErrJobActive = errors.New("job is active")
)

// Placer moves a built audiobook into the output library.
type Placer interface {
	Place(src string, b output.Book) (string, error)
}

// Scanner asks a media server to pick up new files.
type Scanner interface {
	Scan(ctx context.Context) error
}

// Notifier delivers an event outside the process.
type Notifier interface {
	Notify(ctx context.Context, e notify.Event) error
}

// Settings are the worker options that may change while it runs.
type Settings struct {
	Paused            bool
	QuietHours        QuietHours
	DelayBetweenBooks time.Duration
	PollInterval      time.Duration
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Store        Store
	Converter    *Converter
	Events       notify.Publisher // optional
	Placer       Placer           // optional
	Scanner      Scanner          // optional
	Notifier     Notifier         // optional
	DefaultVoice string
	Concurrency  int
	Settings     Settings

	// Now defaults to time.Now and is used for quiet hours.
	Now func() time.Time

	Logger *slog.Logger
}

// QueueStatus is a point-in-time view of the worker.
type QueueStatus struct {
	Running      bool     `json:"running"`
	Paused       bool     `json:"paused"`
	InQuietHours bool     `json:"in_quiet_hours"`
	QuietHours   string   `json:"quiet_hours,omitempty"`
	CurrentJob   string   `json:"current_job,omitempty"`
	ActiveJobs   []string `json:"active_jobs"`
	Concurrency  int      `json:"concurrency"`
}

// Worker takes pending jobs oldest first and runs them through the
// Converter with bounded concurrency. It is the only writer of an active
// job's record.
type Worker struct {
	cfg    WorkerConfig
	store  Store
	conv   *Converter
	logger *slog.Logger
	now    func() time.Time

	sem  chan struct{}
	wake chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	settings Settings
	running  bool
	held     bool
	active   map[string]*activeJob
	order    []string
}

// activeJob is the cancel handle for a running job. stop is read at chunk
// boundaries; release unblocks a job waiting at the pause gate.
type activeJob struct {
	stop    atomic.Bool
	release context.CancelFunc
}

func (a *activeJob) cancel() {
	a.stop.Store(true)
	a.release()
}

// NewWorker creates a Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Store == nil || cfg.Converter == nil {
		return nil, fmt.Errorf("worker requires a store and converter")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Settings.PollInterval <= 0 {
		cfg.Settings.PollInterval = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:      cfg,
		store:    cfg.Store,
		conv:     cfg.Converter,
		logger:   logger.With("component", "worker"),
		now:      cfg.Now,
		sem:      make(chan struct{}, cfg.Concurrency),
		wake:     make(chan struct{}, 1),
		settings: cfg.Settings,
		active:   make(map[string]*activeJob),
	}, nil
}

// Update applies new settings. A pause takes effect after the current
// chapter.
func (w *Worker) Update(s Settings) {
	w.mu.Lock()
	if s.PollInterval <= 0 {
		s.PollInterval = w.settings.PollInterval
	}
	w.settings = s
	w.mu.Unlock()
	w.nudge()
}

// SetPaused sets the pause flag.
func (w *Worker) SetPaused(paused bool) {
	w.mu.Lock()
	w.settings.Paused = paused
	w.mu.Unlock()
	w.logger.Info("queue pause flag changed", "paused", paused)
	w.nudge()
}

// Status returns a snapshot safe to read from any goroutine.
func (w *Worker) Status() QueueStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := QueueStatus{
		Running:      w.running,
		Paused:       w.settings.Paused,
		InQuietHours: w.settings.QuietHours.Contains(w.now()),
		QuietHours:   w.settings.QuietHours.String(),
		ActiveJobs:   slices.Clone(w.order),
		Concurrency:  cap(w.sem),
	}
	if st.ActiveJobs == nil {
		st.ActiveJobs = []string{}
	}
	if len(w.order) > 0 {
		st.CurrentJob = w.order[0]
	}
	return st
}

// Enqueue stores a new pending job.
func (w *Worker) Enqueue(ctx context.Context, rec *Record) (*Record, error) {
	if rec.EpubPath == "" {
		return nil, fmt.Errorf("%w: epub_path is required", ErrInvalidJob)
	}
	if _, err := os.Stat(rec.EpubPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if rec.Voice == "" {
		rec.Voice = w.cfg.DefaultVoice
	}
	rec.Status = StatusPending
	if rec.RetryMode == "" {
		rec.RetryMode = RetryFull
	}
	if rec.FailedChapters == nil {
		rec.FailedChapters = []int{}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := w.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	w.logger.Info("job enqueued", "job_id", rec.ID, "epub", rec.EpubPath, "voice", rec.Voice)
	w.nudge()
	return rec, nil
}

// Retry returns a failed or partial job to pending. Full mode discards the
// checkpoint; failed_only keeps completed chapters.
func (w *Worker) Retry(ctx context.Context, id string, mode RetryMode) (*Record, error) {
	if mode == "" {
		mode = RetryFull
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown retry mode %q", ErrInvalidJob, mode)
	}
	if w.isActive(id) {
		return nil, fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	rec, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(rec.Status, StatusPending); err != nil || !rec.Status.Retryable() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, StatusPending)
	}

	if mode == RetryFull {
		rec.resetCheckpoint()
		if err := os.RemoveAll(w.conv.JobDir(rec.ID)); err != nil {
			return nil, fmt.Errorf("failed to clear work dir: %w", err)
		}
	}
	rec.Status = StatusPending
	rec.RetryMode = mode
	rec.ErrorMessage = ""
	rec.CompletedAt = nil
	if err := w.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	w.logger.Info("job queued for retry", "job_id", id, "mode", mode, "failed_chapters", rec.FailedChapters)
	w.nudge()
	return rec, nil
}

// Cancel stops an active job once its chunk in flight has finished, or fails
// a pending one immediately.
func (w *Worker) Cancel(ctx context.Context, id string) error {
	w.mu.Lock()
	job, ok := w.active[id]
	w.mu.Unlock()
	if ok {
		job.cancel()
		w.logger.Info("cancelling job", "job_id", id)
		return nil
	}

	rec, err := w.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, StatusFailed)
	}
	w.fail(ctx, rec, ErrJobCancelled.Error())
	return nil
}

// Delete removes an idle job and its intermediates.
func (w *Worker) Delete(ctx context.Context, id string) error {
	if w.isActive(id) {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	rec, err := w.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status.Active() {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	if err := os.RemoveAll(w.conv.JobDir(id)); err != nil {
		w.logger.Warn("failed to remove work dir", "job_id", id, "error", err)
	}
	return w.store.Delete(ctx, id)
}

// Run processes jobs until ctx is cancelled. Jobs interrupted by a previous
// shutdown are returned to pending first. Run waits for active jobs to
// stop before returning.
func (w *Worker) Run(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)

	if err := w.resume(ctx); err != nil {
		return fmt.Errorf("failed to resume interrupted jobs: %w", err)
	}
	w.logger.Info("worker started", "concurrency", cap(w.sem))

	for {
		if err := w.gate(ctx); err != nil {
			break
		}
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		rec, err := w.next(ctx)
		if err != nil || rec == nil {
			<-w.sem
			if err != nil && ctx.Err() == nil {
				w.logger.Error("failed to read pending jobs", "error", err)
			}
			if w.wait(ctx, w.pollInterval()) != nil {
				break
			}
			continue
		}

		gateCtx, release := context.WithCancel(ctx)
		job := &activeJob{release: release}
		w.track(rec.ID, job)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.process(ctx, rec, Control{
				Gate: func(context.Context) error { return w.gate(gateCtx) },
				Stop: job.stop.Load,
			})
			w.untrack(rec.ID)
			release()
			if d := w.delay(); d > 0 && ctx.Err() == nil {
				w.logger.Debug("delay between books", "delay", d)
				_ = sleepCtx(ctx, d)
			}
		}()
	}

	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// process runs one job and applies the terminal side effects.
func (w *Worker) process(ctx context.Context, rec *Record, ctl Control) {
	logger := w.logger.With("job_id", rec.ID)
	logger.Info("job started", "epub", rec.EpubPath, "mode", rec.RetryMode)

	outcome, err := w.conv.Run(ctx, rec, ctl)
	if err != nil {
		cancelled := ctl.Stop != nil && ctl.Stop()
		if ctx.Err() != nil && !cancelled {
			logger.Info("job interrupted by shutdown, will resume", "status", rec.Status, "last_chapter", rec.LastChapter)
			return
		}
		msg := err.Error()
		if cancelled {
			msg = ErrJobCancelled.Error()
		}
		logger.Error("job failed", "status", rec.Status, "error", err)
		w.fail(context.WithoutCancel(ctx), rec, msg)
		return
	}
	w.finish(context.WithoutCancel(ctx), rec, outcome)
}

// finish places the output and notifies. Side-effect errors are logged and
// never change the job status. The work dir holds the only copy of the
// audiobook until placement succeeds, so it is kept otherwise.
func (w *Worker) finish(ctx context.Context, rec *Record, outcome *Outcome) {
	logger := w.logger.With("job_id", rec.ID)

	placed := false
	if w.cfg.Placer != nil {
		dest, err := w.cfg.Placer.Place(outcome.Book.Path, output.Book{
			Title:       rec.Title,
			Author:      rec.Author,
			Series:      rec.Series,
			SeriesIndex: rec.SeriesIndex,
			Voice:       rec.Voice,
			Description: outcome.Description,
			Cover:       outcome.Cover,
		})
		if err != nil {
			logger.Error("output placement failed, audiobook kept in work dir", "path", rec.OutputPath, "error", err)
		} else {
			placed = true
			rec.OutputPath = dest
			if err := w.store.Update(ctx, rec); err != nil {
				logger.Error("failed to save output path", "error", err)
			}
		}
	}
	if placed && rec.Status == StatusComplete {
		if err := os.RemoveAll(w.conv.JobDir(rec.ID)); err != nil {
			logger.Warn("failed to remove work dir", "error", err)
		}
	}
	if w.cfg.Scanner != nil {
		if err := w.cfg.Scanner.Scan(ctx); err != nil {
			logger.Warn("library scan failed", "error", err)
		}
	}

	name := notify.JobCompleted
	if rec.Status == StatusPartial {
		name = notify.JobPartial
	}
	w.emit(ctx, notify.Event{
		Name:            name,
		JobID:           rec.ID,
		Title:           rec.Title,
		Author:          rec.Author,
		OutputPath:      rec.OutputPath,
		DurationSeconds: rec.DurationSeconds,
		Error:           rec.ErrorMessage,
	})
}

// fail records a terminal failure.
func (w *Worker) fail(ctx context.Context, rec *Record, msg string) {
	if err := Transition(rec.Status, StatusFailed); err != nil {
		w.logger.Warn("forcing failed status", "job_id", rec.ID, "from", rec.Status)
	}
	now := time.Now().UTC()
	rec.Status = StatusFailed
	rec.ErrorMessage = msg
	rec.CompletedAt = &now
	if err := w.store.Update(ctx, rec); err != nil {
		w.logger.Error("failed to save failed status", "job_id", rec.ID, "error", err)
	}
	w.emit(ctx, notify.Event{Name: notify.JobFailed, JobID: rec.ID, Title: rec.Title, Author: rec.Author, Error: msg})
}

func (w *Worker) emit(ctx context.Context, e notify.Event) {
	if w.cfg.Events != nil {
		e = w.cfg.Events.Publish(e)
	} else if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if w.cfg.Notifier != nil {
		if err := w.cfg.Notifier.Notify(ctx, e); err != nil {
			w.logger.Warn("notification failed", "event", e.Name, "job_id", e.JobID, "error", err)
		}
	}
}

// resume returns jobs left active by a previous process to pending.
func (w *Worker) resume(ctx context.Context) error {
	recs, err := w.store.List(ctx, ListFilter{Statuses: ActiveStatuses, Limit: 10000})
	if err != nil {
		return err
	}
	for _, rec := range recs {
		w.logger.Info("resuming interrupted job", "job_id", rec.ID, "status", rec.Status, "last_chapter", rec.LastChapter)
		rec.Status = StatusPending
		if err := w.store.Update(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// next returns the oldest pending job not already running.
func (w *Worker) next(ctx context.Context) (*Record, error) {
	recs, err := w.store.List(ctx, ListFilter{Status: StatusPending})
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range recs {
		if _, ok := w.active[rec.ID]; !ok {
			return rec, nil
		}
	}
	return nil, nil
}

// gate blocks while the queue is paused or inside quiet hours, reporting
// each change of state once.
func (w *Worker) gate(ctx context.Context) error {
	for {
		if held, _ := w.holding(); !held {
			return nil
		}
		if err := w.wait(ctx, w.pollInterval()); err != nil {
			return err
		}
	}
}

func (w *Worker) holding() (bool, string) {
	w.mu.Lock()
	var reason string
	switch {
	case w.settings.Paused:
		reason = "paused"
	case w.settings.QuietHours.Contains(w.now()):
		reason = "quiet_hours"
	}
	held := reason != ""
	changed := held != w.held
	w.held = held
	w.mu.Unlock()

	if changed {
		if held {
			w.logger.Info("queue paused", "reason", reason)
			w.emit(context.Background(), notify.Event{Name: notify.QueuePaused, Reason: reason})
		} else {
			w.logger.Info("queue resumed")
			w.emit(context.Background(), notify.Event{Name: notify.QueueResumed})
		}
	}
	return held, reason
}

func (w *Worker) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.wake:
		return nil
	case <-t.C:
		return nil
	}
}

// nudge wakes a waiting loop without blocking.
func (w *Worker) nudge() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) track(id string, job *activeJob) {
	w.mu.Lock()
	w.active[id] = job
	w.order = append(w.order, id)
	w.mu.Unlock()
}

func (w *Worker) isActive(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[id]
	return ok
}

func (w *Worker) untrack(id string) {
	w.mu.Lock()
	delete(w.active, id)
	w.order = slices.DeleteFunc(w.order, func(s string) bool { return s == id })
	w.mu.Unlock()
	w.nudge()
}

func (w *Worker) setRunning(v bool) {
	w.mu.Lock()
	w.running = v
	w.mu.Unlock()
}

func (w *Worker) pollInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings.PollInterval
}

func (w *Worker) delay() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings.DelayBetweenBooks
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
