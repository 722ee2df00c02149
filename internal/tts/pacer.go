package tts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PacerConfig spaces out synthesis requests so a local GPU backend can
// release memory between chunks.
type PacerConfig struct {
	Cooldown     time.Duration // minimum gap after each request
	RestInterval int           // rest every N requests, 0 disables
	RestDuration time.Duration
	Logger       *slog.Logger
}

// Pacer is safe for concurrent use.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	cfg     PacerConfig
	count   int
	logger  *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewPacer creates a pacer. A zero cooldown disables spacing.
func NewPacer(cfg PacerConfig) *Pacer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pacer{
		limiter: newLimiter(cfg.Cooldown),
		cfg:     cfg,
		logger:  logger.With("component", "pacer"),
		sleep:   sleep,
	}
}

func newLimiter(cooldown time.Duration) *rate.Limiter {
	if cooldown <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(cooldown), 1)
}

// Update applies new pacing settings, keeping the request count.
func (p *Pacer) Update(cfg PacerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.Cooldown <= 0 {
		p.limiter.SetLimit(rate.Inf)
	} else {
		p.limiter.SetLimit(rate.Every(cfg.Cooldown))
	}
	cfg.Logger = p.cfg.Logger
	p.cfg = cfg
}

// Wait blocks until the next request may start. Every RestInterval requests
// it additionally rests for RestDuration.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	rest := p.cfg.RestInterval > 0 && p.count > 0 && p.count%p.cfg.RestInterval == 0
	restFor := p.cfg.RestDuration
	p.count++
	p.mu.Unlock()

	if rest && restFor > 0 {
		p.logger.Info("resting synthesis backend", "duration", restFor)
		if err := p.sleep(ctx, restFor); err != nil {
			return err
		}
	}
	return p.limiter.Wait(ctx)
}

// Done marks the end of a request so the cooldown counts from completion
// rather than from start.
func (p *Pacer) Done() {
	p.limiter.Reserve()
}

// Reset starts a new request count, typically per chapter.
func (p *Pacer) Reset() {
	p.mu.Lock()
	p.count = 0
	p.mu.Unlock()
}
