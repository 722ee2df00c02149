// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/defra"
	"github.com/jackzampolin/narrator/internal/health"
	"github.com/jackzampolin/narrator/internal/home"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/library"
	"github.com/jackzampolin/narrator/internal/metrics"
	"github.com/jackzampolin/narrator/internal/notify"
	"github.com/jackzampolin/narrator/internal/tts"
	"github.com/jackzampolin/narrator/internal/voices"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DefraClient   *defra.Client // nil when running without DefraDB
	JobStore      jobs.Store
	Worker        *jobs.Worker
	ConfigManager *config.Manager
	SettingStore  config.Store
	Events        *notify.Bus
	Metrics       metrics.Store
	TTS           *tts.Client
	Voices        *voices.Catalog
	Library       *library.Reader // nil when no library is configured
	Health        *health.Monitor
	Logger        *slog.Logger
	Home          *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DefraClientFrom extracts the DefraDB client from context.
func DefraClientFrom(ctx context.Context) *defra.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraClient
	}
	return nil
}

// JobStoreFrom extracts the job store from context.
func JobStoreFrom(ctx context.Context) jobs.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.JobStore
	}
	return nil
}

// WorkerFrom extracts the queue worker from context.
func WorkerFrom(ctx context.Context) *jobs.Worker {
	if s := ServicesFrom(ctx); s != nil {
		return s.Worker
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// SettingStoreFrom extracts the runtime settings store from context.
func SettingStoreFrom(ctx context.Context) config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.SettingStore
	}
	return nil
}

// EventsFrom extracts the event bus from context.
func EventsFrom(ctx context.Context) *notify.Bus {
	if s := ServicesFrom(ctx); s != nil {
		return s.Events
	}
	return nil
}

// TTSFrom extracts the TTS client from context.
func TTSFrom(ctx context.Context) *tts.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.TTS
	}
	return nil
}

// LibraryFrom extracts the ebook library reader from context.
func LibraryFrom(ctx context.Context) *library.Reader {
	if s := ServicesFrom(ctx); s != nil {
		return s.Library
	}
	return nil
}

// MetricsFrom extracts the chapter metrics store from context.
func MetricsFrom(ctx context.Context) metrics.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Metrics
	}
	return nil
}

// VoicesFrom extracts the voice catalog from context.
func VoicesFrom(ctx context.Context) *voices.Catalog {
	if s := ServicesFrom(ctx); s != nil {
		return s.Voices
	}
	return nil
}

// HealthFrom extracts the health monitor from context.
func HealthFrom(ctx context.Context) *health.Monitor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Health
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
