package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/narrator/internal/jobs"
)

// EnvPrefix is prepended to environment overrides, e.g. NARRATOR_TTS_URL.
const EnvPrefix = "NARRATOR"

// Manager handles loading and hot-reloading configuration. The effective
// config is the file config with runtime overrides from a Store on top.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	file      *Config
	config    *Config
	store     Store
	logger    *slog.Logger
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// Without cfgFile, config.yaml is looked up in the working directory and
// then in each of searchPaths.
func NewManager(cfgFile string, searchPaths ...string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile, searchPaths); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.file = cfg
	cm.config = cfg
	cm.logger = slog.Default()

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string, searchPaths []string) error {
	defaults, err := flatten(DefaultConfig())
	if err != nil {
		return err
	}
	for key, value := range defaults {
		cm.v.SetDefault(key, value)
	}

	// Environment variables with NARRATOR_ prefix; tts.url -> NARRATOR_TTS_URL
	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		for _, p := range searchPaths {
			cm.v.AddConfigPath(p)
		}
	}

	// Try to read config file (not required)
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a validated Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// File returns the config file in use, or "" when running on defaults.
func (cm *Manager) File() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// UseStore layers the overrides held in store over the file config and
// notifies OnChange callbacks.
func (cm *Manager) UseStore(ctx context.Context, store Store, logger *slog.Logger) error {
	cm.mu.Lock()
	cm.store = store
	if logger != nil {
		cm.logger = logger
	}
	cm.mu.Unlock()
	return cm.Refresh(ctx)
}

// Refresh recomputes the effective config from the file config and the
// stored overrides, then notifies OnChange callbacks. On a store error the
// current config stays active.
func (cm *Manager) Refresh(ctx context.Context) error {
	cm.mu.RLock()
	base, store, logger := cm.file, cm.store, cm.logger
	cm.mu.RUnlock()

	cfg := base
	if store != nil {
		var err error
		if cfg, err = ApplyStored(ctx, store, base, logger); err != nil {
			return err
		}
	}
	cm.publish(cfg)
	return nil
}

func (cm *Manager) publish(cfg *Config) {
	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

// WatchConfig enables hot-reloading of configuration. An edit that fails
// validation is logged and the previous config stays active.
func (cm *Manager) WatchConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.file = cfg
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		if err := cm.Refresh(context.Background()); err != nil {
			logger.Warn("failed to apply stored settings after reload", "error", err)
		}
	})
	cm.v.WatchConfig()
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks ranges and formats. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.TTS.URL != "", "tts.url is required")
	check(c.TTS.MaxRetries >= 1, "tts.max_retries must be at least 1, got %d", c.TTS.MaxRetries)
	check(c.TTS.Speed > 0 && c.TTS.Speed <= 4, "tts.speed must be in (0, 4], got %g", c.TTS.Speed)
	check(c.TTS.CooldownSeconds >= 0, "tts.cooldown_seconds must not be negative")
	check(c.TTS.RestInterval >= 0, "tts.rest_interval must not be negative")
	for _, s := range c.TTS.RetryBackoffSeconds {
		check(s >= 0, "tts.retry_backoff_seconds must not contain negative values")
	}

	check(c.Chunker.TokenLimit > 0, "chunker.token_limit must be positive")
	check(c.Chunker.TokenFloor >= 0 && c.Chunker.TokenFloor < c.Chunker.TokenLimit,
		"chunker.token_floor must be below token_limit (%d), got %d", c.Chunker.TokenLimit, c.Chunker.TokenFloor)
	check(c.Chunker.CharsPerToken > 0, "chunker.chars_per_token must be positive")

	check(c.Extract.MinChapterWords >= 0, "extract.min_chapter_words must not be negative")
	check(c.Extract.FallbackChapterWords > 0, "extract.fallback_chapter_words must be positive")

	check(c.Audio.CrossfadeMS >= 0, "audio.crossfade_ms must not be negative")
	check(c.Audio.SilenceSeconds > 0, "audio.silence_seconds must be positive")

	check(c.Worker.Concurrency >= 1, "worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	check(c.Worker.DelayBetweenBooksSeconds >= 0, "worker.delay_between_books_seconds must not be negative")
	if _, err := jobs.ParseQuietHours(c.Worker.QuietHoursStart, c.Worker.QuietHoursEnd); err != nil {
		errs = append(errs, fmt.Errorf("worker: %w", err))
	}

	check(c.Library.ScanIntervalSeconds >= 0, "library.scan_interval_seconds must not be negative")
	check(c.Library.SettleSeconds >= 0, "library.settle_seconds must not be negative")
	check(!c.Library.AutoConvert || c.Library.Path != "", "library.auto_convert requires library.path")

	check(c.Output.Dir != "", "output.dir is required")
	check(c.Server.Port != "", "server.port is required")
	check(logLevels[strings.ToLower(c.Log.Level)], "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format must be text or json, got %q", c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// flatten turns a config into dotted leaf keys so every field is known to
// viper, which AutomaticEnv needs to map nested keys.
func flatten(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	out := make(map[string]any)
	flattenInto(out, "", tree)
	return out, nil
}

func flattenInto(out map[string]any, prefix string, v any) {
	switch m := v.(type) {
	case map[string]any:
		for k, child := range m {
			flattenInto(out, join(prefix, k), child)
		}
	case map[any]any:
		for k, child := range m {
			flattenInto(out, join(prefix, fmt.Sprint(k)), child)
		}
	default:
		out[prefix] = v
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Narrator configuration
# Secrets use ${ENV_VAR} syntax to reference environment variables.
# Every key can also be set as NARRATOR_<SECTION>_<KEY>, e.g. NARRATOR_TTS_URL.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
