package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackzampolin/narrator/internal/jobs"
)

// ErrNoDefault is returned when a key is not a runtime setting.
var ErrNoDefault = errors.New("no default exists")

// Runtime setting keys. These can be changed through the API and override
// the config file until reset.
const (
	KeyPaused            = "worker.paused"
	KeyQuietHoursStart   = "worker.quiet_hours_start"
	KeyQuietHoursEnd     = "worker.quiet_hours_end"
	KeyDelayBetweenBooks = "worker.delay_between_books_seconds"
	KeyDefaultVoice      = "tts.default_voice"
	KeyCooldown          = "tts.cooldown_seconds"
	KeyAutoConvert       = "library.auto_convert"
)

// DefaultEntries returns the runtime settings with their built-in defaults.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		{
			Key:         KeyPaused,
			Value:       d.Worker.Paused,
			Description: "Stop starting new chapters until resumed",
		},
		{
			Key:         KeyQuietHoursStart,
			Value:       d.Worker.QuietHoursStart,
			Description: "Start of the daily quiet window (HH:MM, empty disables)",
		},
		{
			Key:         KeyQuietHoursEnd,
			Value:       d.Worker.QuietHoursEnd,
			Description: "End of the daily quiet window (HH:MM)",
		},
		{
			Key:         KeyDelayBetweenBooks,
			Value:       float64(d.Worker.DelayBetweenBooksSeconds),
			Description: "Seconds to wait after a book before starting the next",
		},
		{
			Key:         KeyDefaultVoice,
			Value:       d.TTS.DefaultVoice,
			Description: "Voice used when a job does not name one",
		},
		{
			Key:         KeyCooldown,
			Value:       d.TTS.CooldownSeconds,
			Description: "Minimum seconds between synthesis requests",
		},
		{
			Key:         KeyAutoConvert,
			Value:       d.Library.AutoConvert,
			Description: "Queue new library books automatically",
		},
	}
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// SetSetting stores an override after checking the key and the value type.
func SetSetting(ctx context.Context, store Store, key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	if n, ok := value.(int); ok {
		value = float64(n)
	}
	if fmt.Sprintf("%T", value) != fmt.Sprintf("%T", def.Value) {
		return fmt.Errorf("%w: %s expects %T, got %T", ErrInvalidKey, key, def.Value, value)
	}
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidKey, key)
		}
	case string:
		if (key == KeyQuietHoursStart || key == KeyQuietHoursEnd) && v != "" {
			if _, err := jobs.ParseClock(v); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidKey, key, err)
			}
		}
	}
	return store.Set(ctx, key, value, def.Description)
}

// ResetToDefault removes an override so the config file value applies again.
// Returns ErrNoDefault if the key is not a runtime setting.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	if GetDefault(key) == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Delete(ctx, key)
}

// Overlay returns a copy of base with stored overrides applied. Unknown keys
// are skipped. The result is validated.
func Overlay(base *Config, entries map[string]Entry) (*Config, error) {
	cfg := *base
	values := make(map[string]any, len(entries))
	for k, e := range entries {
		values[k] = e.Value
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch key {
		case KeyPaused:
			cfg.Worker.Paused = getBool(values, key)
		case KeyQuietHoursStart:
			cfg.Worker.QuietHoursStart = getString(values, key)
		case KeyQuietHoursEnd:
			cfg.Worker.QuietHoursEnd = getString(values, key)
		case KeyDelayBetweenBooks:
			cfg.Worker.DelayBetweenBooksSeconds = int(getFloat(values, key))
		case KeyDefaultVoice:
			cfg.TTS.DefaultVoice = getString(values, key)
		case KeyCooldown:
			cfg.TTS.CooldownSeconds = getFloat(values, key)
		case KeyAutoConvert:
			cfg.Library.AutoConvert = getBool(values, key)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Value returns the runtime setting key as it currently stands in cfg,
// using the same type as its default.
func Value(cfg *Config, key string) (any, error) {
	switch key {
	case KeyPaused:
		return cfg.Worker.Paused, nil
	case KeyQuietHoursStart:
		return cfg.Worker.QuietHoursStart, nil
	case KeyQuietHoursEnd:
		return cfg.Worker.QuietHoursEnd, nil
	case KeyDelayBetweenBooks:
		return float64(cfg.Worker.DelayBetweenBooksSeconds), nil
	case KeyDefaultVoice:
		return cfg.TTS.DefaultVoice, nil
	case KeyCooldown:
		return cfg.TTS.CooldownSeconds, nil
	case KeyAutoConvert:
		return cfg.Library.AutoConvert, nil
	}
	return nil, fmt.Errorf("%w for key %q", ErrNoDefault, key)
}

// ApplyStored overlays every override in store onto base. A stored value
// that makes the config invalid is logged and the base is returned.
func ApplyStored(ctx context.Context, store Store, base *Config, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := store.GetAll(ctx)
	if err != nil {
		return base, fmt.Errorf("failed to read settings: %w", err)
	}
	cfg, err := Overlay(base, entries)
	if err != nil {
		logger.Warn("ignoring stored settings", "error", err)
		return base, nil
	}
	if len(entries) > 0 {
		logger.Debug("applied stored settings", "count", len(entries))
	}
	return cfg, nil
}
