package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.TTS.DefaultVoice != "af_heart" || cfg.Worker.Concurrency != 1 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.TTS.APIKey != "${NARRATOR_TTS_API_KEY}" {
		t.Error("expected tts api key placeholder")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
tts:
  url: "http://gpu-box:8880"
  retry_backoff_seconds: [1, 2]
worker:
  quiet_hours_start: "22:00"
  quiet_hours_end: "06:30"
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.TTS.URL != "http://gpu-box:8880" {
			t.Errorf("expected file url, got %s", cfg.TTS.URL)
		}
		if len(cfg.TTS.RetryBackoffSeconds) != 2 {
			t.Errorf("retry backoff = %v", cfg.TTS.RetryBackoffSeconds)
		}
		// Unset keys keep their defaults.
		if cfg.Chunker.TokenLimit != 250 || cfg.Output.Dir != "/audiobooks" {
			t.Errorf("defaults lost: %+v %+v", cfg.Chunker, cfg.Output)
		}
		if q := cfg.Worker.Settings().QuietHours; q.String() != "22:00-06:30" {
			t.Errorf("quiet hours = %q", q.String())
		}
		if mgr.File() != configFile {
			t.Errorf("File() = %q", mgr.File())
		}
	})

	t.Run("environment overrides nested keys", func(t *testing.T) {
		t.Setenv("NARRATOR_TTS_DEFAULT_VOICE", "bf_emma")
		t.Setenv("NARRATOR_WORKER_PAUSED", "true")

		mgr, err := NewManager(writeConfig(t, "log:\n  level: debug\n"))
		if err != nil {
			t.Fatal(err)
		}
		cfg := mgr.Get()
		if cfg.TTS.DefaultVoice != "bf_emma" || !cfg.Worker.Paused || cfg.Log.Level != "debug" {
			t.Errorf("overrides not applied: voice=%s paused=%v level=%s", cfg.TTS.DefaultVoice, cfg.Worker.Paused, cfg.Log.Level)
		}
	})

	t.Run("missing file in search path uses defaults", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		if mgr.Get().Server.Port != "8080" {
			t.Errorf("port = %s", mgr.Get().Server.Port)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := NewManager(writeConfig(t, "worker:\n  quiet_hours_start: \"25:00\"\n  quiet_hours_end: \"06:00\"\n"))
		if err == nil || !strings.Contains(err.Error(), "quiet hours start") {
			t.Errorf("expected quiet hours error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "worker.concurrency"},
		{"floor above limit", func(c *Config) { c.Chunker.TokenFloor = 300 }, "chunker.token_floor"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad quiet end", func(c *Config) { c.Worker.QuietHoursStart = "22:00"; c.Worker.QuietHoursEnd = "6" }, "quiet hours end"},
		{"no output", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
		{"speed", func(c *Config) { c.TTS.Speed = 9 }, "tts.speed"},
		{"auto convert without library", func(c *Config) { c.Library.AutoConvert = true; c.Library.Path = "" }, "library.auto_convert"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Worker.Concurrency = 0
		cfg.Server.Port = ""
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "worker.concurrency") || !strings.Contains(err.Error(), "server.port") {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestConversions(t *testing.T) {
	t.Setenv("TEST_TTS_KEY", "k-123")
	cfg := DefaultConfig()
	cfg.TTS.APIKey = "${TEST_TTS_KEY}"
	cfg.TTS.CooldownSeconds = 0.5

	client := cfg.TTS.ClientConfig()
	if client.APIKey != "k-123" || client.RequestTimeout != 120*time.Second || client.MaxAttempts != 5 {
		t.Errorf("client config = %+v", client)
	}
	if len(client.RetryBackoff) != 5 || client.RetryBackoff[4] != 60*time.Second {
		t.Errorf("retry backoff = %v", client.RetryBackoff)
	}
	if p := cfg.TTS.PacerConfig(); p.Cooldown != 500*time.Millisecond || p.RestInterval != 10 || p.RestDuration != 5*time.Second {
		t.Errorf("pacer config = %+v", p)
	}
	if s := cfg.Worker.Settings(); s.PollInterval != 5*time.Second || s.QuietHours.Enabled() {
		t.Errorf("worker settings = %+v", s)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_UseStore(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "tts:\n  default_voice: af_heart\n"))
	if err != nil {
		t.Fatal(err)
	}
	var seen atomic.Int32
	mgr.OnChange(func(*Config) { seen.Add(1) })

	ctx := context.Background()
	store := NewMemoryStore()
	if err := SetSetting(ctx, store, KeyDefaultVoice, "bf_emma"); err != nil {
		t.Fatal(err)
	}
	if err := mgr.UseStore(ctx, store, nil); err != nil {
		t.Fatal(err)
	}
	if mgr.Get().TTS.DefaultVoice != "bf_emma" {
		t.Errorf("override not applied: %s", mgr.Get().TTS.DefaultVoice)
	}

	if err := ResetToDefault(ctx, store, KeyDefaultVoice); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if mgr.Get().TTS.DefaultVoice != "af_heart" {
		t.Errorf("file value not restored: %s", mgr.Get().TTS.DefaultVoice)
	}
	if seen.Load() != 2 {
		t.Errorf("callbacks = %d, want 2", seen.Load())
	}
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.TTS.URL
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "worker:\n  paused: false\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if mgr.Get().Worker.Paused {
		t.Fatal("initial value mismatch: expected unpaused")
	}

	// Track callback invocations
	var callbackCount atomic.Int32
	var lastPaused atomic.Bool

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastPaused.Store(cfg.Worker.Paused)
	})

	// Start watching
	mgr.WatchConfig(nil)

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("worker:\n  paused: true\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if !mgr.Get().Worker.Paused {
		t.Error("config not updated")
	}
	if !lastPaused.Load() {
		t.Error("callback received stale config")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default does not load: %v", err)
	}
	if mgr.Get().Defra.ContainerName != "narrator-defra" {
		t.Errorf("container name = %q", mgr.Get().Defra.ContainerName)
	}
}
