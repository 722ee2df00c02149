package config

import (
	"time"

	"github.com/jackzampolin/narrator/internal/audio"
	"github.com/jackzampolin/narrator/internal/chunker"
	"github.com/jackzampolin/narrator/internal/epub"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/tts"
)

// Config holds narrator configuration.
// Stored at: {home}/config.yaml
type Config struct {
	TTS            TTSConfig            `mapstructure:"tts" yaml:"tts"`
	Chunker        ChunkerConfig        `mapstructure:"chunker" yaml:"chunker"`
	Extract        ExtractConfig        `mapstructure:"extract" yaml:"extract"`
	Audio          AudioConfig          `mapstructure:"audio" yaml:"audio"`
	Worker         WorkerConfig         `mapstructure:"worker" yaml:"worker"`
	Output         OutputConfig         `mapstructure:"output" yaml:"output"`
	Library        LibraryConfig        `mapstructure:"library" yaml:"library"`
	Notify         NotifyConfig         `mapstructure:"notify" yaml:"notify"`
	Audiobookshelf AudiobookshelfConfig `mapstructure:"audiobookshelf" yaml:"audiobookshelf"`
	Defra          DefraConfig          `mapstructure:"defra" yaml:"defra"`
	Server         ServerConfig         `mapstructure:"server" yaml:"server"`
	Log            LogConfig            `mapstructure:"log" yaml:"log"`
}

// TTSConfig configures the speech backend and request pacing.
type TTSConfig struct {
	URL            string  `mapstructure:"url" yaml:"url"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	Model          string  `mapstructure:"model" yaml:"model"`
	DefaultVoice   string  `mapstructure:"default_voice" yaml:"default_voice"`
	ResponseFormat string  `mapstructure:"response_format" yaml:"response_format"`
	Speed          float64 `mapstructure:"speed" yaml:"speed"`

	RequestTimeoutSeconds int   `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	MaxRetries            int   `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoffSeconds   []int `mapstructure:"retry_backoff_seconds" yaml:"retry_backoff_seconds"`
	StartupTimeoutSeconds int   `mapstructure:"startup_timeout_seconds" yaml:"startup_timeout_seconds"`
	PollIntervalSeconds   int   `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	WarmupAttempts        int   `mapstructure:"warmup_attempts" yaml:"warmup_attempts"`

	CooldownSeconds     float64 `mapstructure:"cooldown_seconds" yaml:"cooldown_seconds"`
	RestInterval        int     `mapstructure:"rest_interval" yaml:"rest_interval"` // chunks between rests, 0 disables
	RestDurationSeconds int     `mapstructure:"rest_duration_seconds" yaml:"rest_duration_seconds"`
}

// ChunkerConfig sizes synthesis requests.
type ChunkerConfig struct {
	TokenLimit    int     `mapstructure:"token_limit" yaml:"token_limit"`
	TokenFloor    int     `mapstructure:"token_floor" yaml:"token_floor"`
	CharsPerToken float64 `mapstructure:"chars_per_token" yaml:"chars_per_token"`
}

// ExtractConfig tunes chapter detection.
type ExtractConfig struct {
	MinChapterWords      int `mapstructure:"min_chapter_words" yaml:"min_chapter_words"`
	FallbackChapterWords int `mapstructure:"fallback_chapter_words" yaml:"fallback_chapter_words"`
}

// AudioConfig configures assembly.
type AudioConfig struct {
	FFmpegPath        string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath       string `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
	CrossfadeMS       int    `mapstructure:"crossfade_ms" yaml:"crossfade_ms"`
	Bitrate           string `mapstructure:"bitrate" yaml:"bitrate"`
	SilenceSeconds    int    `mapstructure:"silence_seconds" yaml:"silence_seconds"`
	SampleRate        int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	KeepIntermediates bool   `mapstructure:"keep_intermediates" yaml:"keep_intermediates"`
}

// WorkerConfig configures the job queue.
type WorkerConfig struct {
	Concurrency              int    `mapstructure:"concurrency" yaml:"concurrency"`
	DelayBetweenBooksSeconds int    `mapstructure:"delay_between_books_seconds" yaml:"delay_between_books_seconds"`
	QuietHoursStart          string `mapstructure:"quiet_hours_start" yaml:"quiet_hours_start"` // HH:MM
	QuietHoursEnd            string `mapstructure:"quiet_hours_end" yaml:"quiet_hours_end"`
	PollIntervalSeconds      int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	Paused                   bool   `mapstructure:"paused" yaml:"paused"`
	WorkDir                  string `mapstructure:"work_dir" yaml:"work_dir"` // default: {home}/work
}

// OutputConfig configures audiobook placement.
type OutputConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Sidecars bool   `mapstructure:"sidecars" yaml:"sidecars"`
}

// LibraryConfig points at the source ebook folder. With AutoConvert the
// folder is watched and new books are queued.
type LibraryConfig struct {
	Path                string `mapstructure:"path" yaml:"path"`
	AutoConvert         bool   `mapstructure:"auto_convert" yaml:"auto_convert"`
	ScanIntervalSeconds int    `mapstructure:"scan_interval_seconds" yaml:"scan_interval_seconds"`
	SettleSeconds       int    `mapstructure:"settle_seconds" yaml:"settle_seconds"`
}

// NotifyConfig configures event delivery.
type NotifyConfig struct {
	WebhookURL     string   `mapstructure:"webhook_url" yaml:"webhook_url"`
	Events         []string `mapstructure:"events" yaml:"events"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxEvents      int      `mapstructure:"max_events" yaml:"max_events"` // kept in memory for the API
}

// AudiobookshelfConfig enables library scans after each book.
type AudiobookshelfConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	Token          string `mapstructure:"token" yaml:"token"` // supports ${ENV_VAR} syntax
	Library        string `mapstructure:"library" yaml:"library"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// DefraConfig holds DefraDB settings. With Enabled false jobs are kept in
// memory only.
type DefraConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// URL of an externally managed instance; empty starts a container.
	URL string `mapstructure:"url" yaml:"url"`
	// ContainerName is the Docker container name (default: narrator-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// ServerConfig sets the HTTP listen address.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TTS: TTSConfig{
			URL:                   tts.DefaultURL,
			APIKey:                "${NARRATOR_TTS_API_KEY}",
			Model:                 tts.DefaultModel,
			DefaultVoice:          tts.DefaultVoice,
			ResponseFormat:        "wav",
			Speed:                 1.0,
			RequestTimeoutSeconds: 120,
			MaxRetries:            5,
			RetryBackoffSeconds:   []int{5, 10, 20, 40, 60},
			StartupTimeoutSeconds: 300,
			PollIntervalSeconds:   5,
			WarmupAttempts:        3,
			CooldownSeconds:       1.0,
			RestInterval:          10,
			RestDurationSeconds:   5,
		},
		Chunker: ChunkerConfig{
			TokenLimit:    chunker.DefaultTokenLimit,
			TokenFloor:    chunker.DefaultTokenFloor,
			CharsPerToken: chunker.DefaultCharsPerToken,
		},
		Extract: ExtractConfig{
			MinChapterWords:      epub.DefaultMinChapterWords,
			FallbackChapterWords: epub.DefaultFallbackChapterWords,
		},
		Audio: AudioConfig{
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
			CrossfadeMS:    50,
			Bitrate:        audio.DefaultBitrate,
			SilenceSeconds: 3,
			SampleRate:     audio.DefaultSampleRate,
		},
		Worker: WorkerConfig{
			Concurrency:              1,
			DelayBetweenBooksSeconds: 0,
			PollIntervalSeconds:      5,
		},
		Output: OutputConfig{
			Dir:      "/audiobooks",
			Sidecars: true,
		},
		Library: LibraryConfig{
			Path:                "/calibre-library",
			ScanIntervalSeconds: 300,
			SettleSeconds:       10,
		},
		Notify: NotifyConfig{
			TimeoutSeconds: 30,
			MaxEvents:      500,
		},
		Audiobookshelf: AudiobookshelfConfig{
			Token:          "${NARRATOR_ABS_TOKEN}",
			TimeoutSeconds: 30,
		},
		Defra: DefraConfig{
			Enabled:       true,
			ContainerName: "narrator-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ClientConfig converts the section for tts.NewClient, resolving ${ENV_VAR}
// references in the API key.
func (c TTSConfig) ClientConfig() tts.Config {
	backoff := make([]time.Duration, len(c.RetryBackoffSeconds))
	for i, s := range c.RetryBackoffSeconds {
		backoff[i] = seconds(s)
	}
	return tts.Config{
		URL:            c.URL,
		APIKey:         ResolveEnvVars(c.APIKey),
		Model:          c.Model,
		DefaultVoice:   c.DefaultVoice,
		ResponseFormat: c.ResponseFormat,
		Speed:          c.Speed,
		RequestTimeout: seconds(c.RequestTimeoutSeconds),
		MaxAttempts:    c.MaxRetries,
		RetryBackoff:   backoff,
		StartupTimeout: seconds(c.StartupTimeoutSeconds),
		PollInterval:   seconds(c.PollIntervalSeconds),
		WarmupAttempts: c.WarmupAttempts,
	}
}

// PacerConfig converts the pacing fields for tts.NewPacer.
func (c TTSConfig) PacerConfig() tts.PacerConfig {
	return tts.PacerConfig{
		Cooldown:     time.Duration(c.CooldownSeconds * float64(time.Second)),
		RestInterval: c.RestInterval,
		RestDuration: seconds(c.RestDurationSeconds),
	}
}

// Options converts the section for the chunker.
func (c ChunkerConfig) Options() chunker.Options {
	return chunker.Options{TokenLimit: c.TokenLimit, TokenFloor: c.TokenFloor, CharsPerToken: c.CharsPerToken}
}

// Settings converts the live-reloadable worker fields. The quiet hours must
// already have passed Validate.
func (c WorkerConfig) Settings() jobs.Settings {
	quiet, _ := jobs.ParseQuietHours(c.QuietHoursStart, c.QuietHoursEnd)
	return jobs.Settings{
		Paused:            c.Paused,
		QuietHours:        quiet,
		DelayBetweenBooks: seconds(c.DelayBetweenBooksSeconds),
		PollInterval:      seconds(c.PollIntervalSeconds),
	}
}
