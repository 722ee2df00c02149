// Package tts talks to an OpenAI-compatible local speech backend (Kokoro)
// with readiness polling, warmup and backoff retry.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultURL   = "http://kokoro-tts:8880"
	DefaultModel = "kokoro"
	DefaultVoice = "af_heart"

	defaultWarmupText = "Hello. This is a short warmup before narration begins."
	healthTimeout     = 10 * time.Second
)

// DefaultRetryBackoff is the delay schedule between synthesis attempts.
var DefaultRetryBackoff = []time.Duration{
	5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second,
}

// Config holds backend connection and recovery settings.
type Config struct {
	URL            string
	APIKey         string
	Model          string
	DefaultVoice   string
	ResponseFormat string // "wav" (default), "mp3", "flac", "pcm"
	Speed          float64

	RequestTimeout time.Duration   // per synthesis call
	MaxAttempts    int             // attempts per chunk
	RetryBackoff   []time.Duration // delay before attempt n+1, last entry repeats

	StartupTimeout time.Duration // total reconnect window
	PollInterval   time.Duration // readiness polling interval

	WarmupAttempts   int
	WarmupText       string
	WarmupRetryDelay time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.APIKey == "" {
		c.APIKey = "not-needed"
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.DefaultVoice == "" {
		c.DefaultVoice = DefaultVoice
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = "wav"
	}
	if c.Speed <= 0 {
		c.Speed = 1.0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if len(c.RetryBackoff) == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 300 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.WarmupAttempts <= 0 {
		c.WarmupAttempts = 3
	}
	if c.WarmupText == "" {
		c.WarmupText = defaultWarmupText
	}
	if c.WarmupRetryDelay <= 0 {
		c.WarmupRetryDelay = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client is safe for concurrent use.
type Client struct {
	cfg    Config
	sdk    openai.Client
	logger *slog.Logger

	mu     sync.RWMutex
	voices []string
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	base := strings.TrimRight(cfg.URL, "/") + "/v1/"

	sdk := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
		option.WithHTTPClient(httpClient),
		// Retries are handled here with the backend specific schedule.
		option.WithMaxRetries(0),
	)

	return &Client{
		cfg:    cfg,
		sdk:    sdk,
		logger: cfg.Logger.With("component", "tts", "backend", cfg.URL),
	}
}

// URL returns the configured backend base URL.
func (c *Client) URL() string { return c.cfg.URL }

// DefaultVoice returns the voice used when a job does not select one.
func (c *Client) DefaultVoice() string { return c.cfg.DefaultVoice }

type voicesResponse struct {
	Voices []string `json:"voices"`
}

// HealthCheck queries the voice list endpoint and refreshes the cache.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var res voicesResponse
	if err := c.sdk.Get(ctx, "audio/voices", nil, &res); err != nil {
		return fmt.Errorf("voices request failed: %w", mapError(err))
	}
	c.mu.Lock()
	c.voices = res.Voices
	c.mu.Unlock()
	return nil
}

// Voices returns the cached voice list, fetching it on first use.
func (c *Client) Voices(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	cached := c.voices
	c.mu.RUnlock()
	if cached != nil {
		return append([]string(nil), cached...), nil
	}
	if err := c.HealthCheck(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.voices...), nil
}

// WaitUntilReady polls the backend until it answers or StartupTimeout
// elapses.
func (c *Client) WaitUntilReady(ctx context.Context) error {
	start := time.Now()
	deadline := start.Add(c.cfg.StartupTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = c.HealthCheck(ctx); lastErr == nil {
			if waited := time.Since(start); waited > c.cfg.PollInterval {
				c.logger.Info("backend is ready", "waited", waited.Round(time.Second))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return &BackendUnavailableError{URL: c.cfg.URL, Waited: time.Since(start), Err: lastErr}
		}
		c.logger.Debug("backend not ready", "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Warmup sends short synthesis requests to surface cold-start failures
// before a long job starts.
func (c *Client) Warmup(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.WarmupAttempts; attempt++ {
		if err := c.WaitUntilReady(ctx); err != nil {
			return err
		}
		_, lastErr = c.synthesizeOnce(ctx, c.cfg.WarmupText, c.cfg.DefaultVoice)
		if lastErr == nil {
			c.logger.Info("warmup succeeded", "attempt", attempt)
			return nil
		}
		c.logger.Warn("warmup failed", "attempt", attempt, "error", lastErr)
		if attempt < c.cfg.WarmupAttempts {
			if err := sleep(ctx, c.cfg.WarmupRetryDelay); err != nil {
				return err
			}
		}
	}
	return &BackendUnavailableError{URL: c.cfg.URL, Err: fmt.Errorf("warmup failed: %w", lastErr)}
}

// Synthesize renders text with voice, retrying on transport and server
// errors. A reachable backend that keeps failing yields
// *ChunkSynthesisError; an unreachable one that does not come back within
// the reconnect window yields *BackendUnavailableError.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = c.cfg.DefaultVoice
	}

	var (
		audio    []byte
		attempts int
	)
	err := retry.Do(
		func() error {
			attempts++
			b, err := c.synthesizeOnce(ctx, text, voice)
			if err == nil {
				audio = b
				return nil
			}
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			if !retryable(err) {
				return retry.Unrecoverable(err)
			}
			// Distinguish a rejected chunk from a backend that went away.
			if herr := c.HealthCheck(ctx); herr != nil {
				c.logger.Warn("backend unreachable, waiting for reconnect", "error", herr)
				if werr := c.WaitUntilReady(ctx); werr != nil {
					return retry.Unrecoverable(werr)
				}
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxAttempts)),
		retry.LastErrorOnly(true),
		retry.DelayType(c.backoff),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("synthesis attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err == nil {
		return audio, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var unavailable *BackendUnavailableError
	if errors.As(err, &unavailable) {
		return nil, unavailable
	}
	return nil, &ChunkSynthesisError{Attempts: attempts, Err: err}
}

// backoff returns the wait before retry n. retry-go numbers retries from 1.
func (c *Client) backoff(n uint, _ error, _ *retry.Config) time.Duration {
	i := max(int(n)-1, 0)
	if i >= len(c.cfg.RetryBackoff) {
		i = len(c.cfg.RetryBackoff) - 1
	}
	return c.cfg.RetryBackoff[i]
}

func (c *Client) synthesizeOnce(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.sdk.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.cfg.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(c.cfg.ResponseFormat),
		Speed:          openai.Float(c.cfg.Speed),
	})
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}

func retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
