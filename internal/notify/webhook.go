package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultWebhookEvents are delivered when no event list is configured.
var DefaultWebhookEvents = []Name{JobCompleted, JobPartial, JobFailed}

// WebhookConfig configures webhook delivery.
type WebhookConfig struct {
	URL        string
	Events     []Name
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Webhook POSTs selected events as JSON. A Webhook with an empty URL
// accepts and drops everything.
type Webhook struct {
	url    string
	events map[Name]bool
	client *http.Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewWebhook creates a webhook sink.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	schema, err := compilePayloadSchema()
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	names := cfg.Events
	if len(names) == 0 {
		names = DefaultWebhookEvents
	}
	events := make(map[Name]bool, len(names))
	for _, n := range names {
		events[n] = true
	}
	return &Webhook{
		url:    cfg.URL,
		events: events,
		client: client,
		schema: schema,
		logger: logger.With("component", "webhook"),
	}, nil
}

// Enabled reports whether a URL is configured.
func (w *Webhook) Enabled() bool { return w != nil && w.url != "" }

// Wants reports whether name is delivered.
func (w *Webhook) Wants(name Name) bool { return w.Enabled() && w.events[name] }

// Notify delivers e if it is wanted.
func (w *Webhook) Notify(ctx context.Context, e Event) error {
	if !w.Wants(e.Name) {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := validatePayload(w.schema, body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "narrator-webhook")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	w.logger.Debug("webhook delivered", "event", e.Name, "job_id", e.JobID, "status", resp.StatusCode)
	return nil
}
