// Package abs triggers Audiobookshelf library scans after an audiobook is
// placed.
package abs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no URL or token is set.
var ErrNotConfigured = errors.New("audiobookshelf not configured")

// Config configures a Client.
type Config struct {
	URL        string
	Token      string
	Library    string // library ID or name; empty picks the first
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Library is one Audiobookshelf library.
type Library struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType,omitempty"`
}

// Client talks to the Audiobookshelf REST API.
type Client struct {
	url     string
	token   string
	library string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     strings.TrimSuffix(cfg.URL, "/"),
		token:   cfg.Token,
		library: cfg.Library,
		http:    hc,
		logger:  logger.With("component", "audiobookshelf"),
	}
}

// Enabled reports whether URL and token are set.
func (c *Client) Enabled() bool { return c != nil && c.url != "" && c.token != "" }

// Libraries lists the server's libraries.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	var body struct {
		Libraries []Library `json:"libraries"`
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/libraries")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode libraries: %w", err)
	}
	return body.Libraries, nil
}

// Ping checks connectivity and the token.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Libraries(ctx)
	return err
}

// Scan asks the configured library, or the first one, to rescan.
func (c *Client) Scan(ctx context.Context) error {
	libs, err := c.Libraries(ctx)
	if err != nil {
		return err
	}
	lib, err := c.pick(libs)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/libraries/"+lib.ID+"/scan")
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.logger.Info("library scan triggered", "library", lib.Name, "id", lib.ID)
	return nil
}

func (c *Client) pick(libs []Library) (Library, error) {
	if len(libs) == 0 {
		return Library{}, errors.New("audiobookshelf has no libraries")
	}
	if c.library == "" {
		return libs[0], nil
	}
	for _, l := range libs {
		if l.ID == c.library || strings.EqualFold(l.Name, c.library) {
			return l, nil
		}
	}
	return Library{}, fmt.Errorf("audiobookshelf library %q not found", c.library)
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
