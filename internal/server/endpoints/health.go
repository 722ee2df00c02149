package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/health"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/library"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// StatusStarting is reported by /health before the server is initialized.
const StatusStarting = "starting"

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Component health
//	@Description	Liveness plus the state of the TTS backend, folders, store and worker
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	health.Report
//	@Failure		503	{object}	health.Report
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	monitor := svcctx.HealthFrom(r.Context())
	if monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, health.Report{Status: StatusStarting})
		return
	}

	report := monitor.Report(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var report health.Report
			err := client.Get(cmd.Context(), "/health", &report)
			var statusErr *api.StatusError
			if errors.As(err, &statusErr) && statusErr.Code == http.StatusServiceUnavailable {
				// The body is still a report; show it.
				if jsonErr := json.Unmarshal([]byte(statusErr.Message), &report); jsonErr == nil {
					return api.Output(report)
				}
			}
			if err != nil {
				return err
			}
			return api.Output(report)
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// errNotReady is returned when a service a request needs is not running.
var errNotReady = errors.New("settings not initialized")

// writeErr maps service errors to HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, library.ErrNotFound), errors.Is(err, config.ErrNoDefault):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrInvalidJob), errors.Is(err, config.ErrInvalidKey):
		status = http.StatusBadRequest
	case errors.Is(err, jobs.ErrJobActive), errors.Is(err, jobs.ErrInvalidTransition):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

// decodeBody decodes an optional JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
