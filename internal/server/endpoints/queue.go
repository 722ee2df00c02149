package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// QueueStatusEndpoint handles GET /api/queue.
type QueueStatusEndpoint struct{}

func (e *QueueStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/queue", e.handler
}

func (e *QueueStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Queue status
//	@Description	Whether the worker is running, paused or inside quiet hours, and what it is working on
//	@Tags			queue
//	@Produce		json
//	@Success		200	{object}	jobs.QueueStatus
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/queue [get]
func (e *QueueStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	worker := svcctx.WorkerFrom(r.Context())
	if worker == nil {
		writeError(w, http.StatusServiceUnavailable, "worker not initialized")
		return
	}
	writeJSON(w, http.StatusOK, worker.Status())
}

func (e *QueueStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var st jobs.QueueStatus
			if err := client.Get(cmd.Context(), "/api/queue", &st); err != nil {
				return err
			}
			return api.Output(st)
		},
	}
}

// QueuePauseEndpoint handles POST /api/queue/pause and /api/queue/resume.
// The flag is stored as a runtime setting so it survives restarts.
type QueuePauseEndpoint struct {
	Paused bool
}

func (e *QueuePauseEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/queue/" + e.verb(), e.handler
}

func (e *QueuePauseEndpoint) RequiresInit() bool { return true }

func (e *QueuePauseEndpoint) verb() string {
	if e.Paused {
		return "pause"
	}
	return "resume"
}

// handler godoc
//
//	@Summary		Pause or resume the queue
//	@Description	Pausing lets the current chapter finish and holds the rest of the queue
//	@Tags			queue
//	@Produce		json
//	@Success		200	{object}	jobs.QueueStatus
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/queue/pause [post]
//	@Router			/api/queue/resume [post]
func (e *QueuePauseEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	worker := svcctx.WorkerFrom(ctx)
	if worker == nil {
		writeError(w, http.StatusServiceUnavailable, "worker not initialized")
		return
	}

	if store := svcctx.SettingStoreFrom(ctx); store != nil {
		if err := config.SetSetting(ctx, store, config.KeyPaused, e.Paused); err != nil {
			writeErr(w, err)
			return
		}
		if cm := svcctx.ConfigManagerFrom(ctx); cm != nil {
			if err := cm.Refresh(ctx); err != nil {
				svcctx.LoggerFrom(ctx).Warn("failed to refresh config", "error", err)
			}
		}
	}
	worker.SetPaused(e.Paused)
	writeJSON(w, http.StatusOK, worker.Status())
}

func (e *QueuePauseEndpoint) Command(getServerURL func() string) *cobra.Command {
	short := "Resume the queue"
	if e.Paused {
		short = "Pause the queue after the current chapter"
	}
	return &cobra.Command{
		Use:   e.verb(),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var st jobs.QueueStatus
			if err := client.Post(cmd.Context(), "/api/queue/"+e.verb(), nil, &st); err != nil {
				return err
			}
			return api.Output(st)
		},
	}
}
