package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/metrics"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// JobMetricsEndpoint handles GET /api/jobs/{id}/metrics.
type JobMetricsEndpoint struct{}

func (e *JobMetricsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/metrics", e.handler
}

func (e *JobMetricsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Job synthesis metrics
//	@Description	Per-chapter synthesis time, characters and audio produced, with totals
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	metrics.Summary
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/metrics [get]
func (e *JobMetricsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.JobStoreFrom(r.Context())
	ms := svcctx.MetricsFrom(r.Context())
	if store == nil || ms == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not initialized")
		return
	}

	rec, err := store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	chapters, err := ms.ForJob(r.Context(), rec.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics.Summarize(rec.ID, chapters))
}

func (e *JobMetricsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <id>",
		Short: "Show synthesis metrics for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var sum metrics.Summary
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0]+"/metrics", &sum); err != nil {
				return err
			}
			return api.Output(sum)
		},
	}
}
