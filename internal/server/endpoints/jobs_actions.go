package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// RetryJobRequest selects what a retry reprocesses.
type RetryJobRequest struct {
	Mode jobs.RetryMode `json:"mode,omitempty"`
}

// RetryJobEndpoint handles POST /api/jobs/{id}/retry.
type RetryJobEndpoint struct{}

func (e *RetryJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/retry", e.handler
}

func (e *RetryJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Retry job
//	@Description	Requeue a failed or partial job. Mode full starts over, failed_only redoes failed chapters
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Job ID"
//	@Param			request	body		RetryJobRequest	false	"Retry mode"
//	@Success		200		{object}	jobs.Record
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs/{id}/retry [post]
func (e *RetryJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	worker := svcctx.WorkerFrom(r.Context())
	if worker == nil {
		writeError(w, http.StatusServiceUnavailable, "worker not initialized")
		return
	}

	var req RetryJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := worker.Retry(r.Context(), r.PathValue("id"), req.Mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *RetryJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed or partial job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := RetryJobRequest{Mode: jobs.RetryFull}
			if failedOnly {
				req.Mode = jobs.RetryFailedOnly
			}
			client := api.NewClient(getServerURL())
			var rec jobs.Record
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/retry", req, &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "Only redo chapters that failed")
	return cmd
}

// CancelJobResponse acknowledges a cancellation request.
type CancelJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CancelJobEndpoint handles POST /api/jobs/{id}/cancel.
type CancelJobEndpoint struct{}

func (e *CancelJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/cancel", e.handler
}

func (e *CancelJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel job
//	@Description	Stop an active job at the next chunk boundary, or fail a pending one
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		202	{object}	CancelJobResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/cancel [post]
func (e *CancelJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	worker := svcctx.WorkerFrom(r.Context())
	if worker == nil {
		writeError(w, http.StatusServiceUnavailable, "worker not initialized")
		return
	}

	id := r.PathValue("id")
	if err := worker.Cancel(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CancelJobResponse{ID: id, Status: "cancelling"})
}

func (e *CancelJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or active job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CancelJobResponse
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
