package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/notify"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// EventsResponse is a page of lifecycle events. Pass LastSeq as since to
// read only newer events.
type EventsResponse struct {
	Events  []notify.Event `json:"events"`
	LastSeq int64          `json:"last_seq"`
}

// ListEventsEndpoint handles GET /api/events.
type ListEventsEndpoint struct{}

func (e *ListEventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/events", e.handler
}

func (e *ListEventsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List events
//	@Description	Buffered lifecycle events newer than since, optionally for one job
//	@Tags			events
//	@Produce		json
//	@Param			since	query		int		false	"Return events with a greater sequence"
//	@Param			job_id	query		string	false	"Only events of this job"
//	@Success		200		{object}	EventsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/events [get]
func (e *ListEventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bus := svcctx.EventsFrom(r.Context())
	if bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not initialized")
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	jobID := r.URL.Query().Get("job_id")

	resp := EventsResponse{Events: []notify.Event{}, LastSeq: since}
	for _, ev := range bus.Since(since) {
		if ev.Seq > resp.LastSeq {
			resp.LastSeq = ev.Seq
		}
		if jobID == "" || ev.JobID == jobID {
			resp.Events = append(resp.Events, ev)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListEventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var since int64
	var jobID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			params := url.Values{}
			params.Set("job_id", jobID)
			if since > 0 {
				params.Set("since", strconv.FormatInt(since, 10))
			}
			var resp EventsResponse
			if err := client.GetQuery(cmd.Context(), "/api/events", params, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "Only events after this sequence number")
	cmd.Flags().StringVar(&jobID, "job", "", "Only events of this job")
	return cmd
}
