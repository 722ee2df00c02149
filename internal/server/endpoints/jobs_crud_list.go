package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// ListJobsResponse is the response for listing jobs.
type ListJobsResponse struct {
	Jobs []*jobs.Record `json:"jobs"`
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List jobs
//	@Description	List jobs oldest first, optionally filtered by one or more statuses
//	@Tags			jobs
//	@Produce		json
//	@Param			status	query		string	false	"Comma separated statuses"
//	@Param			offset	query		int		false	"Skip this many jobs"
//	@Param			limit	query		int		false	"Maximum jobs to return"
//	@Success		200		{object}	ListJobsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.JobStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "job store not initialized")
		return
	}

	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := store.List(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []*jobs.Record{}
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: list})
}

func parseListFilter(q url.Values) (jobs.ListFilter, error) {
	var filter jobs.ListFilter
	if raw := q.Get("status"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			s := jobs.Status(strings.TrimSpace(name))
			if !s.Valid() {
				return filter, fmt.Errorf("unknown status %q", s)
			}
			filter.Statuses = append(filter.Statuses, s)
		}
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"offset", &filter.Offset}, {"limit", &filter.Limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return filter, nil
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status string
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			params := url.Values{}
			params.Set("status", status)
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}

			var resp ListJobsResponse
			if err := client.GetQuery(cmd.Context(), "/api/jobs", params, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (comma separated)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many jobs")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum jobs to return (default 100)")
	return cmd
}
