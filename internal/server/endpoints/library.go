package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/library"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// LibraryResponse lists books found in the library folder.
type LibraryResponse struct {
	Root  string         `json:"root"`
	Books []library.Book `json:"books"`
}

// ListLibraryEndpoint handles GET /api/library.
type ListLibraryEndpoint struct{}

func (e *ListLibraryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/library", e.handler
}

func (e *ListLibraryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List library books
//	@Description	Ebooks in the library folder, optionally filtered by title or author
//	@Tags			library
//	@Produce		json
//	@Param			q		query		string	false	"Case-insensitive title or author match"
//	@Param			rescan	query		bool	false	"Walk the folder again"
//	@Success		200		{object}	LibraryResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/library [get]
func (e *ListLibraryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library not configured")
		return
	}

	if rescan, _ := strconv.ParseBool(r.URL.Query().Get("rescan")); rescan {
		if _, err := lib.Rescan(); err != nil {
			writeErr(w, err)
			return
		}
	}

	books, err := lib.Search(r.URL.Query().Get("q"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if books == nil {
		books = []library.Book{}
	}
	writeJSON(w, http.StatusOK, LibraryResponse{Root: lib.Root(), Books: books})
}

func (e *ListLibraryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var query string
	var rescan bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ebooks in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			params := url.Values{}
			params.Set("q", query)
			if rescan {
				params.Set("rescan", "true")
			}
			var resp LibraryResponse
			if err := client.GetQuery(cmd.Context(), "/api/library", params, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Filter by title or author")
	cmd.Flags().BoolVar(&rescan, "rescan", false, "Walk the library folder again")
	return cmd
}

// GetLibraryBookEndpoint handles GET /api/library/{id}.
type GetLibraryBookEndpoint struct{}

func (e *GetLibraryBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/library/{id}", e.handler
}

func (e *GetLibraryBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get library book
//	@Tags			library
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	library.Book
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/library/{id} [get]
func (e *GetLibraryBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library not configured")
		return
	}
	book, err := lib.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *GetLibraryBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a library book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var book library.Book
			if err := client.Get(cmd.Context(), "/api/library/"+args[0], &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}
