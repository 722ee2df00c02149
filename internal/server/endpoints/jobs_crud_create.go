package endpoints

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// CreateJobRequest is the request body for enqueuing a book.
type CreateJobRequest struct {
	EpubPath    string `json:"epub_path,omitempty"`
	BookID      string `json:"book_id,omitempty"`
	Voice       string `json:"voice,omitempty"`
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Series      string `json:"series,omitempty"`
	SeriesIndex string `json:"series_index,omitempty"`
}

// CreateJobEndpoint handles POST /api/jobs.
type CreateJobEndpoint struct{}

func (e *CreateJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs", e.handler
}

func (e *CreateJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Enqueue a book
//	@Description	Queue an ebook for narration, by path or by library book ID
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateJobRequest	true	"Job request"
//	@Success		201		{object}	jobs.Record
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs [post]
func (e *CreateJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	worker := svcctx.WorkerFrom(r.Context())
	if worker == nil {
		writeError(w, http.StatusServiceUnavailable, "worker not initialized")
		return
	}

	var req CreateJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	voice := req.Voice
	if cm := svcctx.ConfigManagerFrom(r.Context()); voice == "" && cm != nil {
		voice = cm.Get().TTS.DefaultVoice
	}
	rec := jobs.NewRecord(req.EpubPath, voice)
	if req.BookID != "" {
		lib := svcctx.LibraryFrom(r.Context())
		if lib == nil {
			writeError(w, http.StatusServiceUnavailable, "library not configured")
			return
		}
		book, err := lib.Get(req.BookID)
		if err != nil {
			writeErr(w, err)
			return
		}
		rec.BookID = book.ID
		rec.EpubPath = book.Path
		rec.Title = book.Title
		rec.Author = book.Author
		rec.Series = book.Series
		rec.SeriesIndex = book.SeriesIndex
	}
	if rec.EpubPath == "" {
		writeError(w, http.StatusBadRequest, "epub_path or book_id is required")
		return
	}

	// Explicit fields win over library and ebook metadata.
	for dst, src := range map[*string]string{
		&rec.Title:       req.Title,
		&rec.Author:      req.Author,
		&rec.Series:      req.Series,
		&rec.SeriesIndex: req.SeriesIndex,
	} {
		if src != "" {
			*dst = src
		}
	}

	created, err := worker.Enqueue(r.Context(), rec)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (e *CreateJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req CreateJobRequest
	cmd := &cobra.Command{
		Use:   "create [epub-path]",
		Short: "Enqueue an ebook for narration",
		Long: `Enqueue an ebook for narration.

Pass a path to the ebook, or --book-id to pick a book from the library.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("failed to resolve path: %w", err)
				}
				req.EpubPath = abs
			}
			if req.EpubPath == "" && req.BookID == "" {
				return fmt.Errorf("an epub path or --book-id is required")
			}

			client := api.NewClient(getServerURL())
			var rec jobs.Record
			if err := client.Post(cmd.Context(), "/api/jobs", req, &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
	cmd.Flags().StringVar(&req.BookID, "book-id", "", "Library book ID")
	cmd.Flags().StringVar(&req.Voice, "voice", "", "Voice (default from settings)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Override the title")
	cmd.Flags().StringVar(&req.Author, "author", "", "Override the author")
	cmd.Flags().StringVar(&req.Series, "series", "", "Series name")
	cmd.Flags().StringVar(&req.SeriesIndex, "series-index", "", "Position in the series")
	return cmd
}
