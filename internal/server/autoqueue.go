package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/library"
	"github.com/jackzampolin/narrator/internal/output"
)

// autoQueue returns a library handler that enqueues books with no job of
// any status and no finished audiobook in the output library.
func autoQueue(store jobs.Store, worker *jobs.Worker, out *output.Manager, cm *config.Manager, logger *slog.Logger) library.Handler {
	return func(ctx context.Context, books []library.Book) error {
		queued := 0
		for _, b := range books {
			if err := ctx.Err(); err != nil {
				return err
			}
			existing, err := store.List(ctx, jobs.ListFilter{BookID: b.ID, Limit: 1})
			if err != nil {
				return fmt.Errorf("failed to check jobs for %s: %w", b.ID, err)
			}
			if len(existing) > 0 {
				continue
			}
			if out.Exists(output.Book{Title: b.Title, Author: b.Author, Series: b.Series}) {
				continue
			}

			rec := jobs.NewRecord(b.Path, cm.Get().TTS.DefaultVoice)
			rec.BookID = b.ID
			rec.Title = b.Title
			rec.Author = b.Author
			rec.Series = b.Series
			rec.SeriesIndex = b.SeriesIndex
			if _, err := worker.Enqueue(ctx, rec); err != nil {
				logger.Warn("auto-queue skipped book", "book_id", b.ID, "path", b.Path, "error", err)
				continue
			}
			queued++
		}
		if queued > 0 {
			logger.Info("auto-queued new library books", "count", queued)
		}
		return nil
	}
}
