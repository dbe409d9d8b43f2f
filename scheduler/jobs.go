package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"

	"github.com/vquang/leaflib/cover"
	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
)

const coverBackfillBatch = 50

// scratchMaxAge is how long an import scratch directory may linger before
// the sweep removes it. Normal imports clean up after themselves; this
// catches crashed runs.
const scratchMaxAge = 24 * time.Hour

// RegisterMaintenanceJobs wires the library maintenance jobs: an hourly
// retry of missing covers and a daily sweep of leftover import scratch
// directories.
func RegisterMaintenanceJobs(
	s *Scheduler,
	db *database.Client,
	covers *cover.Processor,
	tool *ebook.Tool,
	booksDir, scratchDir string,
) error {
	err := s.AddJob("cover-backfill", "Cover backfill", "hourly",
		gocron.DurationJob(time.Hour),
		func(ctx context.Context) error {
			return backfillCovers(ctx, db, covers, tool, booksDir)
		},
	)
	if err != nil {
		return err
	}
	return s.AddJob("scratch-sweep", "Import scratch sweep", "daily",
		gocron.DurationJob(24*time.Hour),
		func(ctx context.Context) error {
			return sweepScratch(ctx, scratchDir, scratchMaxAge)
		},
	)
}

// backfillCovers retries cover extraction for books that have none. A book
// whose file simply carries no cover stays without one; the job only logs
// and moves on.
func backfillCovers(ctx context.Context, db *database.Client, covers *cover.Processor, tool *ebook.Tool, booksDir string) error {
	books, err := db.BooksWithoutCovers(ctx, coverBackfillBatch)
	if err != nil {
		return err
	}

	var recovered int
	for _, book := range books {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bookPath := ebook.StoragePath(booksDir, book.UserID, book.Filename)
		if _, err := os.Stat(bookPath); err != nil {
			continue
		}
		if err := covers.Extract(ctx, bookPath, book.UserID, book.ID); err != nil {
			if errors.Is(err, ebook.ErrToolNotFound) {
				return err
			}
			log.Debug("cover backfill: no cover extracted", "book", book.Title, "error", err)
			continue
		}
		if err := db.SetHasCover(ctx, book.ID, true); err != nil {
			return err
		}
		recovered++
	}
	if recovered > 0 {
		log.Info("cover backfill recovered covers", "count", recovered)
	}
	return nil
}

// sweepScratch removes extraction directories older than maxAge.
func sweepScratch(ctx context.Context, scratchDir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(scratchDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("failed to remove scratch entry", "path", path, "error", err)
			continue
		}
		log.Info("removed stale scratch entry", "path", path)
	}
	return nil
}
