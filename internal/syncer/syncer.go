package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"icsync/internal/config"
	"icsync/internal/models"
)

// Feed provides the source snapshot. The ICS client satisfies it; tests
// substitute a fake.
type Feed interface {
	FetchEvents(ctx context.Context, feedURL string) ([]models.SourceEvent, error)
}

// Syncer orchestrates one sync run: fetch the feed, read the destination
// window, reconcile, report. It holds no state between runs - ownership and
// staleness are recovered from the destination calendar every time.
type Syncer struct {
	logger       *slog.Logger
	feed         Feed
	feedURL      string
	dest         Destination
	calendarID   string
	windowPast   time.Duration
	windowFuture time.Duration
	reconciler   *Reconciler

	// now is replaceable in tests.
	now func() time.Time
}

// NewSyncer creates a Syncer from the loaded configuration.
func NewSyncer(logger *slog.Logger, feed Feed, dest Destination, cfg *config.Config, dryRun bool) *Syncer {
	return &Syncer{
		logger:       logger,
		feed:         feed,
		feedURL:      cfg.FeedURL,
		dest:         dest,
		calendarID:   cfg.CalendarID,
		windowPast:   time.Duration(cfg.WindowPastDays) * 24 * time.Hour,
		windowFuture: time.Duration(cfg.WindowFutureDays) * 24 * time.Hour,
		reconciler:   NewReconciler(logger, dest, cfg.CalendarID, dryRun, cfg.AllowEmptySource),
		now:          time.Now,
	}
}

// Sync performs a full synchronization cycle. A failure before
// reconciliation starts (feed fetch, destination read) aborts the run;
// nothing is reconciled against a partial view.
func (s *Syncer) Sync(ctx context.Context) (*models.SyncResult, error) {
	s.logger.Info("Starting sync cycle.")

	events, err := s.feed.FetchEvents(ctx, s.feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source snapshot: %w", err)
	}

	now := s.now()
	items, err := s.dest.ListWindow(ctx, s.calendarID, now.Add(-s.windowPast), now.Add(s.windowFuture))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch destination snapshot: %w", err)
	}

	result := s.reconciler.Reconcile(ctx, events, items)

	s.logger.Info("Sync cycle finished.",
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"unchanged", result.Unchanged,
		"failed", result.Failed,
	)
	return result, nil
}
