package syncer

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/api/calendar/v3"

	"icsync/internal/models"
)

// Destination is the mutable calendar the reconciler writes to. The Google
// Calendar client satisfies it; tests substitute a fake.
type Destination interface {
	ListWindow(ctx context.Context, calendarID string, from, to time.Time) ([]*calendar.Event, error)
	Insert(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	Update(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error)
	Delete(ctx context.Context, calendarID, eventID string) error
}

// Reconciler maps one immutable source snapshot onto the stateful
// destination collection, deciding create/update/delete/no-op per event.
type Reconciler struct {
	logger           *slog.Logger
	dest             Destination
	calendarID       string
	dryRun           bool
	allowEmptySource bool
}

// NewReconciler creates a Reconciler writing to the given calendar.
func NewReconciler(logger *slog.Logger, dest Destination, calendarID string, dryRun, allowEmptySource bool) *Reconciler {
	return &Reconciler{
		logger:           logger,
		dest:             dest,
		calendarID:       calendarID,
		dryRun:           dryRun,
		allowEmptySource: allowEmptySource,
	}
}

// Reconcile applies the source snapshot onto the destination snapshot.
// Mutations are issued strictly sequentially, source order first, then the
// deletion pass. An individual mutation failing is logged and counted as
// Failed; it never aborts the run. Counters reflect confirmed mutations.
func (r *Reconciler) Reconcile(ctx context.Context, source []models.SourceEvent, destination []*calendar.Event) *models.SyncResult {
	index := buildIndex(destination)
	result := &models.SyncResult{}
	seen := make(map[string]bool, len(source))

	for _, src := range source {
		if seen[src.UID] {
			// First occurrence wins; the feed should never contain
			// duplicates, but one bad export must not double-write.
			r.logger.Warn("Duplicate UID in source snapshot, skipping", "uid", src.UID, "summary", src.Summary)
			continue
		}
		seen[src.UID] = true

		desired := desiredEvent(src)

		existing, ok := index[src.UID]
		switch {
		case !ok:
			r.create(ctx, desired, result)
		case needsUpdate(existing, desired):
			r.update(ctx, existing.Id, desired, result)
		default:
			result.Unchanged++
		}
	}

	r.deletionPass(ctx, index, seen, len(source) == 0, result)

	result.CompletedAt = time.Now().UTC()
	return result
}

func (r *Reconciler) create(ctx context.Context, desired *calendar.Event, result *models.SyncResult) {
	r.logger.Info("Creating event", "summary", desired.Summary, "start", startLabel(desired))
	if r.dryRun {
		result.Created++
		return
	}
	if _, err := r.dest.Insert(ctx, r.calendarID, desired); err != nil {
		r.logger.Error("Failed to create event", "summary", desired.Summary, "error", err)
		result.Failed++
		return
	}
	result.Created++
}

func (r *Reconciler) update(ctx context.Context, eventID string, desired *calendar.Event, result *models.SyncResult) {
	r.logger.Info("Updating event", "summary", desired.Summary, "start", startLabel(desired))
	if r.dryRun {
		result.Updated++
		return
	}
	if _, err := r.dest.Update(ctx, r.calendarID, eventID, desired); err != nil {
		r.logger.Error("Failed to update event", "summary", desired.Summary, "error", err)
		result.Failed++
		return
	}
	result.Updated++
}

// deletionPass removes owned destination events whose source UID was absent
// from the snapshot. An empty snapshot against a non-empty index is more
// likely a truncated feed than a cleared calendar, so the pass is skipped
// unless explicitly allowed.
func (r *Reconciler) deletionPass(ctx context.Context, index map[string]*calendar.Event, seen map[string]bool, sourceEmpty bool, result *models.SyncResult) {
	if sourceEmpty && len(index) > 0 && !r.allowEmptySource {
		r.logger.Warn("Source snapshot is empty but synced events exist, skipping deletion pass", "owned", len(index))
		return
	}

	for uid, item := range index {
		if seen[uid] {
			continue
		}
		r.logger.Info("Deleting event", "summary", item.Summary, "start", startLabel(item), "uid", uid)
		if r.dryRun {
			result.Deleted++
			continue
		}
		if err := r.dest.Delete(ctx, r.calendarID, item.Id); err != nil {
			r.logger.Error("Failed to delete event", "summary", item.Summary, "error", err)
			result.Failed++
			continue
		}
		result.Deleted++
	}
}
