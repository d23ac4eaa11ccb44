package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"

	"icsync/internal/models"
)

// fakeDestination records every mutation the reconciler issues.
type fakeDestination struct {
	items []*calendar.Event

	inserts []*calendar.Event
	updates map[string]*calendar.Event
	deletes []string

	insertErr error
	updateErr error
	deleteErr error

	nextID int
}

func (f *fakeDestination) ListWindow(_ context.Context, _ string, _, _ time.Time) ([]*calendar.Event, error) {
	return f.items, nil
}

func (f *fakeDestination) Insert(_ context.Context, _ string, event *calendar.Event) (*calendar.Event, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	created := *event
	created.Id = fmt.Sprintf("dest-%d", f.nextID)
	f.inserts = append(f.inserts, &created)
	return &created, nil
}

func (f *fakeDestination) Update(_ context.Context, _ string, eventID string, event *calendar.Event) (*calendar.Event, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updates == nil {
		f.updates = make(map[string]*calendar.Event)
	}
	f.updates[eventID] = event
	return event, nil
}

func (f *fakeDestination) Delete(_ context.Context, _ string, eventID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, eventID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReconciler(dest Destination) *Reconciler {
	return NewReconciler(testLogger(), dest, "cal-1", false, false)
}

func sourceEvent(uid, summary string, lastModified time.Time) models.SourceEvent {
	return models.SourceEvent{
		UID:          uid,
		Summary:      summary,
		Start:        time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		LastModified: lastModified,
	}
}

// ownedEvent builds a destination event carrying the correlation payload,
// as a previous sync run would have written it.
func ownedEvent(id string, src models.SourceEvent) *calendar.Event {
	event := desiredEvent(src)
	event.Id = id
	return event
}

func TestReconcileCreateOnAbsence(t *testing.T) {
	dest := &fakeDestination{}
	r := newTestReconciler(dest)

	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := r.Reconcile(context.Background(), []models.SourceEvent{sourceEvent("A", "Standup", lm)}, nil)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 0, result.Unchanged)
	assert.False(t, result.CompletedAt.IsZero())

	require.Len(t, dest.inserts, 1)
	inserted := dest.inserts[0]
	require.NotNil(t, inserted.ExtendedProperties)
	assert.Equal(t, "A", inserted.ExtendedProperties.Private[propSourceUID])
	assert.Equal(t, "2024-01-01T00:00:00Z", inserted.ExtendedProperties.Private[propSourceLastModified])
}

func TestReconcileIdempotence(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	source := []models.SourceEvent{
		sourceEvent("A", "Standup", lm),
		sourceEvent("B", "Review", lm),
	}

	// The destination already holds exactly what a previous run wrote.
	destination := []*calendar.Event{
		ownedEvent("g1", source[0]),
		ownedEvent("g2", source[1]),
	}

	dest := &fakeDestination{}
	result := newTestReconciler(dest).Reconcile(context.Background(), source, destination)

	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, len(source), result.Unchanged)
	assert.Empty(t, dest.inserts)
	assert.Empty(t, dest.updates)
	assert.Empty(t, dest.deletes)
}

func TestReconcileNoForeignDeletion(t *testing.T) {
	foreign := &calendar.Event{Id: "manual-1", Summary: "Dentist"}
	noPayload := &calendar.Event{
		Id:                 "manual-2",
		Summary:            "Lunch",
		ExtendedProperties: &calendar.EventExtendedProperties{Private: map[string]string{"other": "x"}},
	}

	dest := &fakeDestination{}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{sourceEvent("A", "Standup", time.Now())},
		[]*calendar.Event{foreign, noPayload},
	)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Deleted)
	assert.Empty(t, dest.deletes, "foreign events must never be deleted")
	assert.Empty(t, dest.updates, "foreign events must never be updated")
}

func TestReconcileDeleteOnDisappearance(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gone := ownedEvent("g1", sourceEvent("A", "Cancelled standup", lm))
	kept := ownedEvent("g2", sourceEvent("B", "Review", lm))

	dest := &fakeDestination{}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{sourceEvent("B", "Review", lm)},
		[]*calendar.Event{gone, kept},
	)

	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, []string{"g1"}, dest.deletes)
}

func TestReconcileUpdateTriggerTimestamp(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	existing := ownedEvent("g1", sourceEvent("A", "Standup", t1))

	dest := &fakeDestination{}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{sourceEvent("A", "Standup", t2)},
		[]*calendar.Event{existing},
	)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Unchanged)
	require.Contains(t, dest.updates, "g1")
	assert.Equal(t, "2024-01-02T00:00:00Z", dest.updates["g1"].ExtendedProperties.Private[propSourceLastModified])
}

func TestReconcileUpdateTriggerContentOnly(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Same timestamp, but the summary changed: the defensive content check
	// must still trigger an update.
	existing := ownedEvent("g1", sourceEvent("A", "Standup", lm))

	dest := &fakeDestination{}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{sourceEvent("A", "Standup (moved)", lm)},
		[]*calendar.Event{existing},
	)

	assert.Equal(t, 1, result.Updated)
	require.Contains(t, dest.updates, "g1")
	assert.Equal(t, "Standup (moved)", dest.updates["g1"].Summary)
}

func TestReconcileScenarioMoved(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	existing := ownedEvent("g1", sourceEvent("A", "Standup", t1))

	dest := &fakeDestination{}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{sourceEvent("A", "Standup (moved)", t2)},
		[]*calendar.Event{existing},
	)

	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 0, result.Unchanged)
}

func TestReconcileEmptySourceGuard(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	owned := ownedEvent("g1", sourceEvent("A", "Standup", lm))

	t.Run("guarded by default", func(t *testing.T) {
		dest := &fakeDestination{}
		result := newTestReconciler(dest).Reconcile(context.Background(), nil, []*calendar.Event{owned})

		assert.Equal(t, 0, result.Deleted, "an empty feed must not wipe the calendar")
		assert.Empty(t, dest.deletes)
	})

	t.Run("explicitly allowed", func(t *testing.T) {
		dest := &fakeDestination{}
		r := NewReconciler(testLogger(), dest, "cal-1", false, true)
		result := r.Reconcile(context.Background(), nil, []*calendar.Event{owned})

		assert.Equal(t, 1, result.Deleted)
		assert.Equal(t, []string{"g1"}, dest.deletes)
	})
}

func TestReconcileDuplicateUIDFirstWins(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	dest := &fakeDestination{}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{
			sourceEvent("A", "First", lm),
			sourceEvent("A", "Second", lm),
		},
		nil,
	)

	assert.Equal(t, 1, result.Created)
	require.Len(t, dest.inserts, 1)
	assert.Equal(t, "First", dest.inserts[0].Summary)
}

func TestReconcileFailedMutationContinues(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	dest := &fakeDestination{insertErr: errors.New("backend unavailable")}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{
			sourceEvent("A", "Standup", lm),
			sourceEvent("B", "Review", lm),
		},
		nil,
	)

	// Both inserts were attempted and both failed; neither is counted as
	// created and the run still completes.
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.CompletedAt.IsZero())
}

func TestReconcileFailedDeleteCountsFailed(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	owned := ownedEvent("g1", sourceEvent("A", "Standup", lm))

	dest := &fakeDestination{deleteErr: errors.New("backend unavailable")}
	result := newTestReconciler(dest).Reconcile(context.Background(),
		[]models.SourceEvent{sourceEvent("B", "Review", lm)},
		[]*calendar.Event{owned},
	)

	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Created)
}

func TestReconcileDryRunIssuesNoMutations(t *testing.T) {
	lm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stale := ownedEvent("g1", sourceEvent("A", "Standup", lm))
	gone := ownedEvent("g2", sourceEvent("C", "Removed", lm))

	dest := &fakeDestination{}
	r := NewReconciler(testLogger(), dest, "cal-1", true, false)
	result := r.Reconcile(context.Background(),
		[]models.SourceEvent{
			sourceEvent("A", "Standup (moved)", lm.Add(time.Hour)),
			sourceEvent("B", "New", lm),
		},
		[]*calendar.Event{stale, gone},
	)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, dest.inserts)
	assert.Empty(t, dest.updates)
	assert.Empty(t, dest.deletes)
}
