package syncer

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"icsync/internal/models"
)

// Correlation payload keys, stored in the private extended properties of
// every destination event this tool owns. The payload is the only bridge
// between source and destination identity: a destination event without it
// is foreign and must never be touched.
const (
	propSourceUID          = "icsyncUid"
	propSourceLastModified = "icsyncLastModified"
)

const dateLayout = "2006-01-02"

// desiredEvent computes the destination representation of a source event:
// the full body an insert or update call would write, correlation payload
// included.
func desiredEvent(src models.SourceEvent) *calendar.Event {
	event := &calendar.Event{
		Summary:     src.Summary,
		Description: src.Description,
		Location:    src.Location,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				propSourceUID:          src.UID,
				propSourceLastModified: src.LastModified.UTC().Format(time.RFC3339),
			},
		},
	}

	if src.AllDay {
		// Date-only encoding; any time-of-day on the source instant is
		// discarded.
		event.Start = &calendar.EventDateTime{Date: src.Start.Format(dateLayout)}
		event.End = &calendar.EventDateTime{Date: src.End.Format(dateLayout)}
	} else {
		event.Start = &calendar.EventDateTime{DateTime: src.Start.Format(time.RFC3339)}
		event.End = &calendar.EventDateTime{DateTime: src.End.Format(time.RFC3339)}
	}

	for _, a := range src.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}

	if src.Organizer != nil && src.Organizer.Email != "" {
		event.Organizer = &calendar.EventOrganizer{
			Email:       src.Organizer.Email,
			DisplayName: src.Organizer.DisplayName,
		}
	}

	return event
}

// sourceUID returns the correlation UID stored on a destination event, or
// "" for foreign events.
func sourceUID(event *calendar.Event) string {
	if event.ExtendedProperties == nil || event.ExtendedProperties.Private == nil {
		return ""
	}
	return event.ExtendedProperties.Private[propSourceUID]
}

// sourceLastModified returns the stored source modification timestamp of a
// destination event, or "" when absent.
func sourceLastModified(event *calendar.Event) string {
	if event.ExtendedProperties == nil || event.ExtendedProperties.Private == nil {
		return ""
	}
	return event.ExtendedProperties.Private[propSourceLastModified]
}

// buildIndex maps source UID to destination event for every owned event in
// the destination snapshot. Events without a correlation payload are
// skipped: they are foreign, not an error. Should the destination somehow
// hold two events claiming the same UID, the last one listed wins.
func buildIndex(items []*calendar.Event) map[string]*calendar.Event {
	index := make(map[string]*calendar.Event, len(items))
	for _, item := range items {
		uid := sourceUID(item)
		if uid == "" {
			continue
		}
		index[uid] = item
	}
	return index
}

// needsUpdate reports whether an existing destination event is stale
// relative to its desired representation. Either check alone triggers an
// update: the stored source timestamp differing is the cheap primary
// signal, and the content comparison catches edits from feeds that do not
// reliably advance LAST-MODIFIED. The content check deliberately covers
// only the cheap, frequently-edited fields; times, attendees and organizer
// are trusted to move with the timestamp.
func needsUpdate(existing, desired *calendar.Event) bool {
	if sourceLastModified(existing) != desired.ExtendedProperties.Private[propSourceLastModified] {
		return true
	}
	return existing.Summary != desired.Summary ||
		existing.Description != desired.Description ||
		existing.Location != desired.Location
}

// startLabel renders the start of a desired event for log lines.
func startLabel(event *calendar.Event) string {
	if event.Start == nil {
		return ""
	}
	if event.Start.Date != "" {
		return event.Start.Date
	}
	return event.Start.DateTime
}
