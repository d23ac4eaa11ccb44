package models

import "time"

// Attendee response statuses as understood by the destination calendar.
const (
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
	ResponseNeedsAction = "needsAction"
)

// SourceEvent is the normalized representation of one event from the source
// ICS feed. It is immutable for the duration of a sync run.
type SourceEvent struct {
	UID          string    // stable iCalendar UID, the primary correlation key
	Summary      string    // title of the event
	Description  string    // detailed description, possibly empty
	Location     string    // location, possibly empty
	Start        time.Time // start instant; for all-day events only the date portion is used
	End          time.Time // end instant
	AllDay       bool      // whole-day event, encoded date-only at the destination
	LastModified time.Time // LAST-MODIFIED, falling back to DTSTAMP when absent
	Attendees    []Attendee
	Organizer    *Organizer // nil when the feed carries no organizer
}

// Attendee is one invitee on a source event.
type Attendee struct {
	Email          string
	DisplayName    string
	ResponseStatus string // one of the Response* constants
}

// Organizer identifies who owns the source event.
type Organizer struct {
	Email       string
	DisplayName string
}

// SyncResult reports the outcome of a single sync run. Counters reflect
// confirmed mutations; attempts that failed at the destination are counted
// under Failed instead. It is a report only and is never persisted.
type SyncResult struct {
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
	Unchanged   int       `json:"unchanged"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completedAt"`
}
