package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"icsync/internal/models"
)

// Parse converts a raw ICS payload into the normalized source event list.
//
// Per-event rules:
//   - a VEVENT without a UID is rejected (logged and skipped) - the sync
//     cannot correlate an event it cannot identify
//   - LAST-MODIFIED is the staleness timestamp, with DTSTAMP as fallback
//   - all-day events are detected via VALUE=DATE or a date-only DTSTART
//   - duplicate UIDs within one feed: the first occurrence wins, later ones
//     are logged and dropped
func Parse(logger *slog.Logger, body []byte) ([]models.SourceEvent, error) {
	decoder := ical.NewDecoder(bytes.NewReader(body))

	var events []models.SourceEvent
	seen := make(map[string]bool)

	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}

			event, err := parseEvent(comp)
			if err != nil {
				logger.Warn("Skipping unparseable event", "error", err)
				continue
			}

			if seen[event.UID] {
				logger.Warn("Duplicate UID in feed, keeping first occurrence", "uid", event.UID, "summary", event.Summary)
				continue
			}
			seen[event.UID] = true

			events = append(events, event)
		}
	}

	logger.Info("Parsed ICS feed", "count", len(events))
	return events, nil
}

// parseEvent extracts one VEVENT into the source event model.
func parseEvent(comp *ical.Component) (models.SourceEvent, error) {
	var event models.SourceEvent

	uidProp := comp.Props.Get(ical.PropUID)
	if uidProp == nil || uidProp.Value == "" {
		return event, errors.New("event has no UID")
	}
	event.UID = uidProp.Value

	if p := comp.Props.Get(ical.PropSummary); p != nil {
		event.Summary = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		event.Description = p.Value
	}
	if p := comp.Props.Get(ical.PropLocation); p != nil {
		event.Location = p.Value
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return event, fmt.Errorf("event %s has no DTSTART", event.UID)
	}
	start, err := parseDateTimeProp(startProp)
	if err != nil {
		return event, fmt.Errorf("event %s has unparseable DTSTART: %w", event.UID, err)
	}
	event.Start = start
	event.AllDay = isDateOnly(startProp)

	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if end, err := parseDateTimeProp(endProp); err == nil {
			event.End = end
		}
	}
	if event.End.IsZero() {
		// DTEND is optional; all-day events default to one day, timed
		// events to a point in time.
		if event.AllDay {
			event.End = event.Start.Add(24 * time.Hour)
		} else {
			event.End = event.Start
		}
	}

	event.LastModified = lastModified(comp)

	for _, p := range comp.Props[ical.PropAttendee] {
		event.Attendees = append(event.Attendees, models.Attendee{
			Email:          stripMailto(p.Value),
			DisplayName:    p.Params.Get(ical.ParamCommonName),
			ResponseStatus: mapResponseStatus(p.Params.Get(ical.ParamParticipationStatus)),
		})
	}

	if p := comp.Props.Get(ical.PropOrganizer); p != nil {
		event.Organizer = &models.Organizer{
			Email:       stripMailto(p.Value),
			DisplayName: p.Params.Get(ical.ParamCommonName),
		}
	}

	return event, nil
}

// lastModified returns the best-effort modification timestamp of the event:
// LAST-MODIFIED when present, DTSTAMP otherwise.
func lastModified(comp *ical.Component) time.Time {
	if p := comp.Props.Get(ical.PropLastModified); p != nil {
		if t, err := parseDateTimeProp(p); err == nil {
			return t
		}
	}
	if p := comp.Props.Get(ical.PropDateTimeStamp); p != nil {
		if t, err := parseDateTimeProp(p); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseDateTimeProp parses a date or date-time property, falling back to
// common raw layouts for feeds that omit parameter context.
func parseDateTimeProp(prop *ical.Prop) (time.Time, error) {
	if t, err := prop.DateTime(time.UTC); err == nil {
		return t, nil
	}

	value := prop.Value
	layouts := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date-time value %q", value)
}

// isDateOnly reports whether a DTSTART property denotes an all-day event:
// either VALUE=DATE is declared or the value has no time component.
func isDateOnly(prop *ical.Prop) bool {
	if strings.EqualFold(prop.Params.Get(ical.ParamValue), "DATE") {
		return true
	}
	return !strings.Contains(prop.Value, "T")
}

// stripMailto normalizes an ORGANIZER/ATTENDEE calendar address to a bare
// email address.
func stripMailto(value string) string {
	if len(value) >= 7 && strings.EqualFold(value[:7], "mailto:") {
		return value[7:]
	}
	return value
}

// mapResponseStatus converts an iCalendar PARTSTAT into the destination's
// response status vocabulary.
func mapResponseStatus(partstat string) string {
	switch strings.ToUpper(partstat) {
	case "ACCEPTED":
		return models.ResponseAccepted
	case "DECLINED":
		return models.ResponseDeclined
	case "TENTATIVE":
		return models.ResponseTentative
	default:
		return models.ResponseNeedsAction
	}
}
