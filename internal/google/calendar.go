package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewClient creates a new Google Calendar client. It exchanges the stored
// refresh token (token-<account>.json, written by the auth command) for an
// access credential; a failure here aborts the sync run before any
// reconciliation happens.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName string) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := fmt.Sprintf("token-%s.json", accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarClient{service: service, logger: logger}, nil
}

// ListWindow fetches all events on the calendar whose occurrence overlaps
// the [from, to) window. Recurring events are returned as master records,
// not expanded instances, so the correlation payload stays on the record
// the source feed describes.
func (c *CalendarClient) ListWindow(ctx context.Context, calendarID string, from, to time.Time) ([]*calendar.Event, error) {
	c.logger.Debug("Fetching destination events", "calendarID", calendarID, "from", from, "to", to)

	var items []*calendar.Event
	pageToken := ""
	for {
		call := c.service.Events.List(calendarID).
			Context(ctx).
			ShowDeleted(false).
			SingleEvents(false).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			MaxResults(250)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list destination events: %w", err)
		}

		items = append(items, events.Items...)
		pageToken = events.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Info("Fetched destination events", "count", len(items), "calendarID", calendarID)
	return items, nil
}

// Insert creates a new event on the calendar.
func (c *CalendarClient) Insert(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	created, err := c.service.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return created, nil
}

// Update replaces the full body of an existing event.
func (c *CalendarClient) Update(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	updated, err := c.service.Events.Update(calendarID, eventID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to update event %s: %w", eventID, err)
	}
	return updated, nil
}

// Delete removes an event from the calendar. An event that is already gone
// is treated as a successful delete.
func (c *CalendarClient) Delete(ctx context.Context, calendarID, eventID string) error {
	err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			c.logger.Debug("Event already gone, treating delete as success", "eventID", eventID)
			return nil
		}
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	return nil
}
