package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"icsync/internal/models"
)

// Client fetches and parses a published ICS feed.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new feed client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchEvents downloads the feed and parses it into source events. Any
// failure here is fatal to the sync run: the reconciler must never operate
// on a partial source snapshot.
func (c *Client) FetchEvents(ctx context.Context, feedURL string) ([]models.SourceEvent, error) {
	body, err := c.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return Parse(c.logger, body)
}

// Fetch downloads the raw ICS payload for the given feed URL.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	c.logger.Debug("Fetching ICS feed", "url", redactURL(feedURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	if err := validateFormat(body); err != nil {
		return nil, err
	}

	c.logger.Info("Fetched ICS feed", "url", redactURL(feedURL), "bytes", len(body))
	return body, nil
}

// validateFormat rejects responses that are clearly not iCalendar data, such
// as an HTML login page returned for an expired feed URL.
func validateFormat(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("feed returned HTML instead of iCalendar data - check if the URL requires authentication")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		preview := trimmed
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return fmt.Errorf("invalid iCalendar payload - expected BEGIN:VCALENDAR, got: %s", preview)
	}
	return nil
}

// redactURL hides the path and query of a feed URL in logs. Outlook
// published-calendar URLs embed a capability token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
