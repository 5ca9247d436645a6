package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// defaultMaxResults bounds how many upcoming events a listing returns.
const defaultMaxResults = 10

// Client wraps the Google Calendar service for a single user's token.
type Client struct {
	svc *calendar.Service
}

// NewClient creates a Calendar client authenticated with the given OAuth
// token. Extra options are mainly for tests pointing the service at a
// fake endpoint.
func NewClient(ctx context.Context, token *oauth2.Token, opts ...option.ClientOption) (*Client, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Client{svc: svc}, nil
}

// Timezone returns the user's primary calendar timezone setting, e.g.
// "America/Los_Angeles".
func (c *Client) Timezone(ctx context.Context) (string, error) {
	setting, err := c.svc.Settings.Get("timezone").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get calendar timezone: %w", err)
	}
	return setting.Value, nil
}

// ListUpcomingEvents lists events starting from now on the given
// calendar, soonest first.
func (c *Client) ListUpcomingEvents(ctx context.Context, calendarID string, maxResults int64) ([]EventSummary, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	events, err := c.svc.Events.List(calendarID).
		TimeMin(time.Now().UTC().Format(time.RFC3339)).
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	summaries := make([]EventSummary, 0, len(events.Items))
	for _, event := range events.Items {
		summaries = append(summaries, toEventSummary(event))
	}

	return summaries, nil
}

// CreateEvent creates an event on the given calendar. The wall-clock
// times in input are interpreted in the user's calendar timezone, so an
// event created for "07:00" lands at 7am wherever the user is.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, input EventInput) (*EventSummary, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}

	tz, err := c.Timezone(ctx)
	if err != nil {
		return nil, err
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Start: &calendar.EventDateTime{
			DateTime: input.Start,
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: input.End,
			TimeZone: tz,
		},
	}

	created, err := c.svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	summary := toEventSummary(created)
	return &summary, nil
}

// toEventSummary converts a Google Calendar event to a summary.
func toEventSummary(event *calendar.Event) EventSummary {
	if event == nil {
		return EventSummary{}
	}

	summary := EventSummary{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
		HTMLLink:    event.HtmlLink,
		Start:       eventTime(event.Start),
		End:         eventTime(event.End),
	}

	if event.Organizer != nil {
		summary.Organizer = event.Organizer.Email
	}

	return summary
}

// eventTime extracts the timestamp of an event boundary, falling back to
// the plain date for all-day events.
func eventTime(edt *calendar.EventDateTime) string {
	if edt == nil {
		return ""
	}
	if edt.DateTime != "" {
		return edt.DateTime
	}
	return edt.Date
}
