package calendar

// DefaultCalendarID addresses the user's primary calendar.
const DefaultCalendarID = "primary"

// LocalTimeLayout is the wall-clock format tool inputs use for event
// times. The values carry no offset; the user's calendar timezone is
// attached when the event is created.
const LocalTimeLayout = "2006-01-02T15:04:05"

// EventInput is the input for creating a calendar event. Start and End
// are wall-clock times in LocalTimeLayout.
type EventInput struct {
	Summary     string
	Description string
	Start       string
	End         string
}

// EventSummary is a flattened calendar event as returned to tool callers.
// Start and End are either RFC3339 timestamps or, for all-day events,
// plain dates.
type EventSummary struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Status      string `json:"status,omitempty"`
	Organizer   string `json:"organizer,omitempty"`
	HTMLLink    string `json:"htmlLink,omitempty"`
}
