package google

// CalendarScopes are the Google OAuth scopes requested during the consent
// flow. They are the minimum needed for the exposed calendar tools.
var CalendarScopes = []string{
	// View calendar events
	"https://www.googleapis.com/auth/calendar.readonly",

	// Create and modify calendar events
	"https://www.googleapis.com/auth/calendar.events",
}
