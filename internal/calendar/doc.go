// Package calendar wraps the Google Calendar API for the exposed MCP
// tools: listing upcoming events and creating events in the user's
// calendar timezone.
package calendar
