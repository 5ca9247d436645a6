// Package calendar_tools registers the Google Calendar MCP tools.
//
// Both tools resolve the caller's identity from the X-User-ID header and
// look up that user's stored credential. A user without one gets the
// "[AUTH] <token>" result instead of an error, which tells the agent
// runtime to send the user through the browser authorization flow and
// retry.
package calendar_tools
