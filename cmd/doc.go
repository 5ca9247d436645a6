// Package cmd implements the command line interface for calendar-mcp.
//
// The root command defaults to the serve subcommand, which starts the
// MCP server with the Google Calendar tools and the browser-facing
// authorization endpoints.
package cmd
