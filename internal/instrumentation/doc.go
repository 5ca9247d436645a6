// Package instrumentation provides OpenTelemetry metrics and tracing for
// the calendar MCP server.
//
// The package is configured entirely through OTEL_* environment variables
// and degrades gracefully: when instrumentation is disabled, NewProvider
// returns a provider whose Metrics value is a no-op recorder, so callers
// never have to branch on whether observability is wired up.
//
// Metrics cover the HTTP surface, MCP tool invocations, Google Calendar
// API calls, token refreshes, and the deferred-authorization flow
// (signaled, redirected, resolved, failed, expired).
package instrumentation
