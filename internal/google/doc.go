// Package google builds the OAuth2 configuration for the Google Calendar
// consent flow and API access.
package google
