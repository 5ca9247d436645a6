// Package config loads the process configuration from environment variables
// into a single immutable struct that is passed to the components needing it.
//
// The base URL must match the redirect URI registered in the Google Cloud
// project character for character, or the OAuth callback will be rejected.
package config
