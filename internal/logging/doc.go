// Package logging provides structured logging utilities built on slog.
//
// It centralizes attribute naming and PII handling: user identities are
// hashed before logging so entries stay correlatable without exposing who
// the agent runtime was acting for, and tokens are reduced to a length
// indicator. Correlation tokens and OAuth credentials must never reach a
// log line verbatim.
package logging
