// Package authflow implements the deferred authorization flow that lets
// an MCP tool call acquire Google credentials out of band.
//
// When a tool call arrives for a user with no stored credential, the tool
// does not fail: it mints a single-use correlation token in the Registry
// and returns the AuthRequiredMarker result. The agent runtime surfaces
// the /auth link to the user, whose browser then drives the Handler
// through Google's consent flow. The callback exchanges the code, stores
// the credential, and resolves the pending authorization, after which
// retrying the original tool call succeeds.
//
// Correlation tokens are unguessable, expire after a configurable TTL,
// and are consumed on resolution. The OAuth state parameter carries the
// token and user identity through the provider as an HMAC-signed JWT, so
// no server-side browser session is needed.
package authflow
