package authflow

// AuthRequiredMarker is the literal tag the agent runtime recognizes as
// "out-of-band authorization required". A tool result of the form
// "[AUTH] <correlation token>" is a successful result, not an error: the
// runtime is expected to send the user to /auth with the token before
// retrying the tool call. This is a protocol contract with the runtime;
// the marker must not be re-derived anywhere else.
const AuthRequiredMarker = "[AUTH]"

// AuthRequiredResult formats the auth-required tool result for a freshly
// minted correlation token.
func AuthRequiredResult(token string) string {
	return AuthRequiredMarker + " " + token
}
