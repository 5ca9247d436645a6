// Package credstore persists per-user Google OAuth credentials in SQLite.
//
// The store is the durable half of the authorization flow: the callback
// writes exchanged tokens here, and tool handlers read them back through
// Token, which transparently refreshes expired access tokens. Refreshes
// for the same user are serialized so concurrent tool calls do not race
// the provider. A refresh token the provider has revoked is treated the
// same as having no credential at all, which pushes the user back through
// the consent flow.
//
// Credential material never leaves this package except as *oauth2.Token
// values handed to the Calendar client; it is never logged.
package credstore
