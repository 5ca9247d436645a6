package google

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/wellaios/calendar-mcp/internal/config"
)

// NewOAuthConfig builds the OAuth2 configuration used for both the
// browser consent flow and token refresh. The redirect URL is derived
// from the configured server domain and must exactly match an authorized
// redirect URI in the Google Cloud project.
func NewOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       CalendarScopes,
	}
}
