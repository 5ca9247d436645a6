package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the immutable process configuration, loaded once at startup
// and passed explicitly to the components that need it.
type Config struct {
	// BaseURL is the public URL this server is reachable at. It must match
	// the redirect URI registered with Google exactly, e.g.
	// "https://calendar-mcp.example.com".
	BaseURL string `env:"SERVER_DOMAIN"`

	// GoogleClientID and GoogleClientSecret identify this server to
	// Google's OAuth endpoints.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// BearerToken authenticates the agent runtime to the tool surface.
	// Every request to the MCP endpoint must carry it.
	BearerToken string `env:"AUTH_TOKEN"`

	// StateSigningSecret signs the OAuth state parameter that round-trips
	// the pending-authorization correlation through Google. Falls back to
	// the client secret when unset.
	StateSigningSecret string `env:"STATE_SIGNING_SECRET"`

	// CredentialDBPath is the path of the SQLite file holding per-user
	// Google tokens.
	CredentialDBPath string `env:"CREDENTIAL_DB_PATH" envDefault:"tokens.db"`

	// PendingAuthTTL bounds how long a minted correlation token stays
	// redeemable.
	PendingAuthTTL time.Duration `env:"PENDING_AUTH_TTL" envDefault:"10m"`
}

// Load reads configuration from environment variables and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StateSigningSecret == "" {
		cfg.StateSigningSecret = cfg.GoogleClientSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the required fields are present and usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("SERVER_DOMAIN is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SERVER_DOMAIN must be an absolute URL, got %q", c.BaseURL)
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.BearerToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if c.PendingAuthTTL <= 0 {
		return fmt.Errorf("pending auth TTL must be positive, got %s", c.PendingAuthTTL)
	}
	return nil
}

// RedirectURL returns the Google OAuth callback URL derived from the base URL.
func (c Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/google/callback"
}
