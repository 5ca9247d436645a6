package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setValidEnv(t *testing.T) {
	t.Setenv("SERVER_DOMAIN", "https://calendar.example.com")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("AUTH_TOKEN", "agent-bearer-token")
}

func TestLoad(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://calendar.example.com", cfg.BaseURL)
	assert.Equal(t, "client-id", cfg.GoogleClientID)
	assert.Equal(t, "agent-bearer-token", cfg.BearerToken)
	assert.Equal(t, "tokens.db", cfg.CredentialDBPath)
	assert.Equal(t, 10*time.Minute, cfg.PendingAuthTTL)
}

func TestLoadStateSecretFallsBackToClientSecret(t *testing.T) {
	setValidEnv(t)
	t.Setenv("STATE_SIGNING_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "client-secret", cfg.StateSigningSecret)
}

func TestLoadExplicitStateSecret(t *testing.T) {
	setValidEnv(t)
	t.Setenv("STATE_SIGNING_SECRET", "separate-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "separate-secret", cfg.StateSigningSecret)
}

func TestValidate(t *testing.T) {
	valid := Config{
		BaseURL:            "https://calendar.example.com",
		GoogleClientID:     "id",
		GoogleClientSecret: "secret",
		BearerToken:        "token",
		PendingAuthTTL:     time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing base URL", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: true},
		{name: "relative base URL", mutate: func(c *Config) { c.BaseURL = "calendar.example.com" }, wantErr: true},
		{name: "missing client ID", mutate: func(c *Config) { c.GoogleClientID = "" }, wantErr: true},
		{name: "missing client secret", mutate: func(c *Config) { c.GoogleClientSecret = "" }, wantErr: true},
		{name: "missing bearer token", mutate: func(c *Config) { c.BearerToken = "" }, wantErr: true},
		{name: "zero TTL", mutate: func(c *Config) { c.PendingAuthTTL = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedirectURL(t *testing.T) {
	cfg := Config{BaseURL: "https://calendar.example.com/"}
	assert.Equal(t, "https://calendar.example.com/auth/google/callback", cfg.RedirectURL())

	cfg.BaseURL = "http://localhost:30000"
	assert.Equal(t, "http://localhost:30000/auth/google/callback", cfg.RedirectURL())
}
