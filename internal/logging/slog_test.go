package logging

import (
	"strings"
	"testing"
)

func TestAnonymizeUserID(t *testing.T) {
	tests := []struct {
		name   string
		userID string
	}{
		{name: "regular user id", userID: "alice"},
		{name: "opaque runtime id", userID: "wellaios-7f3a9c"},
		{name: "fallback identity", userID: "single_user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed := AnonymizeUserID(tt.userID)

			if !strings.HasPrefix(hashed, "user:") {
				t.Errorf("AnonymizeUserID(%q) = %q, want user: prefix", tt.userID, hashed)
			}
			if strings.Contains(hashed, tt.userID) {
				t.Errorf("AnonymizeUserID(%q) = %q leaks the identity", tt.userID, hashed)
			}
			// Same input must hash to the same value for log correlation
			if again := AnonymizeUserID(tt.userID); again != hashed {
				t.Errorf("AnonymizeUserID not stable: %q != %q", again, hashed)
			}
		})
	}
}

func TestAnonymizeUserIDEmpty(t *testing.T) {
	if got := AnonymizeUserID(""); got != "" {
		t.Errorf("AnonymizeUserID(\"\") = %q, want empty", got)
	}
}

func TestAnonymizeUserIDDistinct(t *testing.T) {
	if AnonymizeUserID("alice") == AnonymizeUserID("bob") {
		t.Error("different identities hashed to the same value")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{name: "empty token", token: "", expected: "<empty>"},
		{name: "short token", token: "abc", expected: "[token:3 chars]"},
		{name: "correlation token", token: strings.Repeat("a", 43), expected: "[token:43 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeToken(tt.token); got != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.expected)
			}
		})
	}
}

func TestSanitizeTokenNeverContainsToken(t *testing.T) {
	token := "super-secret-correlation-token"
	if strings.Contains(SanitizeToken(token), token) {
		t.Error("SanitizeToken leaked the token")
	}
}
