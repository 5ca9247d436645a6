package authflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// fakeCredentialStore records Put calls for assertions.
type fakeCredentialStore struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	putErr error
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{tokens: make(map[string]*oauth2.Token)}
}

func (f *fakeCredentialStore) Put(_ context.Context, userID string, token *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.tokens[userID] = token
	return nil
}

func (f *fakeCredentialStore) get(userID string) *oauth2.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[userID]
}

// newTokenEndpoint returns an httptest server that answers code exchanges.
func newTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("code") == "bad-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.test-access","token_type":"Bearer","refresh_token":"1//test-refresh","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type handlerFixture struct {
	handler  *Handler
	registry *Registry
	creds    *fakeCredentialStore
	states   *StateCodec
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	tokenSrv := newTokenEndpoint(t)

	oauthConfig := &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "https://mcp.example.com/auth/google/callback",
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: tokenSrv.URL,
		},
	}

	registry := NewRegistry(10*time.Minute, nil)
	t.Cleanup(registry.Stop)

	creds := newFakeCredentialStore()
	states := NewStateCodec("state-signing-secret", 10*time.Minute)

	return &handlerFixture{
		handler:  NewHandler(oauthConfig, registry, creds, states, nil, nil),
		registry: registry,
		creds:    creds,
		states:   states,
	}
}

func (f *handlerFixture) authEntry(t *testing.T, userID, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet,
		"/auth?userid="+url.QueryEscape(userID)+"&token="+url.QueryEscape(token), nil)
	w := httptest.NewRecorder()
	f.handler.ServeAuthEntry(w, req)
	return w
}

func (f *handlerFixture) callback(t *testing.T, rawQuery string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+rawQuery, nil)
	w := httptest.NewRecorder()
	f.handler.ServeGoogleCallback(w, req)
	return w
}

func TestServeAuthEntry_RedirectsToConsent(t *testing.T) {
	f := newHandlerFixture(t)

	token, err := f.registry.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := f.authEntry(t, "alice", token)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}

	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	if location.Host != "accounts.google.com" {
		t.Errorf("expected redirect to accounts.google.com, got %q", location.Host)
	}
	if location.Query().Get("access_type") != "offline" {
		t.Error("expected access_type=offline in consent URL")
	}
	if location.Query().Get("prompt") != "consent" {
		t.Error("expected prompt=consent in consent URL")
	}

	state := location.Query().Get("state")
	userID, correlationToken, err := f.states.Decode(state)
	if err != nil {
		t.Fatalf("redirect state does not verify: %v", err)
	}
	if userID != "alice" || correlationToken != token {
		t.Errorf("state carries (%q, %q), want (alice, %q)", userID, correlationToken, token)
	}
}

func TestServeAuthEntry_MissingParameters(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name  string
		query string
	}{
		{"no userid", "/auth?token=abc"},
		{"no token", "/auth?userid=alice"},
		{"empty", "/auth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.query, nil)
			w := httptest.NewRecorder()
			f.handler.ServeAuthEntry(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestServeAuthEntry_UnknownToken(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.authEntry(t, "alice", "never-minted")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestServeAuthEntry_ExpiredToken(t *testing.T) {
	f := newHandlerFixture(t)

	current := time.Now()
	f.registry.now = func() time.Time { return current }

	token, err := f.registry.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	current = current.Add(11 * time.Minute)

	w := f.authEntry(t, "alice", token)

	if w.Code != http.StatusGone {
		t.Errorf("expected 410 for expired token, got %d", w.Code)
	}
}

func TestServeAuthEntry_UserMismatch(t *testing.T) {
	f := newHandlerFixture(t)

	token, err := f.registry.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Mallory grabs alice's link but swaps in her own identity.
	w := f.authEntry(t, "mallory", token)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for user mismatch, got %d", w.Code)
	}

	// The pending authorization survives for alice.
	if _, err := f.registry.Lookup(token); err != nil {
		t.Errorf("alice's pending authorization was disturbed: %v", err)
	}
}

func TestServeGoogleCallback_CompletesAuthorization(t *testing.T) {
	f := newHandlerFixture(t)

	token, err := f.registry.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	state, err := f.states.Encode("alice", token)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	w := f.callback(t, "code=good-code&state="+url.QueryEscape(state))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "You can close this tab.") {
		t.Errorf("expected close-tab page, got: %s", w.Body.String())
	}

	stored := f.creds.get("alice")
	if stored == nil {
		t.Fatal("expected credential to be stored for alice")
	}
	if stored.AccessToken != "ya29.test-access" {
		t.Errorf("unexpected access token stored: %q", stored.AccessToken)
	}
	if stored.RefreshToken != "1//test-refresh" {
		t.Errorf("unexpected refresh token stored: %q", stored.RefreshToken)
	}

	// The correlation token is consumed.
	if _, err := f.registry.Lookup(token); err == nil {
		t.Error("expected correlation token to be consumed after callback")
	}
}

func TestServeGoogleCallback_ReplayRejected(t *testing.T) {
	f := newHandlerFixture(t)

	token, err := f.registry.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	state, err := f.states.Encode("alice", token)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	first := f.callback(t, "code=good-code&state="+url.QueryEscape(state))
	if first.Code != http.StatusOK {
		t.Fatalf("first callback failed: %d", first.Code)
	}

	// Replaying the identical callback must not re-resolve anything.
	second := f.callback(t, "code=good-code&state="+url.QueryEscape(state))
	if second.Code != http.StatusGone {
		t.Errorf("expected 410 for replayed callback, got %d", second.Code)
	}
}

func TestServeGoogleCallback_ConsentDenied(t *testing.T) {
	f := newHandlerFixture(t)

	token, err := f.registry.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	state, err := f.states.Encode("alice", token)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	w := f.callback(t, "error=access_denied&state="+url.QueryEscape(state))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for consent denial, got %d", w.Code)
	}
	if f.creds.get("alice") != nil {
		t.Error("no credential must be stored on consent denial")
	}

	// The token is discarded so a retry mints a fresh one.
	if _, err := f.registry.Lookup(token); err == nil {
		t.Error("expected correlation token to be discarded after denial")
	}
}

func TestServeGoogleCallback_ExchangeFailure(t *testing.T) {
	f := newHandlerFixture(t)

	token, err := f.registry.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	state, err := f.states.Encode("alice", token)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	w := f.callback(t, "code=bad-code&state="+url.QueryEscape(state))

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for failed exchange, got %d", w.Code)
	}
	if f.creds.get("alice") != nil {
		t.Error("no credential must be stored on failed exchange")
	}
	if _, err := f.registry.Lookup(token); err == nil {
		t.Error("expected correlation token to be discarded after failed exchange")
	}
}

func TestServeGoogleCallback_InvalidState(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.callback(t, "code=good-code&state=forged")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid state, got %d", w.Code)
	}
}

func TestServeGoogleCallback_MissingState(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.callback(t, "code=good-code")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing state, got %d", w.Code)
	}
}

func TestServeGoogleCallback_StateForDeadToken(t *testing.T) {
	f := newHandlerFixture(t)

	// A validly signed state whose correlation token was never minted
	// (or was already swept) must not produce a credential.
	state, err := f.states.Encode("alice", "never-minted")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	w := f.callback(t, "code=good-code&state="+url.QueryEscape(state))

	if w.Code != http.StatusGone {
		t.Errorf("expected 410 for dead correlation token, got %d", w.Code)
	}
	if f.creds.get("alice") != nil {
		t.Error("no credential must be stored for a dead token")
	}
}
