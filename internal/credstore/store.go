package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"

	"github.com/wellaios/calendar-mcp/internal/instrumentation"
	"github.com/wellaios/calendar-mcp/internal/logging"
)

// ErrNoCredential indicates that no usable credential exists for a user.
// Callers are expected to start the deferred authorization flow.
var ErrNoCredential = errors.New("no credential stored for user")

// refreshLeeway is how long before the recorded expiry an access token is
// treated as expired. It absorbs clock skew and in-flight request time.
const refreshLeeway = 60 * time.Second

// Store persists per-user provider credentials in SQLite and hands out
// fresh access tokens, refreshing them transparently when they expire.
type Store struct {
	db          *sql.DB
	oauthConfig *oauth2.Config
	metrics     *instrumentation.Metrics
	logger      *slog.Logger

	// refreshMu guards userLocks; the per-user locks serialize refreshes
	// so concurrent tool calls for one user trigger at most one refresh.
	refreshMu sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewStore opens (or creates) the credential database at path. Parent
// directories are created if needed.
func NewStore(path string, oauthConfig *oauth2.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "credstore")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps concurrent tool calls from serializing on the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{
		db:          db,
		oauthConfig: oauthConfig,
		metrics:     metrics,
		logger:      logger,
		userLocks:   make(map[string]*sync.Mutex),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("credential store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			user_id       TEXT PRIMARY KEY,
			access_token  TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			token_type    TEXT NOT NULL DEFAULT 'Bearer',
			expiry        TEXT NOT NULL DEFAULT '',
			updated_at    TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores or replaces the credential for userID.
func (s *Store) Put(ctx context.Context, userID string, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("refusing to store empty credential for %s", logging.AnonymizeUserID(userID))
	}

	expiry := ""
	if !token.Expiry.IsZero() {
		expiry = token.Expiry.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE credentials.refresh_token END,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`,
		userID,
		token.AccessToken,
		token.RefreshToken,
		token.TokenType,
		expiry,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	s.logger.Info("credential stored",
		logging.UserHash(userID),
		"has_refresh_token", token.RefreshToken != "",
	)
	return nil
}

// Get returns the stored credential for userID without refreshing it.
// Most callers want Token instead.
func (s *Store) Get(ctx context.Context, userID string) (*oauth2.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, token_type, expiry
		FROM credentials WHERE user_id = ?
	`, userID)

	var accessToken, refreshToken, tokenType, expiryStr string
	if err := row.Scan(&accessToken, &refreshToken, &tokenType, &expiryStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
	}
	if expiryStr != "" {
		expiry, err := time.Parse(time.RFC3339, expiryStr)
		if err != nil {
			return nil, fmt.Errorf("parsing credential expiry: %w", err)
		}
		token.Expiry = expiry
	}

	return token, nil
}

// Delete removes the credential for userID. Deleting a missing credential
// is not an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	s.logger.Info("credential deleted", logging.UserHash(userID))
	return nil
}

// Token returns a valid access token for userID, refreshing the stored
// credential if it is expired or about to expire. Refreshes for the same
// user are serialized; the winner persists the new token and the rest see
// it as already fresh.
//
// When the provider permanently rejects the refresh token, the dead
// credential is removed and ErrNoCredential is returned so the caller can
// restart the authorization flow.
func (s *Store) Token(ctx context.Context, userID string) (*oauth2.Token, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	token, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if tokenValid(token) {
		return token, nil
	}

	if token.RefreshToken == "" {
		// Expired with nothing to refresh: treat as unauthenticated.
		s.logger.Info("credential expired without refresh token",
			logging.UserHash(userID),
		)
		if err := s.Delete(ctx, userID); err != nil {
			return nil, err
		}
		return nil, ErrNoCredential
	}

	refreshed, err := s.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		if refreshRejected(err) {
			s.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshRejected)
			s.logger.Warn("refresh token rejected by provider",
				logging.UserHash(userID),
			)
			if delErr := s.Delete(ctx, userID); delErr != nil {
				return nil, delErr
			}
			return nil, ErrNoCredential
		}
		s.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshFailure)
		return nil, fmt.Errorf("refreshing credential: %w", err)
	}

	// Providers often omit the refresh token on refresh responses.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	if err := s.Put(ctx, userID, refreshed); err != nil {
		return nil, err
	}

	s.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshSuccess)
	s.logger.Info("credential refreshed", logging.UserHash(userID))

	return refreshed, nil
}

// userLock returns the refresh mutex for userID, creating it on first use.
func (s *Store) userLock(userID string) *sync.Mutex {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// tokenValid reports whether the access token is usable without a refresh.
// A zero expiry means the provider did not bound the token's lifetime.
func tokenValid(token *oauth2.Token) bool {
	if token.Expiry.IsZero() {
		return true
	}
	return time.Until(token.Expiry) > refreshLeeway
}

// refreshRejected reports whether the refresh failure is a permanent
// rejection (revoked or expired grant) rather than a transient error.
func refreshRejected(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode == "invalid_grant"
	}
	return false
}
