package authflow

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wellaios/calendar-mcp/internal/logging"
)

// Registry lookup errors.
var (
	ErrTokenNotFound = errors.New("correlation token not found")
	ErrTokenExpired  = errors.New("correlation token expired")
)

// correlationTokenLength is the number of random bytes in a correlation
// token. 32 bytes keeps the token unguessable for the lifetime of a
// pending authorization.
const correlationTokenLength = 32

// sweepInterval is how often expired pending authorizations are swept.
// Expired records are also evicted lazily on lookup; the sweep only bounds
// memory for tokens nobody ever dereferences.
const sweepInterval = time.Minute

// pendingAuthorization links a minted correlation token to the user the
// tool call was made for.
type pendingAuthorization struct {
	userID    string
	createdAt time.Time
}

// Registry is the in-memory mapping from single-use correlation tokens to
// pending authorizations. It is intentionally not durable: losing it on
// restart only forces affected users to re-initiate authorization.
type Registry struct {
	ttl       time.Duration
	mu        sync.Mutex
	pending   map[string]pendingAuthorization
	logger    *slog.Logger
	sweepDone chan struct{}
	stopOnce  sync.Once

	// now is overridable in tests
	now func() time.Time
}

// NewRegistry creates a registry whose pending authorizations expire after
// ttl. A background sweep evicts expired records until Stop is called.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		ttl:       ttl,
		pending:   make(map[string]pendingAuthorization),
		logger:    logging.WithComponent(logger, "authflow.registry"),
		sweepDone: make(chan struct{}),
		now:       time.Now,
	}

	go r.sweep()

	return r
}

// Create mints a fresh correlation token for userID and records the
// pending authorization. The token is the only value that ever leaves the
// process boundary, embedded in the auth-required tool result.
func (r *Registry) Create(userID string) (string, error) {
	token, err := generateSecureToken(correlationTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to mint correlation token: %w", err)
	}

	r.mu.Lock()
	r.pending[token] = pendingAuthorization{
		userID:    userID,
		createdAt: r.now(),
	}
	count := len(r.pending)
	r.mu.Unlock()

	r.logger.Info("pending authorization created",
		logging.UserHash(userID),
		"pending_count", count,
	)

	return token, nil
}

// Lookup returns the user identity behind a correlation token. It does
// NOT evict live records: the entry endpoint dereferences the token to
// start the redirect, and the user identity must still be available when
// the provider callback resolves it. Expired records are evicted here and
// reported as ErrTokenExpired.
func (r *Registry) Lookup(token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pa, ok := r.pending[token]
	if !ok {
		return "", ErrTokenNotFound
	}

	if r.now().Sub(pa.createdAt) >= r.ttl {
		delete(r.pending, token)
		r.logger.Info("pending authorization expired on lookup",
			logging.UserHash(pa.userID),
		)
		return "", ErrTokenExpired
	}

	return pa.userID, nil
}

// Resolve marks a pending authorization as completed and evicts it,
// making the correlation token single-use: any later entry-endpoint
// request with the same token gets ErrTokenNotFound.
func (r *Registry) Resolve(token string) {
	r.mu.Lock()
	pa, ok := r.pending[token]
	delete(r.pending, token)
	r.mu.Unlock()

	if ok {
		r.logger.Info("pending authorization resolved",
			logging.UserHash(pa.userID),
		)
	}
}

// Discard evicts a pending authorization after a failed flow so that a
// retry mints a fresh token rather than reusing a dead one.
func (r *Registry) Discard(token string) {
	r.mu.Lock()
	_, ok := r.pending[token]
	delete(r.pending, token)
	r.mu.Unlock()

	if ok {
		r.logger.Info("pending authorization discarded")
	}
}

// PendingCount returns the number of live pending authorizations.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stop terminates the background sweep goroutine.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.sweepDone)
	})
}

// sweep periodically removes expired pending authorizations.
func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepExpired()
		case <-r.sweepDone:
			return
		}
	}
}

func (r *Registry) sweepExpired() {
	r.mu.Lock()
	now := r.now()
	expired := 0
	for token, pa := range r.pending {
		if now.Sub(pa.createdAt) >= r.ttl {
			delete(r.pending, token)
			expired++
		}
	}
	r.mu.Unlock()

	if expired > 0 {
		r.logger.Debug("swept expired pending authorizations", "count", expired)
	}
}

// generateSecureToken generates a cryptographically secure random token.
func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
