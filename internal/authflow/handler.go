package authflow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/wellaios/calendar-mcp/internal/instrumentation"
	"github.com/wellaios/calendar-mcp/internal/logging"
)

// CredentialStore is the subset of the credential store the callback
// needs: durably associating an exchanged provider token with a user.
type CredentialStore interface {
	Put(ctx context.Context, userID string, token *oauth2.Token) error
}

// Handler serves the browser-facing half of the deferred authorization
// flow: the entry endpoint that turns a correlation token into a provider
// consent redirect, and the provider callback that exchanges the code and
// resolves the pending authorization.
type Handler struct {
	oauthConfig *oauth2.Config
	registry    *Registry
	creds       CredentialStore
	states      *StateCodec
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// NewHandler creates an authorization flow handler.
func NewHandler(oauthConfig *oauth2.Config, registry *Registry, creds CredentialStore, states *StateCodec, metrics *instrumentation.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		oauthConfig: oauthConfig,
		registry:    registry,
		creds:       creds,
		states:      states,
		metrics:     metrics,
		logger:      logging.WithComponent(logger, "authflow.handler"),
	}
}

// Register mounts the flow endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/auth", h.ServeAuthEntry)
	mux.HandleFunc("/auth/google/callback", h.ServeGoogleCallback)
}

// ServeAuthEntry handles GET /auth?userid=<id>&token=<correlation token>.
// It validates the correlation token against the registry and redirects
// the browser to the provider's consent page with a signed state.
func (h *Handler) ServeAuthEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("userid")
	token := r.URL.Query().Get("token")

	if userID == "" || token == "" {
		h.logger.Warn("auth entry missing parameters",
			logging.Operation("auth_entry"),
			"has_userid", userID != "",
			"has_token", token != "",
		)
		renderErrorPage(w, http.StatusBadRequest, "Missing Parameters",
			"Both userid and token query parameters are required.")
		return
	}

	pendingUserID, err := h.registry.Lookup(token)
	switch {
	case errors.Is(err, ErrTokenExpired):
		h.metrics.RecordAuthFlow(r.Context(), instrumentation.AuthFlowExpired)
		h.metrics.PendingAuthorizationClosed(r.Context())
		h.logger.Info("auth entry with expired correlation token",
			logging.Operation("auth_entry"),
			logging.UserHash(userID),
		)
		renderErrorPage(w, http.StatusGone, "Link Expired",
			"This authorization link has expired. Retry the calendar operation to receive a fresh link.")
		return
	case errors.Is(err, ErrTokenNotFound):
		h.metrics.RecordAuthFlow(r.Context(), instrumentation.AuthFlowFailed)
		h.logger.Warn("auth entry with unknown correlation token",
			logging.Operation("auth_entry"),
			logging.UserHash(userID),
			"token_preview", logging.SanitizeToken(token),
		)
		renderErrorPage(w, http.StatusUnauthorized, "Invalid Link",
			"This authorization link is invalid or has already been used. Retry the calendar operation to receive a fresh link.")
		return
	case err != nil:
		h.logger.Error("auth entry lookup failed",
			logging.Operation("auth_entry"),
			logging.Err(err),
		)
		renderErrorPage(w, http.StatusInternalServerError, "Authorization Failed",
			"An internal error occurred. Please try again.")
		return
	}

	// The identity in the URL must match the identity the tool call was
	// made for; otherwise a leaked link could bind credentials to the
	// wrong user.
	if pendingUserID != userID {
		h.metrics.RecordAuthFlow(r.Context(), instrumentation.AuthFlowFailed)
		h.logger.Warn("auth entry user mismatch",
			logging.Operation("auth_entry"),
			logging.UserHash(userID),
		)
		renderErrorPage(w, http.StatusUnauthorized, "Invalid Link",
			"This authorization link does not belong to this user.")
		return
	}

	state, err := h.states.Encode(userID, token)
	if err != nil {
		h.logger.Error("failed to encode oauth state",
			logging.Operation("auth_entry"),
			logging.Err(err),
		)
		renderErrorPage(w, http.StatusInternalServerError, "Authorization Failed",
			"An internal error occurred. Please try again.")
		return
	}

	authURL := h.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	h.metrics.RecordAuthFlow(r.Context(), instrumentation.AuthFlowRedirected)
	h.logger.Info("redirecting to provider consent",
		logging.Operation("auth_entry"),
		logging.UserHash(userID),
	)

	http.Redirect(w, r, authURL, http.StatusFound)
}

// ServeGoogleCallback handles GET /auth/google/callback?code=&state=.
// It verifies the signed state, re-checks the pending authorization,
// exchanges the code, stores the credential, and resolves the
// correlation token.
func (h *Handler) ServeGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	query := r.URL.Query()

	state := query.Get("state")
	if state == "" {
		renderErrorPage(w, http.StatusBadRequest, "Invalid Callback",
			"Missing state parameter.")
		return
	}

	userID, correlationToken, err := h.states.Decode(state)
	if err != nil {
		h.metrics.RecordAuthFlow(ctx, instrumentation.AuthFlowFailed)
		h.logger.Warn("callback with invalid state",
			logging.Operation("auth_callback"),
			logging.Err(err),
		)
		status := http.StatusUnauthorized
		if errors.Is(err, ErrStateExpired) {
			status = http.StatusGone
		}
		renderErrorPage(w, status, "Authorization Failed",
			"The authorization response could not be verified. Retry the calendar operation to start over.")
		return
	}

	log := h.logger.With(logging.UserHash(userID))

	// Consent denial arrives as error=access_denied with no code.
	if errMsg := query.Get("error"); errMsg != "" {
		h.registry.Discard(correlationToken)
		h.metrics.RecordAuthFlow(ctx, instrumentation.AuthFlowFailed)
		h.metrics.PendingAuthorizationClosed(ctx)
		log.Info("provider consent denied",
			logging.Operation("auth_callback"),
			"provider_error", errMsg,
		)
		renderErrorPage(w, http.StatusForbidden, "Consent Denied",
			"Google access was not granted. Retry the calendar operation if this was a mistake.")
		return
	}

	code := query.Get("code")
	if code == "" {
		renderErrorPage(w, http.StatusBadRequest, "Invalid Callback",
			"Missing authorization code.")
		return
	}

	// Re-check the registry so a replayed callback cannot resolve an
	// already-consumed or expired correlation token.
	pendingUserID, err := h.registry.Lookup(correlationToken)
	if err != nil {
		h.metrics.RecordAuthFlow(ctx, instrumentation.AuthFlowFailed)
		log.Warn("callback for dead correlation token",
			logging.Operation("auth_callback"),
			logging.Err(err),
		)
		renderErrorPage(w, http.StatusGone, "Authorization Expired",
			"This authorization is no longer pending. Retry the calendar operation to receive a fresh link.")
		return
	}
	if pendingUserID != userID {
		h.registry.Discard(correlationToken)
		h.metrics.RecordAuthFlow(ctx, instrumentation.AuthFlowFailed)
		h.metrics.PendingAuthorizationClosed(ctx)
		log.Warn("callback user mismatch",
			logging.Operation("auth_callback"),
		)
		renderErrorPage(w, http.StatusUnauthorized, "Authorization Failed",
			"The authorization response does not match the pending request.")
		return
	}

	token, err := h.oauthConfig.Exchange(ctx, code)
	if err != nil {
		h.registry.Discard(correlationToken)
		h.metrics.RecordAuthFlow(ctx, instrumentation.AuthFlowFailed)
		h.metrics.PendingAuthorizationClosed(ctx)
		log.Error("code exchange failed",
			logging.Operation("auth_callback"),
			logging.Err(err),
		)
		renderErrorPage(w, http.StatusBadGateway, "Authorization Failed",
			"Exchanging the authorization code with Google failed. Retry the calendar operation to start over.")
		return
	}

	if err := h.creds.Put(ctx, userID, token); err != nil {
		h.registry.Discard(correlationToken)
		h.metrics.RecordAuthFlow(ctx, instrumentation.AuthFlowFailed)
		h.metrics.PendingAuthorizationClosed(ctx)
		log.Error("failed to store credential",
			logging.Operation("auth_callback"),
			logging.Err(err),
		)
		renderErrorPage(w, http.StatusInternalServerError, "Authorization Failed",
			"Storing the credential failed. Retry the calendar operation to start over.")
		return
	}

	h.registry.Resolve(correlationToken)
	h.metrics.RecordAuthFlow(ctx, instrumentation.AuthFlowResolved)
	h.metrics.PendingAuthorizationClosed(ctx)

	log.Info("authorization completed",
		logging.Operation("auth_callback"),
		logging.Status(logging.StatusSuccess),
	)

	renderSuccessPage(w)
}
