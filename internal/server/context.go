package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/wellaios/calendar-mcp/internal/authflow"
	"github.com/wellaios/calendar-mcp/internal/calendar"
	"github.com/wellaios/calendar-mcp/internal/config"
	"github.com/wellaios/calendar-mcp/internal/credstore"
	"github.com/wellaios/calendar-mcp/internal/instrumentation"
)

// DefaultUserID is the fallback identity used when a request carries no
// X-User-ID header, e.g. when testing with a generic MCP inspector
// outside a multi-user agent runtime. All such requests share one
// credential slot; this is a known simplification, not a security
// boundary, and multi-user deployments must always send the header.
const DefaultUserID = "single_user"

// UserIDHeader is the header the agent runtime uses to identify which
// end user a tool call is made for.
const UserIDHeader = "X-User-ID"

type contextKey string

const userIDContextKey contextKey = "userID"

// HTTPContextFunc injects the caller's user identity from the request
// headers into the tool handler context. Wire it into the streamable
// HTTP server with mcpserver.WithHTTPContextFunc.
func HTTPContextFunc(ctx context.Context, r *http.Request) context.Context {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		userID = DefaultUserID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the user identity for a tool call, falling
// back to DefaultUserID for contexts that never went through the HTTP
// layer.
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDContextKey).(string); ok && userID != "" {
		return userID
	}
	return DefaultUserID
}

// CalendarFactory builds a calendar client for an access token. Tests
// substitute a fake.
type CalendarFactory func(ctx context.Context, token *oauth2.Token) (CalendarAPI, error)

// CalendarAPI is the calendar surface the tools use.
type CalendarAPI interface {
	ListUpcomingEvents(ctx context.Context, calendarID string, maxResults int64) ([]calendar.EventSummary, error)
	CreateEvent(ctx context.Context, calendarID string, input calendar.EventInput) (*calendar.EventSummary, error)
}

// ServerContext bundles the dependencies tool handlers need: the
// credential store, the pending-authorization registry, and the calendar
// client factory.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg      *config.Config
	creds    *credstore.Store
	registry *authflow.Registry
	metrics  *instrumentation.Metrics
	logger   *slog.Logger

	calendarFactory CalendarFactory

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context.
func NewServerContext(ctx context.Context, cfg *config.Config, creds *credstore.Store, registry *authflow.Registry, metrics *instrumentation.Metrics, logger *slog.Logger) *ServerContext {
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		cfg:      cfg,
		creds:    creds,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		calendarFactory: func(ctx context.Context, token *oauth2.Token) (CalendarAPI, error) {
			return calendar.NewClient(ctx, token)
		},
	}
}

// Context returns the server's lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the immutable server configuration.
func (sc *ServerContext) Config() *config.Config {
	return sc.cfg
}

// Credentials returns the credential store.
func (sc *ServerContext) Credentials() *credstore.Store {
	return sc.creds
}

// Registry returns the pending-authorization registry.
func (sc *ServerContext) Registry() *authflow.Registry {
	return sc.registry
}

// Metrics returns the metrics recorder. May be a no-op recorder.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Logger returns the base logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// CalendarClient builds a calendar client authenticated with token.
func (sc *ServerContext) CalendarClient(ctx context.Context, token *oauth2.Token) (CalendarAPI, error) {
	sc.mu.RLock()
	factory := sc.calendarFactory
	sc.mu.RUnlock()
	return factory(ctx, token)
}

// SetCalendarFactory replaces the calendar client factory. Used in tests.
func (sc *ServerContext) SetCalendarFactory(factory CalendarFactory) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.calendarFactory = factory
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and stops the registry sweep.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return
	}
	sc.shutdown = true
	sc.mu.Unlock()

	if sc.registry != nil {
		sc.registry.Stop()
	}
	sc.cancel()
}
