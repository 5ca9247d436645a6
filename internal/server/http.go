package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/wellaios/calendar-mcp/internal/authflow"
	"github.com/wellaios/calendar-mcp/internal/logging"
)

const (
	// MCPEndpointPath is where the streamable HTTP MCP transport is
	// mounted.
	MCPEndpointPath = "/mcp"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// HTTPServer serves the MCP transport and the authorization flow
// endpoints on one port.
type HTTPServer struct {
	httpServer *http.Server
	health     *HealthChecker
	logger     *slog.Logger
}

// NewHTTPServer wires the streamable MCP transport, the authorization
// flow handler, and the health endpoints into a single server guarded by
// the bearer middleware.
func NewHTTPServer(addr string, mcpSrv *mcpserver.MCPServer, sc *ServerContext, flowHandler *authflow.Handler) *HTTPServer {
	logger := logging.WithComponent(sc.Logger(), "http")

	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(MCPEndpointPath),
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(HTTPContextFunc),
	)

	health := NewHealthChecker(sc)

	mux := http.NewServeMux()
	mux.Handle(MCPEndpointPath, streamable)
	flowHandler.Register(mux)
	health.RegisterHealthEndpoints(mux)

	var handler http.Handler = mux
	handler = BearerAuthMiddleware(sc.Config().BearerToken, handler)
	handler = MetricsMiddleware(sc.Metrics(), handler)

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			IdleTimeout:       defaultIdleTimeout,
		},
		health: health,
		logger: logger,
	}
}

// Health returns the health checker so the caller can flip readiness.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Start serves until the listener fails or Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
