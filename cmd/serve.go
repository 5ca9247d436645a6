package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/wellaios/calendar-mcp/internal/authflow"
	"github.com/wellaios/calendar-mcp/internal/config"
	"github.com/wellaios/calendar-mcp/internal/credstore"
	"github.com/wellaios/calendar-mcp/internal/google"
	"github.com/wellaios/calendar-mcp/internal/instrumentation"
	"github.com/wellaios/calendar-mcp/internal/logging"
	"github.com/wellaios/calendar-mcp/internal/server"
	"github.com/wellaios/calendar-mcp/internal/tools/calendar_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode bool
		httpAddr  string
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing Google Calendar
tools over the streamable HTTP transport.

Configuration is taken from environment variables:

  SERVER_DOMAIN         Public base URL of this server, e.g. https://mcp.example.com
                        (the Google OAuth redirect URI is derived from it)
  GOOGLE_CLIENT_ID      Google OAuth client ID
  GOOGLE_CLIENT_SECRET  Google OAuth client secret
  AUTH_TOKEN            Static bearer token the agent runtime authenticates with
  STATE_SIGNING_SECRET  Secret for signing the OAuth state parameter
                        (defaults to the client secret)
  CREDENTIAL_DB_PATH    SQLite file for per-user credentials (default: tokens.db)
  PENDING_AUTH_TTL      How long an authorization link stays valid (default: 10m)

The /mcp endpoint requires "Authorization: Bearer $AUTH_TOKEN". The
/auth endpoints are driven by the user's browser and are protected by
single-use correlation tokens instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(httpAddr, debugMode, MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			})
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":30000", "Address for the HTTP server")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the Prometheus metrics server")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Address for the metrics server")

	return cmd
}

func runServe(httpAddr string, debugMode bool, metricsConfig MetricsConfig) error {
	logging.Setup(debugMode)
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Instrumentation
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	var metricsServer *server.MetricsServer
	if metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	// Authorization flow and credential storage
	oauthConfig := google.NewOAuthConfig(&cfg)

	creds, err := credstore.NewStore(cfg.CredentialDBPath, oauthConfig, provider.Metrics(), logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer creds.Close()

	registry := authflow.NewRegistry(cfg.PendingAuthTTL, logger)
	states := authflow.NewStateCodec(cfg.StateSigningSecret, cfg.PendingAuthTTL)
	flowHandler := authflow.NewHandler(oauthConfig, registry, creds, states, provider.Metrics(), logger)

	serverContext := server.NewServerContext(shutdownCtx, &cfg, creds, registry, provider.Metrics(), logger)
	defer serverContext.Shutdown()

	// MCP server and tools
	mcpSrv := mcpserver.NewMCPServer("calendar-mcp", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}

	httpServer := server.NewHTTPServer(httpAddr, mcpSrv, serverContext, flowHandler)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	logger.Info("calendar-mcp serving",
		"addr", httpAddr,
		"base_url", cfg.BaseURL,
		"pending_auth_ttl", cfg.PendingAuthTTL.String(),
	)

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	return <-serverDone
}
