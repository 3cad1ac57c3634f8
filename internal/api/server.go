// Package api provides the HTTP REST API and WebSocket endpoint for
// folioline. It exposes portfolio CRUD, authentication, and the realtime
// session surface that the registry and dispatcher sit behind.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ashmarby/folioline-core/internal/bridge"
	"github.com/ashmarby/folioline-core/internal/identity"
	"github.com/ashmarby/folioline-core/internal/infrastructure/config"
	"github.com/ashmarby/folioline-core/internal/infrastructure/logging"
	"github.com/ashmarby/folioline-core/internal/portfolio"
	"github.com/ashmarby/folioline-core/internal/realtime"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Auth       *identity.Authenticator
	Users      identity.Repository
	Portfolios portfolio.Repository
	Registry   *realtime.Registry
	Notifier   *bridge.Notifier
	Version    string
}

// Server is the HTTP API server for folioline.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	auth       *identity.Authenticator
	users      identity.Repository
	portfolios portfolio.Repository
	registry   *realtime.Registry
	notifier   *bridge.Notifier
	version    string
	server     *http.Server
}

// New creates a new API server with the given dependencies. The server
// is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Portfolios == nil {
		return nil, fmt.Errorf("portfolio repository is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		auth:       deps.Auth,
		users:      deps.Users,
		portfolios: deps.Portfolios,
		registry:   deps.Registry,
		notifier:   deps.Notifier,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server: in-flight requests get up
// to 10 seconds, then every live websocket connection is deregistered.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}

	s.registry.CloseAll()
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
