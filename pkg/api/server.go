package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seatsync/seatsync/pkg/config"
	"github.com/seatsync/seatsync/pkg/httputil"
	"github.com/seatsync/seatsync/pkg/members"
	"github.com/seatsync/seatsync/pkg/middleware"
	"github.com/seatsync/seatsync/pkg/observability"
)

// Server is the HTTP front end
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *observability.Logger
}

// ServerDeps are the collaborators the server wires together
type ServerDeps struct {
	Members   *members.Service
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware // nil when Redis is not configured
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
	Logger    *observability.Logger
}

// NewServer builds the router and middleware chain
func NewServer(cfg config.ServerConfig, deps ServerDeps) *Server {
	router := mux.NewRouter()

	// Outermost first: request id, logging, metrics, panic recovery
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		router.Use(httputil.MetricsMiddleware(deps.Metrics))
	}
	router.Use(httputil.RecoveryMiddleware(deps.Logger))
	if deps.RateLimit != nil {
		router.Use(deps.RateLimit.Handler)
	}

	// Unauthenticated surface
	router.HandleFunc("/healthz", deps.Health.Liveness).Methods("GET")
	router.HandleFunc("/readyz", deps.Health.Readiness).Methods("GET")
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}

	memberHandlers := NewMemberHandlers(deps.Members)
	memberHandlers.RegisterPublicRoutes(router)

	// Everything else requires a bearer token
	protected := router.PathPrefix("/api/v1").Subrouter()
	protected.Use(deps.Auth.Handler)
	memberHandlers.RegisterRoutes(protected)

	server := &Server{
		router: router,
		logger: deps.Logger,
	}
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return server
}

// Router exposes the handler tree, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins serving and blocks until the listener closes
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
