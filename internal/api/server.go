// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ledger-scanner/internal/service"
)

// LedgerServiceInterface defines the interface for ledger operations,
// kept narrow so handlers can be tested against a stub.
type LedgerServiceInterface interface {
	ListLegs(ctx context.Context, params service.ListParams) (*service.LedgerPage, error)
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	ledgerService LedgerServiceInterface
	logger        *zap.Logger
	config        *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, ledgerService LedgerServiceInterface, logger *zap.Logger) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		ledgerService: ledgerService,
		logger:        logger,
		config:        config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(RequestIDMiddleware(s.logger))
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/ledger", s.handleListLedger).Methods("GET")
	api.HandleFunc("/ledger/summary", s.handleLedgerSummary).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ledger-scanner",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
