// Package server is the Admin API: the external-interface surface described
// in §6, an in-process HTTP RPC layer over the proxy registry, the mock
// library, and per-proxy request history. It never proxies application
// traffic itself — that is the transports' job (normal, outgoing, db) — it
// only manages them.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"wiretap/pkg/config"
	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/persistence"
	"wiretap/pkg/proxy/middleware"
	"wiretap/pkg/registry"
	"wiretap/pkg/telemetry/health"
	"wiretap/pkg/telemetry/metrics"
)

const component = "admin-api"

// Server is the Admin API HTTP server.
type Server struct {
	cfg       config.ServerConfig
	licensing config.LicensingConfig

	registry *registry.Registry
	mocks    *mockstore.Store
	store    *persistence.Store
	bus      *eventbus.Bus
	health   *health.Checker
	metrics  *metrics.Metrics

	httpServer   *http.Server
	shutdownOnce sync.Once
	shutdownChan chan struct{}
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates the Admin API server over its collaborators. reg, mocks,
// store, bus, and healthChecker are shared with the rest of the process; m
// may be nil if metrics are disabled.
func NewServer(cfg config.ServerConfig, licensing config.LicensingConfig, reg *registry.Registry, mocks *mockstore.Store, store *persistence.Store, bus *eventbus.Bus, healthChecker *health.Checker, m *metrics.Metrics) *Server {
	return &Server{
		cfg:          cfg,
		licensing:    licensing,
		registry:     reg,
		mocks:        mocks,
		store:        store,
		bus:          bus,
		health:       healthChecker,
		metrics:      m,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled, Shutdown
// is called, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("admin server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.cfg.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting admin API server", "address", s.cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down admin API server")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server, bounded by cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				shutdownErr = fmt.Errorf("admin server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("admin API server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler, useful for tests that drive
// the mux directly with httptest.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health.LivenessHandler())
	mux.HandleFunc("GET /ready", s.health.ReadinessHandler())
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/proxies", s.handleListProxies)
	mux.HandleFunc("POST /api/proxies", s.handleCreateProxy)
	mux.HandleFunc("PUT /api/proxies/{kind}/{port}", s.handleUpdateProxy)
	mux.HandleFunc("DELETE /api/proxies/{kind}/{port}", s.handleDeleteProxy)
	mux.HandleFunc("POST /api/proxies/{kind}/{port}/start", s.handleStartProxy)
	mux.HandleFunc("POST /api/proxies/{kind}/{port}/stop", s.handleStopProxy)
	mux.HandleFunc("POST /api/proxies/{kind}/{port}/enable", s.handleEnableProxy)
	mux.HandleFunc("POST /api/proxies/{kind}/{port}/disable", s.handleDisableProxy)
	mux.HandleFunc("POST /api/proxies/{kind}/{port}/force_start", s.handleForceStartProxy)
	mux.HandleFunc("GET /api/proxies/{kind}/{port}/verify_status", s.handleVerifyStatus)
	mux.HandleFunc("POST /api/admin/restart_all", s.handleRestartAll)
	mux.HandleFunc("GET /api/admin/diagnose", s.handleDiagnose)

	mux.HandleFunc("GET /api/mocks", s.handleListMocks)
	mux.HandleFunc("POST /api/mocks", s.handleAddMock)
	mux.HandleFunc("PUT /api/mocks/{id}", s.handleUpdateMock)
	mux.HandleFunc("DELETE /api/mocks/{id}", s.handleRemoveMock)
	mux.HandleFunc("POST /api/mocks/{id}/toggle", s.handleToggleMock)
	mux.HandleFunc("GET /api/mocks/export", s.handleExportMocks)
	mux.HandleFunc("POST /api/mocks/import", s.handleImportMocks)

	mux.HandleFunc("GET /api/requests", s.handleListRequests)
	mux.HandleFunc("DELETE /api/requests", s.handleClearRequests)
	mux.HandleFunc("POST /api/requests/send_via", s.handleSendVia)

	mux.HandleFunc("POST /api/settings/testing_mode", s.handleTestingMode)
	mux.HandleFunc("GET /api/license", s.handleLicenseGate)

	mux.HandleFunc("GET /api/events", s.handleEvents)

	var handler http.Handler = mux
	handler = middleware.TimeoutMiddleware(s.cfg.WriteTimeout)(handler)
	handler = middleware.CORSMiddleware(s.convertCORSConfig())(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// convertCORSConfig maps the four admin-API CORS settings the configuration
// system exposes onto the middleware's fuller CORSConfig shape; exposed
// headers and credentialed requests are not settable from config.
func (s *Server) convertCORSConfig() *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:        s.cfg.CORS.Enabled,
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: s.cfg.CORS.AllowedMethods,
		AllowedHeaders: s.cfg.CORS.AllowedHeaders,
		MaxAge:         s.cfg.CORS.MaxAge,
	}
}
