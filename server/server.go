// Package server provides HTTP server management and lifecycle handling for
// the pharmacy locator: middleware, routes and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/cosmomed/pharmacy-locator/access"
	"github.com/cosmomed/pharmacy-locator/config"
	"github.com/cosmomed/pharmacy-locator/handlers"
	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/locator"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const rateLimiterSweepInterval = 5 * time.Minute

// Deps are the components the routes serve.
type Deps struct {
	Directory interfaces.DirectoryStore
	Catalog   interfaces.CatalogStore
	Sessions  *locator.Registry
	Health    interfaces.HealthChecker
	Validator interfaces.InputValidator
	Verifier  *access.TokenVerifier
}

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	router      chi.Router
	config      *config.Config
	deps        Deps
	rateLimiter *RateLimiter
	stop        chan struct{}
	profiler    *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.ListenAddr(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second, // routes wait on the directions provider
			IdleTimeout:  60 * time.Second,
		},
		router:      router,
		config:      cfg,
		deps:        deps,
		rateLimiter: NewRateLimiter(),
		stop:        make(chan struct{}),
	}
	if s.deps.Verifier == nil {
		s.deps.Verifier = access.NewTokenVerifier("")
	}
	if cfg.Env == config.EnvDevelopment {
		s.profiler = newProfilingServer()
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.Logger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.rateLimiter.RateLimitHandler)
	s.router.Use(metrics.Metrics)
	s.router.Use(AuthMiddleware(s.deps.Verifier))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	directory := handlers.NewDirectoryHandler(s.deps.Directory, s.deps.Validator)
	sessions := handlers.NewSessionHandler(s.deps.Sessions, s.deps.Validator, s.deps.Catalog)

	s.router.Get("/health", handlers.HealthCheck(s.deps.Health))
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/pharmacies", directory.ListPharmacies)

	s.router.Route("/v1/sessions", func(r chi.Router) {
		r.Use(RequireCapability(access.ViewMap))
		r.Post("/", sessions.CreateSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", sessions.GetSession)
			r.Delete("/", sessions.DeleteSession)
			r.Put("/location", sessions.SetLocation)
			r.Post("/map/ready", sessions.MapReady)
			r.Get("/map", sessions.GetMap)
			r.Put("/map/zoom", sessions.SetZoom)
			r.Post("/markers/{markerID}/click", sessions.ClickMarker)
			r.Delete("/selection", sessions.Deselect)
			r.Get("/stats", sessions.Stats)

			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(access.UseFilters))
				r.Put("/filter", sessions.SetFilter)
				r.Post("/fetch", sessions.Fetch)
				r.Post("/nearby", sessions.FindNearby)
				r.Post("/reset", sessions.Reset)
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(access.RequestDirections))
				r.Post("/route", sessions.RequestRoute)
				r.Get("/navigation", sessions.Navigation)
			})
		})
	})
}

// Start starts the server and blocks until it stops. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	if s.profiler != nil {
		go s.serveProfiling()
	}
	s.rateLimiter.cleanup(rateLimiterSweepInterval, s.stop)

	logging.Info("Starting server", "address", s.server.Addr, "env", s.config.Env.String())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	select {
	case <-s.stop:
	default:
		close(s.stop)
	}

	if s.profiler != nil {
		_ = s.profiler.Close()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

func newProfilingServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return &http.Server{Addr: "localhost:6060", Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// serveProfiling runs the pprof server in development mode
func (s *Server) serveProfiling() {
	logging.Info("Profiling server started", "url", "http://localhost:6060/debug/pprof/")
	if err := s.profiler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Warn("Profiling server failed", "error", err)
	}
}
