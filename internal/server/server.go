// Package server provides the HTTP server and routing for the fund service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/yieldfund/internal/config"
	"github.com/aristath/yieldfund/internal/di"
	accrualhandlers "github.com/aristath/yieldfund/internal/modules/accrual/handlers"
	consolidationhandlers "github.com/aristath/yieldfund/internal/modules/consolidation/handlers"
	positionhandlers "github.com/aristath/yieldfund/internal/modules/positions/handlers"
	withdrawalhandlers "github.com/aristath/yieldfund/internal/modules/withdrawals/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		container:      cfg.Container,
		systemHandlers: NewSystemHandlers(cfg.Container.DB, cfg.Log),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // a manual accrual cycle can take a while
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)
	s.router.Handle("/metrics", s.container.Metrics.Handler())

	accrualHandler := accrualhandlers.NewHandler(s.container.AccrualEngine, s.log)
	consolidationHandler := consolidationhandlers.NewHandler(s.container.ConsolidationService, s.log)
	positionHandler := positionhandlers.NewHandler(s.container.PositionService, s.log)
	withdrawalHandler := withdrawalhandlers.NewHandler(s.container.WithdrawalService, s.log)

	var submitMiddleware []func(http.Handler) http.Handler
	if s.cfg.RateLimitRPS > 0 {
		limiter := newIPRateLimiter(s.cfg.RateLimitRPS, max(1, int(s.cfg.RateLimitRPS)), s.log)
		submitMiddleware = append(submitMiddleware, limiter.Middleware)
	}

	if s.cfg.BatchSecret == "" {
		s.log.Warn().Msg("BATCH_SECRET is empty: batch and admin routes are unprotected (dev mode)")
	}
	protected := requireCredential(s.cfg.BatchSecret, s.log)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

		// Investor-facing. investor_id is taken from the path or body as given;
		// an identity-aware proxy in front must bind it to the caller.
		withdrawalHandler.RegisterRoutes(r, submitMiddleware...)
		positionHandler.RegisterRoutes(r)

		// Batch triggers and administration
		r.Group(func(r chi.Router) {
			r.Use(protected)

			accrualHandler.RegisterRoutes(r)
			consolidationHandler.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				withdrawalHandler.RegisterAdminRoutes(r)
				positionHandler.RegisterAdminRoutes(r)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests and records request metrics by route pattern
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.container.Metrics.ObserveHTTP(r.Method, route, strconv.Itoa(ww.Status()), duration)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
