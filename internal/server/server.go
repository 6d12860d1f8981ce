package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/taskbot/internal/api/v1"
	"github.com/gosuda/taskbot/internal/config"
	"github.com/gosuda/taskbot/internal/server/middleware"
)

// Public transport endpoints are limited per client IP.
const (
	transportRPS   = 20
	transportBurst = 40
	adminRPS       = 10
	adminBurst     = 20
)

// Deps are the handlers and stores the HTTP surface is built from. Webhook and
// Slack may be nil when the transport is not configured.
type Deps struct {
	Webhook   http.HandlerFunc
	Slack     http.HandlerFunc
	Sessions  v1.SessionStore
	Directory v1.Directory
	Health    map[string]v1.Pinger
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired. ctx bounds the rate limiters'
// background cleanup.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// Health check (unauthenticated).
	router.Group(func(r chi.Router) {
		api := humachi.New(r, huma.DefaultConfig("Taskbot Health", "1.0.0"))
		v1.RegisterHealthRoutes(api, deps.Health)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))
		r.Use(middleware.RequireAdmin())
		r.Use(middleware.RateLimit(ctx, adminRPS, adminBurst))

		apiConfig := huma.DefaultConfig("Taskbot Admin API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, deps)
	})

	transportLimit := middleware.RateLimitByIP(ctx, transportRPS, transportBurst)

	router.Route("/webhook", func(r chi.Router) {
		r.Use(transportLimit)
		if deps.Webhook == nil {
			r.Post("/messages", notConfigured)
			return
		}
		if cfg.Webhook.Token == "" {
			log.Warn().Msg("TASKBOT_WEBHOOK_TOKEN is empty; /webhook/messages accepts unauthenticated requests")
		}
		r.Use(middleware.SharedToken(cfg.Webhook.Token))
		registerWebhookRoutes(r, deps.Webhook)
	})

	// Slack webhook routes: real handler if configured, 501 placeholder otherwise.
	router.Route("/slack", func(r chi.Router) {
		r.Use(transportLimit)
		if deps.Slack == nil {
			r.Post("/events", notConfigured)
			return
		}
		registerSlackRoutes(r, deps.Slack)
		log.Info().Msg("Slack integration enabled")
	})

	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func notConfigured(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}
