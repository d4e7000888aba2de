// Package api provides the local HTTP API the Shelfmark apps talk to.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shelfmarkapp/shelfmark-sync/internal/http/response"
	"github.com/shelfmarkapp/shelfmark-sync/internal/service"
	"github.com/shelfmarkapp/shelfmark-sync/internal/sse"
)

// Services bundles everything the handlers need.
type Services struct {
	Library  *service.LibraryService
	Queue    *service.QueueService
	Sync     *service.SyncService
	Health   *service.HealthService
	Sessions *service.SessionHolder
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services   Services
	sseHandler *sse.Handler
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services Services, sseHandler *sse.Handler, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Account-Id"},
		MaxAge:         300,
	}))

	humaConfig := huma.DefaultConfig("Shelfmark Sync API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	humaAPI := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		services:   services,
		sseHandler: sseHandler,
		router:     router,
		api:        humaAPI,
		logger:     logger,
	}

	s.registerLibraryRoutes()
	s.registerSyncRoutes()

	// Liveness probe, outside the API surface.
	router.Get("/health", s.handleHealthCheck)

	// SSE endpoint registered directly on chi (not Huma) because Huma doesn't support SSE.
	router.Get("/api/v1/sync/stream", sseHandler.ServeHTTP)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealthCheck returns daemon liveness, not remote health.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]string{
		"status": "healthy",
	}, s.logger)
}

// sessionFrom builds the caller's session from request headers. The token is
// the Authorization bearer value with the scheme stripped.
func sessionFrom(authorization, accountID string) service.Session {
	token := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	return service.Session{
		AccountID: accountID,
		Token:     token,
	}
}
