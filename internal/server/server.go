// Package server wires the entity resolution engine's HTTP surface.
package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/metaspn/entityresolver/internal/api"
	"github.com/metaspn/entityresolver/internal/config"
	"github.com/metaspn/entityresolver/internal/hermes"
	"github.com/metaspn/entityresolver/internal/middleware"
	"github.com/metaspn/entityresolver/internal/resolver"
	"github.com/metaspn/entityresolver/internal/store"

	"log/slog"
)

// Server holds all dependencies for the engine's HTTP server.
type Server struct {
	Router    *chi.Mux
	Config    *config.Config
	Store     store.Store
	Hermes    *hermes.Client
	Publisher *hermes.Publisher
	Logger    *slog.Logger
}

// New creates a new Server with all routes configured.
func New(cfg *config.Config, s store.Store, hermesClient *hermes.Client, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.CallerAuth(cfg.JWTSecret))

	// Publisher (nil if NATS not available — resolver handlers tolerate that)
	var publisher *hermes.Publisher
	if hermesClient != nil {
		publisher = hermes.NewPublisher(hermesClient, logger, cfg.HermesSubject)
	}

	// Resolver: the single-writer entry point, shared across requests.
	res := resolver.New(s)

	// Handlers
	healthHandler := api.NewHealthHandler(s, hermesClient)
	resolveHandler := api.NewResolveHandler(res, publisher)
	contextHandler := api.NewContextHandler(s)
	lineageHandler := api.NewLineageHandler(s)
	attributionHandler := api.NewAttributionHandler(s)
	snapshotHandler := api.NewSnapshotHandler(s)

	// Rate limiters
	resolveRL := middleware.NewRateLimiter(cfg.ResolveRateLimit, cfg.RateWindow)
	adminRL := middleware.NewRateLimiter(cfg.AdminRateLimit, cfg.RateWindow)

	r.Route("/api/v1", func(r chi.Router) {
		// Health (no rate limit)
		r.Get("/health", healthHandler.Health)

		// Resolution
		r.Route("/resolve", func(r chi.Router) {
			r.Use(resolveRL.Middleware)
			r.Post("/", resolveHandler.Resolve)
		})

		r.Route("/merges", func(r chi.Router) {
			r.Use(resolveRL.Middleware)
			r.Get("/", lineageHandler.MergeHistory)
			r.Post("/", resolveHandler.Merge)
			r.Post("/undo", resolveHandler.UndoMerge)
		})

		r.Route("/entities/{id}", func(r chi.Router) {
			r.Use(resolveRL.Middleware)
			r.Post("/aliases", resolveHandler.AddAlias)
			r.Get("/confidence", contextHandler.ConfidenceSummary)
			r.Get("/context", contextHandler.EntityContext)
			r.Get("/recommendation", contextHandler.RecommendationContext)
			r.Get("/lineage", lineageHandler.Lineage)
		})

		r.Route("/attribution", func(r chi.Router) {
			r.Use(resolveRL.Middleware)
			r.Post("/", attributionHandler.Attribute)
		})

		r.Route("/snapshot", func(r chi.Router) {
			r.Use(adminRL.Middleware)
			r.Post("/", snapshotHandler.Export)
		})
	})

	return &Server{
		Router:    r,
		Config:    cfg,
		Store:     s,
		Hermes:    hermesClient,
		Publisher: publisher,
		Logger:    logger,
	}
}
