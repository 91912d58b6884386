// Package api serves the stored disclosures and trader summaries over read-only HTTP endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"toplist-tracker-go/internal/models"
	"toplist-tracker-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const (
	defaultDetailsTTL = 5 * time.Minute
	overviewTTL       = time.Hour
)

// Queries are the read operations the API serves.
type Queries interface {
	ListSecurities(ctx context.Context) ([]models.Security, error)
	ListDisclosures(ctx context.Context, filter store.DisclosureFilter) ([]models.Disclosure, error)
	ListDisclosureLines(ctx context.Context, disclosureID uint) ([]models.DisclosureLine, error)
	ListTraderSummaries(ctx context.Context, filter store.TraderFilter) ([]models.TraderSummary, error)
	TraderHistory(ctx context.Context, traderName string, since time.Time) ([]store.TraderHistoryEntry, error)
	MarketOverview(ctx context.Context, date time.Time) (*store.MarketOverview, error)
}

// Server is the query API HTTP server.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	logger     *zap.Logger
	queries    Queries
	cache      Cache
	detailsTTL time.Duration
	now        func() time.Time
}

// NewServer creates a Server listening on port. Disclosure details are cached for detailsTTL,
// or five minutes when it is not positive.
func NewServer(port int, logger *zap.Logger, queries Queries, cache Cache, detailsTTL time.Duration) *Server {
	if detailsTTL <= 0 {
		detailsTTL = defaultDetailsTTL
	}
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger.Named("api-server"),
		queries:    queries,
		cache:      cache,
		detailsTTL: detailsTTL,
		now:        time.Now,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stocks", s.handleStocks)
		r.Route("/toplist", func(r chi.Router) {
			r.Get("/", s.handleTopList)
			r.Get("/{id}/details", s.handleTopListDetails)
		})
		r.Route("/traders", func(r chi.Router) {
			r.Get("/", s.handleTraders)
			r.Get("/{name}/history", s.handleTraderHistory)
		})
		r.Get("/overview", s.handleOverview)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
