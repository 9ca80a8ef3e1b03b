// Package server provides the HTTP server and routing for QuantRank.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantrank/quantrank/internal/database"
	"github.com/quantrank/quantrank/internal/modules/market"
	"github.com/quantrank/quantrank/internal/modules/pending"
	"github.com/quantrank/quantrank/internal/modules/pipeline"
	"github.com/quantrank/quantrank/internal/modules/scoring"
	"github.com/quantrank/quantrank/internal/modules/universe"
	"github.com/quantrank/quantrank/internal/poller"
)

// Config holds server configuration
type Config struct {
	Log             zerolog.Logger
	DB              *database.DB
	Port            int
	DevMode         bool
	DataDir         string
	MetaRepo        *universe.MetadataRepository
	PriceRepo       *universe.PriceRepository
	ScoreRepo       *scoring.ScoreRepository
	Ledger          *pending.LedgerRepository
	Tracker         *pending.TrackerRepository
	Scorer          *scoring.Service
	Executor        *pipeline.Executor
	Calendar        *market.Calendar
	PricePoller     *poller.PricePoller
	AttributePoller *poller.AttributePoller
}

// Server is the HTTP server
type Server struct {
	router          *chi.Mux
	server          *http.Server
	log             zerolog.Logger
	db              *database.DB
	dataDir         string
	startupTime     time.Time
	metaRepo        *universe.MetadataRepository
	priceRepo       *universe.PriceRepository
	scoreRepo       *scoring.ScoreRepository
	ledger          *pending.LedgerRepository
	tracker         *pending.TrackerRepository
	scorer          *scoring.Service
	executor        *pipeline.Executor
	calendar        *market.Calendar
	pricePoller     *poller.PricePoller
	attributePoller *poller.AttributePoller
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		log:             cfg.Log.With().Str("component", "server").Logger(),
		db:              cfg.DB,
		dataDir:         cfg.DataDir,
		startupTime:     time.Now(),
		metaRepo:        cfg.MetaRepo,
		priceRepo:       cfg.PriceRepo,
		scoreRepo:       cfg.ScoreRepo,
		ledger:          cfg.Ledger,
		tracker:         cfg.Tracker,
		scorer:          cfg.Scorer,
		executor:        cfg.Executor,
		calendar:        cfg.Calendar,
		pricePoller:     cfg.PricePoller,
		attributePoller: cfg.AttributePoller,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stocks", s.handleListStocks)
		r.Get("/stocks/{symbol}", s.handleGetStock)
		r.Get("/stocks/{symbol}/prices", s.handleGetPrices)

		r.Get("/strategies", s.handleListStrategies)
		r.Get("/strategies/{strategy}/scores", s.handleStrategyScores)
		r.Get("/sectors/momentum", s.handleSectorMomentum)

		r.Post("/pipelines/run", s.handleRunPipeline)

		r.Get("/market/status", s.handleMarketStatus)

		r.Route("/momentum/weights", func(r chi.Router) {
			r.Get("/", s.handleGetWeights)
			r.Put("/", s.handleUpdateWeights)
			r.Delete("/", s.handleResetWeights)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/update/prices", s.handleTriggerPriceUpdate)
			r.Post("/update/attributes", s.handleTriggerAttributeUpdate)
			r.Post("/pending/reset", s.handleResetPending)
		})

		r.Get("/system/status", s.handleSystemStatus)
		r.Get("/ws/status", s.handleStatusWS)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "quantrank",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
