// Package api exposes the asset pool and the decision pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"ValueSentinel/internal/action"
	"ValueSentinel/internal/annotator"
	"ValueSentinel/internal/pool"
	"ValueSentinel/internal/risk"
	"ValueSentinel/internal/signal"
	"ValueSentinel/internal/valuation"
)

// Services are the domain components the handlers call.
type Services struct {
	Pool       *pool.Service
	Valuations *valuation.Service
	Signals    *signal.Engine
	Risk       *risk.Checker
	Actions    *action.Service
	Annotator  *annotator.Service // optional
}

// Config holds server configuration.
type Config struct {
	Addr          string
	CORSOrigins   []string
	DefaultUserID int64 // used when a request carries no X-User-ID header
	Log           zerolog.Logger
	Services      Services
}

// Server represents the HTTP server.
type Server struct {
	router        *chi.Mux
	server        *http.Server
	log           zerolog.Logger
	svc           Services
	defaultUserID int64
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		log:           cfg.Log.With().Str("component", "server").Logger(),
		svc:           cfg.Services,
		defaultUserID: cfg.DefaultUserID,
	}
	if s.defaultUserID == 0 {
		s.defaultUserID = 1
	}

	s.setupMiddleware(cfg.CORSOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", userHeader},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.userMiddleware)

			r.Route("/assets", func(r chi.Router) {
				r.Get("/", s.handleListAssets)
				r.Post("/", s.handleAddAsset)
				r.Route("/{code}", func(r chi.Router) {
					r.Get("/", s.handleGetAsset)
					r.Put("/", s.handleUpdateAsset)
					r.Delete("/", s.handleRemoveAsset)
					r.Get("/threshold", s.handleGetThreshold)
					r.Put("/threshold", s.handleSetThreshold)
					r.Get("/valuations", s.handleListValuations)
					r.Post("/valuations", s.handleAddValuation)
					r.Get("/stats", s.handleStats)
					r.Get("/recommend", s.handleRecommend)
					r.Post("/evaluate", s.handleEvaluate)
					r.Post("/annotate", s.handleAnnotate)
				})
			})

			r.Route("/industries", func(r chi.Router) {
				r.Get("/", s.handleListIndustries)
				r.Put("/{industry}", s.handleSaveIndustry)
				r.Delete("/{industry}", s.handleDeleteIndustry)
				r.Get("/{industry}/threshold", s.handleIndustryThreshold)
				r.Post("/{industry}/apply", s.handleApplyIndustry)
			})

			r.Route("/signals", func(r chi.Router) {
				r.Get("/", s.handleListSignals)
				r.Post("/scan", s.handleScan)
				r.Get("/{id}", s.handleGetSignal)
				r.Post("/{id}/ignore", s.handleIgnoreSignal)
			})

			r.Route("/actions", func(r chi.Router) {
				r.Get("/", s.handleListActions)
				r.Post("/", s.handleExecute)
				r.Get("/recent", s.handleRecentActions)
				r.Get("/compliance", s.handleCompliance)
			})

			r.Post("/risk/check", s.handleRiskCheck)

			r.Route("/positions", func(r chi.Router) {
				r.Get("/summary", s.handlePositionSummary)
				r.Get("/available", s.handleAvailable)
				r.Put("/{code}", s.handleOverridePosition)
			})

			r.Get("/portfolio", s.handleGetPortfolio)
			r.Put("/portfolio", s.handleSetPortfolio)
		})
	})
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

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
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
