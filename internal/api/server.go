// Package api serves the HTTP surface: the active-flights query, the live
// feed, alerts, health and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/unklstewy/fleetwatch/internal/db"
	"github.com/unklstewy/fleetwatch/internal/hub"
	"github.com/unklstewy/fleetwatch/internal/metrics"
	"github.com/unklstewy/fleetwatch/pkg/config"
	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// ActiveFlights is the pull query. *tracker.Engine implements it.
type ActiveFlights interface {
	ActiveFlights(ctx context.Context) ([]flight.TrackedFlight, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Flights ActiveFlights
	Store   db.Store
	Hub     *hub.Hub
	Config  config.ServerConfig
	Logger  zerolog.Logger

	// Now defaults to time.Now
	Now func() time.Time
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	router  *chi.Mux
	flights ActiveFlights
	store   db.Store
	hub     *hub.Hub
	cfg     config.ServerConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// NewServer creates a server with all routes registered.
func NewServer(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{
		router:  chi.NewRouter(),
		flights: d.Flights,
		store:   d.Store,
		hub:     d.Hub,
		cfg:     d.Config,
		logger:  d.Logger,
		now:     d.Now,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the handler in an http.Server configured from cfg.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	// The feed handler hijacks the connection, so it stays outside the
	// compressed group.
	r.Handle("/ws/flights", hub.NewWebSocketHandler(s.hub, s.checkOrigin, s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/flights/active", s.handleGetActiveFlights)
		r.Post("/flights", s.handleCreateFlight)
		r.Get("/flights/{id}", s.handleGetFlight)

		r.Get("/alerts", s.handleGetAlerts)
		r.Post("/alerts/{id}/resolve", s.handleResolveAlert)
	})
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// checkOrigin applies the CORS origin list to WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// requestLogger logs one line per request at debug level, or warn for
// server errors.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			ev := logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}
