// Package api wires the HTTP routes of the tracker.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/api/handlers"
	"github.com/kuhlman-labs/migration-tracker/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	Ping() error
}

type Server struct {
	handler  *handlers.Handler
	db       Pinger
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewServer creates the API server. A nil gatherer leaves /metrics unrouted.
func NewServer(svc handlers.SyncOperations, db Pinger, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler:  handlers.NewHandler(svc, logger),
		db:       db,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler exposes the route handlers, mainly to tune them in tests
func (s *Server) Handler() *handlers.Handler {
	return s.handler
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	h := s.handler

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Sync runs
	mux.HandleFunc("POST /api/v1/enterprises/{enterprise}/syncs", h.TriggerSync)
	mux.HandleFunc("GET /api/v1/enterprises/{enterprise}/syncs", h.ListSyncs)
	mux.HandleFunc("GET /api/v1/enterprises/{enterprise}/syncs/stream", h.StreamSyncs)
	mux.HandleFunc("GET /api/v1/enterprises/{enterprise}/progress/stream", h.StreamProgress)
	mux.HandleFunc("GET /api/v1/syncs/{syncID}", h.GetSync)

	// Schedules
	mux.HandleFunc("GET /api/v1/enterprises/{enterprise}/cron", h.GetCronConfig)
	mux.HandleFunc("PUT /api/v1/enterprises/{enterprise}/cron", h.SetCronConfig)

	// Organization access
	mux.HandleFunc("POST /api/v1/enterprises/{enterprise}/access/check", h.CheckAccess)
	mux.HandleFunc("GET /api/v1/enterprises/{enterprise}/access", h.ListAccess)

	// Stored migrations
	mux.HandleFunc("GET /api/v1/migrations", h.ListMigrations)
	mux.HandleFunc("DELETE /api/v1/migrations/{id}", h.DeleteMigration)

	return middleware.CORS(middleware.Logging(s.logger)(middleware.Recovery(s.logger)(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			s.logger.Error("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","database":"unreachable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","time":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
}
