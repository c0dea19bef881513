package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// ResultReader exposes the results of the last completed run.
type ResultReader interface {
	LatestRun() (domain.RunSummary, bool)
	Aggregates(event string, level domain.Level, column domain.Column) ([]domain.AggregatedPeriod, bool)
}

// AggregateArchive serves aggregates persisted by earlier runs, e.g. after a
// restart when no run has completed in this process.
type AggregateArchive interface {
	Aggregates(ctx context.Context, event string, level domain.Level, column domain.Column) ([]domain.AggregatedPeriod, error)
}

// Server exposes health, readiness, metrics and the read-only results API.
type Server struct {
	httpServer *http.Server
	results    ResultReader
	archive    AggregateArchive
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /api/v1 routes. archive may be nil.
func NewServer(addr string, ready sharedobs.ReadinessChecker, results ResultReader, archive AggregateArchive, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		results: results,
		archive: archive,
		logger:  logger,
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/runs/latest", s.handleLatestRun)
		api.Get("/events", s.handleEvents)
		api.Get("/aggregates/{event}/{level}", s.handleAggregates)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.results.LatestRun()
	if !ok {
		writeError(w, http.StatusNotFound, "no run has completed yet")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, run)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.results.LatestRun()
	if !ok {
		writeError(w, http.StatusNotFound, "no run has completed yet")
		return
	}
	events := run.Events
	if events == nil {
		events = []domain.EventSummary{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, events)
}

// handleAggregates serves GET /api/v1/aggregates/{event}/{level}?column=&year=.
// column defaults to value; year filters to a single year. The last run in
// memory wins over the archive.
func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")
	level, err := domain.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	columnName := r.URL.Query().Get("column")
	if columnName == "" {
		columnName = string(domain.ColumnValue)
	}
	column, err := domain.ParseColumn(columnName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	year := 0
	if y := r.URL.Query().Get("year"); y != "" {
		if year, err = strconv.Atoi(y); err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
	}

	periods, ok := s.results.Aggregates(event, level, column)
	if !ok && s.archive != nil {
		periods, err = s.archive.Aggregates(r.Context(), event, level, column)
		if err != nil {
			s.logger.Error("archive lookup failed", "event", event, "level", level, "column", column, "error", err)
			writeError(w, http.StatusInternalServerError, "aggregate archive unavailable")
			return
		}
		ok = len(periods) > 0
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no "+string(column)+" aggregates for event "+event+" at level "+string(level))
		return
	}

	out := make([]domain.AggregatedPeriod, 0, len(periods))
	for _, p := range periods {
		if year != 0 && p.Year != year {
			continue
		}
		out = append(out, p)
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
