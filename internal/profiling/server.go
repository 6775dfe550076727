package profiling

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// OpsServer serves health, readiness, Prometheus metrics and pprof on a port separate
// from the public API
type OpsServer struct {
	router  *chi.Mux
	metrics http.Handler
	db      Pinger // optional
}

// NewOpsServer creates the ops router. db may be nil when persistence is disabled.
func NewOpsServer(metrics http.Handler, db Pinger) *OpsServer {
	s := &OpsServer{
		router:  chi.NewRouter(),
		metrics: metrics,
		db:      db,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *OpsServer) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *OpsServer) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}
	s.router.Mount("/debug", middleware.Profiler())
}

// Handler exposes the router for embedding and tests
func (s *OpsServer) Handler() http.Handler {
	return s.router
}

// Start listens on addr until the server fails
func (s *OpsServer) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *OpsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable: " + err.Error() + "\n"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
