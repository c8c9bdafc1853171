// Package server exposes the planning pipeline over HTTP.
//
// Routes:
//
//	GET  /healthz                   liveness and build info
//	GET  /v1/recipes                catalog listing, filterable by ?building= and ?produces=
//	GET  /v1/recipes/{name}         a single recipe
//	POST /v1/plans                  solve a plan (JSON body, or TOML with Content-Type application/toml)
//	GET  /v1/plans/{id}             a solved plan
//	GET  /v1/plans/{id}/graph.svg   the solved plan's flow graph
//
// Plan executions are serialized: the solvers are single-threaded and
// CPU-bound, so concurrent requests queue instead of competing.
package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/matzehuels/overclock/pkg/catalog"
	"github.com/matzehuels/overclock/pkg/pipeline"
)

// DefaultMaxPlans is how many solved plans are kept for retrieval.
const DefaultMaxPlans = 256

// maxBody caps plan request bodies.
const maxBody = 1 << 20

// Config wires a server to its collaborators.
type Config struct {
	Repository catalog.Repository
	Runner     *pipeline.Runner
	Logger     *log.Logger
	// MaxPlans bounds the in-memory plan store. Zero means DefaultMaxPlans.
	MaxPlans int
	// PlanTTL expires stored plans. Zero keeps them until evicted.
	PlanTTL time.Duration
}

// Server serves the HTTP API.
type Server struct {
	repo   catalog.Repository
	runner *pipeline.Runner
	logger *log.Logger
	plans  *expirable.LRU[string, *pipeline.Result]
	router chi.Router

	// solve serializes pipeline executions.
	solve sync.Mutex
}

// New creates a server. A nil runner gets an uncached default runner.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	runner := cfg.Runner
	if runner == nil {
		runner = pipeline.NewRunner(nil, nil, logger)
	}
	max := cfg.MaxPlans
	if max <= 0 {
		max = DefaultMaxPlans
	}
	s := &Server{
		repo:   cfg.Repository,
		runner: runner,
		logger: logger,
		plans:  newPlanStore(max, cfg.PlanTTL),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.logging)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/recipes", s.handleListRecipes)
		r.Get("/recipes/{name}", s.handleGetRecipe)
		r.Route("/plans", func(r chi.Router) {
			r.Use(limitBody(maxBody))
			r.Post("/", s.handleCreatePlan)
			r.Get("/{id}", s.handleGetPlan)
			r.Get("/{id}/graph.svg", s.handlePlanGraph)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "catalog", s.repo.Source())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// newPlanStore keeps the most recently stored results by ID.
func newPlanStore(size int, ttl time.Duration) *expirable.LRU[string, *pipeline.Result] {
	return expirable.NewLRU[string, *pipeline.Result](size, nil, ttl)
}
