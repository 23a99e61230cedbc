package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/audit"
	"github.com/thermaleye/backoffice/pkg/fkcache"
	"github.com/thermaleye/backoffice/pkg/httputil"
	"github.com/thermaleye/backoffice/pkg/middleware"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/search"
	"github.com/thermaleye/backoffice/pkg/state"
	"github.com/thermaleye/backoffice/pkg/store"
)

// Deps carries everything the server wires together. RateLimit, Cache,
// Search, SearchIndexer and State are optional; absent ones simply leave
// their routes off or degrade the behavior they back.
type Deps struct {
	Registry *registry.Registry
	Access   *access.Service
	Scoper   *scope.Engine
	Store    *store.Store
	Cache    *fkcache.Service
	Search   *search.Service
	Indexer  *search.Indexer
	State    *state.Store
	Audit    *audit.Handlers

	Auth      *middleware.TokenAuth
	RateLimit *middleware.RateLimitMiddleware

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP API server.
type Server struct {
	router *mux.Router
	routes []Route
	deps   Deps
}

// NewServer assembles the API server: middleware chain, materialized entity
// routes and the fixed service routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		routes: BuildRoutes(deps.Registry),
		deps:   deps,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.TracingMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.deps.Logger))
	s.router.Use(httputil.RecoveryMiddleware(s.deps.Logger))
	if s.deps.Auth != nil {
		s.router.Use(s.deps.Auth.Handler)
	}
	if s.deps.RateLimit != nil {
		s.router.Use(s.deps.RateLimit.Handler)
	}
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	entityHandlers := NewEntityHandlers(
		s.deps.Registry, s.deps.Access, s.deps.Scoper, s.deps.Store,
		s.deps.Cache, s.deps.Indexer, s.deps.Logger,
	)
	for _, route := range s.routes {
		handler := s.instrument(route.Path, entityHandlers.HandlerFor(route))
		s.router.Handle(route.Path, handler).Methods(route.Method).Name(route.Name)
	}

	// Route introspection: the materialized table itself.
	s.router.HandleFunc("/api/routes", s.listRoutes).Methods(http.MethodGet)

	NewAccessHandlers(s.deps.Access).RegisterRoutes(s.router)

	if s.deps.Search != nil {
		NewSearchHandlers(s.deps.Search, s.deps.Indexer, s.deps.Access, s.deps.Logger).RegisterRoutes(s.router)
	}
	if s.deps.Cache != nil {
		NewFKAdminHandlers(s.deps.Cache, s.deps.Store, s.deps.Logger).RegisterRoutes(s.router)
	}
	if s.deps.State != nil {
		state.NewHandlers(s.deps.State, s.deps.Logger).Register(s.router)
	}
	if s.deps.Audit != nil {
		s.deps.Audit.RegisterRoutes(s.router)
	}
}

// instrument wraps a handler with per-route HTTP metrics.
func (s *Server) instrument(path string, handler http.Handler) http.Handler {
	if s.deps.Metrics == nil {
		return handler
	}
	return s.deps.Metrics.InstrumentHandler(path, handler)
}

// listRoutes serves the materialized route table.
func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.routes)
}

// Routes returns the materialized entity route table.
func (s *Server) Routes() []Route {
	return s.routes
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
