package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/orbsec/organization-service/pkg/httputil"
	"github.com/orbsec/organization-service/pkg/licensing"
	"github.com/orbsec/organization-service/pkg/metrics"
	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/orgs"
)

// BasePath is the prefix of every organization route
const BasePath = "/api/v1/organization"

// OrganizationService is the orchestrator behind the HTTP surface
type OrganizationService interface {
	FindByID(ctx context.Context, id string) (*orgs.Organization, error)
	FindAll(ctx context.Context) ([]orgs.Organization, error)
	Create(ctx context.Context, in orgs.OrganizationInput) (*orgs.Organization, error)
	Update(ctx context.Context, id string, in orgs.OrganizationInput) (*orgs.Organization, error)
	Delete(ctx context.Context, id string) (string, error)
	FindLicenses(ctx context.Context, authToken, organizationID string) ([]licensing.License, error)
}

var _ OrganizationService = (*orgs.Service)(nil)

// Options tunes the middleware wrapped around the router
type Options struct {
	// MaxBodyBytes caps request bodies; zero disables the cap
	MaxBodyBytes int64
	// RateLimit is the sustained requests per second; zero disables limiting
	RateLimit float64
	RateBurst int
	// Metrics records request counts per route template when set
	Metrics *metrics.Metrics
	// Tracing wraps the handler in an OpenTelemetry server span
	Tracing bool
}

// Server represents the organization API server
type Server struct {
	service OrganizationService
	logger  *observability.Logger
	opts    Options
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(service OrganizationService, logger *observability.Logger, opts Options) *Server {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Server{
		service: service,
		logger:  logger,
		opts:    opts,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(s.opts.Metrics.HTTPMiddleware)
	}

	r := s.router.PathPrefix(BasePath).Subrouter()

	// /all must be registered ahead of /{id}
	r.HandleFunc("/all", s.getAllOrganizations).Methods(http.MethodGet)
	r.HandleFunc("/license/{id}", s.getLicenses).Methods(http.MethodGet)
	r.HandleFunc("/{id}", s.getOrganization).Methods(http.MethodGet)
	r.HandleFunc("/{id}", s.updateOrganization).Methods(http.MethodPut)
	r.HandleFunc("/{id}", s.deleteOrganization).Methods(http.MethodDelete)
	r.HandleFunc("", s.createOrganization).Methods(http.MethodPost)
	r.HandleFunc("/", s.createOrganization).Methods(http.MethodPost)

	// routes under the prefix clear an earlier method mismatch, so the root
	// answers 405 itself
	r.HandleFunc("", methodNotAllowed(http.MethodPost))
	r.HandleFunc("/", methodNotAllowed(http.MethodPost))
}

// Router exposes the bare router without middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the request middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) wrap(next http.Handler) http.Handler {
	chain := []httputil.Middleware{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.RateLimitMiddleware(s.opts.RateLimit, s.opts.RateBurst),
	}
	if s.opts.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(s.opts.MaxBodyBytes))
	}
	chain = append(chain, httputil.ContentTypeMiddleware)

	var h http.Handler = httputil.Chain(chain...)(next)
	if s.opts.Tracing {
		h = otelhttp.NewHandler(h, "organization-service")
	}
	return h
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
