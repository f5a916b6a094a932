// Package server is the HTTP/SSE serving layer of : routing,
// security headers, CORS, authentication, rate limiting, body-size and
// timeout enforcement, and the bounded concurrency/queue admission that
// guards the coordinator. Grounded on single-process
// assumptions generalized to a proper request-serving surface, routed
// through github.com/go-chi/chi/v5 the way kadirpekel-hector's transport
// package chains HTTP middleware.
package server

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/config"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/coordinator"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/logging"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/ratelimit"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/registry"
)

// AuthorizeFunc is the optional per-request authorization callback; it
// may deny a request with a 403 independent of authentication.
type AuthorizeFunc func(r *http.Request, identity string) bool

// Server owns the admission primitives (limiters, rate buckets) and
// routes requests into the Coordinator. One Server is constructed per
// process; it holds no per-request state beyond what a handler closes
// over locally ("encapsulate behind an explicit server
// context").
type Server struct {
	cfg config.Config
	coord *coordinator.Coordinator
	reg *registry.Registry
	log logging.Logger

	runLimiter *ratelimit.Limiter
	streamLimiter *ratelimit.Limiter
	buckets *ratelimit.Buckets

	authorize AuthorizeFunc

	router chi.Router
}

// New builds a Server wired to coord/reg per cfg. log is used for
// request-scoped diagnostics (a per-request child is derived via
// WithCorrelation for every admitted call).
func New(cfg config.Config, coord *coordinator.Coordinator, reg *registry.Registry, log logging.Logger) *Server {
	if log == nil {
		log = logging.NoopLogger{}
	}
	s := &Server{
		cfg: cfg,
		coord: coord,
		reg: reg,
		log: log,
		runLimiter: ratelimit.NewLimiter(
			cfg.Server.Admission.MaxConcurrentRequests,
			cfg.Server.Admission.MaxQueueSize,
			cfg.Server.Admission.QueueTimeout(),
		),
		streamLimiter: ratelimit.NewLimiter(
			cfg.Server.Admission.MaxConcurrentStreams,
			cfg.Server.Admission.MaxQueueSize,
			cfg.Server.Admission.QueueTimeout(),
		),
		buckets: ratelimit.NewBuckets(ratelimit.BucketConfig{
			RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
			Burst: cfg.Server.RateLimit.Burst,
		}),
	}
	s.router = s.buildRouter()
	return s
}

// WithAuthorize installs the optional authorization callback.
func (s *Server) WithAuthorize(fn AuthorizeFunc) *Server {
	s.authorize = fn
	return s
}

// Handler returns the http.Handler to mount on an *http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the Server's admission primitives (rate-bucket cleanup
// goroutine) and the underlying Coordinator.
func (s *Server) Close() error {
	s.buckets.Close()
	return s.coord.Close()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.securityHeaders)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Post("/run", s.handleRun)
	r.Post("/stream", s.handleStream)

	for _, route := range s.reg.GetProcessRoutes() {
		r.Method(route.Method, route.Path, route.Handler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONStatus(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONStatus(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed on this route")
	})
	return r
}

// newRequestID generates a correlation id for one request.
func newRequestID() string { return uuid.NewString() }

// readyPluginsPathExists implements "/ready": 200 iff the
// configured plugins path exists on disk.
func (s *Server) readyPluginsPathExists() bool {
	_, err := os.Stat(s.cfg.PluginsPath)
	return err == nil
}
