// Package api serves predictions and explanations over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/envmon/internal/monitoring"
	"github.com/sells-group/envmon/internal/pipeline"
)

// maxBodyBytes bounds request bodies; a reading is a few hundred bytes.
const maxBodyBytes = 1 << 20

// ModelInfo describes the serving model on GET /model.
type ModelInfo struct {
	Name         string            `json:"name,omitempty"`
	Version      string            `json:"version,omitempty"`
	SHA256       string            `json:"sha256,omitempty"`
	Backend      string            `json:"backend"`
	FeatureNames []string          `json:"feature_names"`
	Classes      []string          `json:"classes"`
	Units        map[string]string `json:"units,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKeys requires one of keys in the x-api-key header. No keys
// disables the check.
func WithAPIKeys(keys ...string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithRateLimit limits the service to rps requests per second with the
// given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithDefaultTopK truncates explanations when the request has no ?top.
func WithDefaultTopK(k int) Option {
	return func(s *Server) { s.defaultTopK = k }
}

// WithCollector serves c on GET /metrics.
func WithCollector(c *monitoring.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// Server holds the HTTP handlers. It is safe for concurrent use.
type Server struct {
	pipeline    *pipeline.Pipeline
	info        ModelInfo
	apiKeys     []string
	origins     []string
	limiter     *rate.Limiter
	defaultTopK int
	metrics     *monitoring.Collector
}

// NewServer creates a Server over p.
func NewServer(p *pipeline.Pipeline, info ModelInfo, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		info:     info,
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", apiKeyHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.authenticate)

		r.Post("/predict", s.handlePredict)
		r.Post("/predict-air-monitoring", s.handleAirMonitoring)
		r.Post("/predict-water-monitoring", s.handleWaterMonitoring)
		r.Get("/model", s.handleModel)
		if s.metrics != nil {
			r.Get("/metrics", s.handleMetrics)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
