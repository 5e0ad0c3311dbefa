// Package api exposes the ledger over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/certificate"
	"github.com/ayulink/herbtrace/internal/ledger"
	"github.com/ayulink/herbtrace/internal/metrics"
	"github.com/ayulink/herbtrace/internal/scoring"
)

// Deps are the collaborators a Server needs. Certificates may be nil to
// disable the certificate endpoint.
type Deps struct {
	Ledger       *ledger.Ledger
	Store        ledger.Store
	Scorer       scoring.Scorer
	Certificates *certificate.Service
	Metrics      *metrics.Metrics
	Logger       *zap.Logger

	CORSOrigins        []string
	RateLimitPerMinute int
	// TrustProxyHeaders takes the client address from X-Forwarded-For,
	// X-Real-IP or True-Client-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// Server holds the HTTP handlers.
type Server struct {
	ledger      *ledger.Ledger
	store       ledger.Store
	scorer      scoring.Scorer
	certs       *certificate.Service
	metrics     *metrics.Metrics
	limiter     *RateLimiter
	logger      *zap.Logger
	corsOrigins []string
	trustProxy  bool
}

func New(d Deps) *Server {
	s := &Server{
		ledger:      d.Ledger,
		store:       d.Store,
		scorer:      d.Scorer,
		certs:       d.Certificates,
		metrics:     d.Metrics,
		limiter:     NewRateLimiter(d.RateLimitPerMinute, time.Minute),
		logger:      d.Logger,
		corsOrigins: d.CORSOrigins,
		trustProxy:  d.TrustProxyHeaders,
	}
	if s.scorer == nil {
		s.scorer = scoring.DefaultModel()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.correlate)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", correlationHeader},
		ExposedHeaders:   []string{correlationHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, corrIDFrom(r.Context()), errorBody{Error: "route not found", Code: "NOT_FOUND", CorrID: corrIDFrom(r.Context())}, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, corrIDFrom(r.Context()), errorBody{Error: "method not allowed", Code: "METHOD_NOT_ALLOWED", CorrID: corrIDFrom(r.Context())}, nil)
	})

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimit).Post("/herbs", s.createBatch)
		r.Get("/herbs/{batchId}", s.getBatch)
		r.With(s.rateLimit).Put("/herbs/{batchId}/update", s.updateBatch)
		if s.certs != nil {
			r.Get("/herbs/{batchId}/certificate", s.getCertificate)
		}
		r.Get("/stats", s.getStats)
		r.Get("/lifecycle", s.getLifecycle)
	})
	return r
}
