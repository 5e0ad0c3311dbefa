package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/logging"
)

const correlationHeader = "X-Correlation-Id"

type ctxKey int

const corrIDKey ctxKey = iota

func corrIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(corrIDKey).(string); ok {
		return v
	}
	return ""
}

// correlate takes the caller's X-Correlation-Id or mints one, and echoes it.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := strings.TrimSpace(r.Header.Get(correlationHeader))
		if corrID == "" || len(corrID) > 128 {
			corrID = uuid.NewString()
		}
		w.Header().Set(correlationHeader, corrID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), corrIDKey, corrID)))
	})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logging.WithCorrelation(s.logger, corrIDFrom(r.Context())).With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

// observe records latency by route pattern and logs each request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, status, elapsed)
		s.requestLogger(r).Debug("request served",
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// rateLimit refuses mutating requests over the per-client budget.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := s.limiter.Allow(clientKey(r))
		if !ok {
			corrID := corrIDFrom(r.Context())
			s.metrics.Rejected.WithLabelValues("rate_limited").Inc()
			writeJSON(w, http.StatusTooManyRequests, corrID, errorBody{
				Error:     "too many requests",
				Code:      "RATE_LIMITED",
				CorrID:    corrID,
				Retryable: true,
			}, map[string]string{"Retry-After": formatRetryAfter(retryAfter)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the caller's IP: the socket peer, or the forwarded address
// when proxy headers are trusted and RealIP has rewritten RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
