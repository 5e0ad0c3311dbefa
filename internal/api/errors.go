package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/certificate"
	"github.com/ayulink/herbtrace/internal/ledger"
)

// errorBody is the JSON shape of every failed response. The front end reads
// "error".
type errorBody struct {
	Error     string              `json:"error"`
	Code      string              `json:"code"`
	CorrID    string              `json:"corrId,omitempty"`
	Retryable bool                `json:"retryable"`
	Errors    []ledger.FieldError `json:"errors,omitempty"`
}

// scoringError wraps a failure from the quality scorer.
type scoringError struct{ err error }

func (e *scoringError) Error() string { return "quality scoring failed: " + e.err.Error() }
func (e *scoringError) Unwrap() error { return e.err }

// classify maps an error to its HTTP status, body and metrics label.
func classify(err error) (int, errorBody, string) {
	var (
		ve  *ledger.ValidationError
		nf  *ledger.NotFoundError
		it  *ledger.InvalidTransitionError
		ae  *ledger.AllocationExhaustedError
		se  *scoringError
		bad errBadRequest
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, errorBody{Error: bad.Error(), Code: "BAD_REQUEST"}, "bad_request"
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Error: ve.Error(), Code: "VALIDATION_FAILED", Errors: ve.Errors}, "validation"
	case errors.As(err, &nf):
		return http.StatusNotFound, errorBody{Error: nf.Error(), Code: "NOT_FOUND"}, "not_found"
	case errors.As(err, &it):
		return http.StatusConflict, errorBody{Error: it.Error(), Code: "INVALID_TRANSITION"}, "invalid_transition"
	case errors.As(err, &ae):
		return http.StatusInternalServerError, errorBody{Error: ae.Error(), Code: "ALLOCATION_EXHAUSTED", Retryable: true}, "allocation_exhausted"
	case errors.As(err, &se):
		return http.StatusBadGateway, errorBody{Error: "quality scoring unavailable", Code: "SCORING_UNAVAILABLE", Retryable: true}, "scoring"
	case errors.Is(err, certificate.ErrChainBroken):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "CHAIN_BROKEN"}, "chain_broken"
	case errors.Is(err, certificate.ErrUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: "certificate rendering unavailable", Code: "CERTIFICATE_UNAVAILABLE", Retryable: true}, "certificate"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: "request timed out", Code: "TIMEOUT", Retryable: true}, "timeout"
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error", Code: "INTERNAL_ERROR", Retryable: true}, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body, kind := classify(err)
	body.CorrID = corrIDFrom(r.Context())
	log := s.requestLogger(r)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("kind", kind), zap.Error(err))
	} else {
		log.Info("request rejected", zap.String("kind", kind), zap.String("reason", err.Error()))
	}
	if r.Method != http.MethodGet {
		s.metrics.Rejected.WithLabelValues(kind).Inc()
	}
	writeJSON(w, status, body.CorrID, body, nil)
}

func writeJSON(w http.ResponseWriter, status int, corrID string, v any, extra map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set(correlationHeader, corrID)
	}
	for k, val := range extra {
		w.Header().Set(k, val)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formatRetryAfter(d time.Duration) string {
	seconds := int(d.Seconds())
	if d > time.Duration(seconds)*time.Second {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
