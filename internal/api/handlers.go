package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/ledger"
	"github.com/ayulink/herbtrace/internal/scoring"
	"github.com/ayulink/herbtrace/internal/store"
)

// createBatch matches POST /api/herbs.
func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.ledger.Register(r.Context(), req.input(), s.score)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.BatchesCreated.Inc()
	s.requestLogger(r).Info("batch created", zap.String("batchId", b.BatchID), zap.Float64("qualityScore", b.QualityScore))
	writeJSON(w, http.StatusCreated, corrIDFrom(r.Context()), registerResponse{
		BatchID:         b.BatchID,
		QualityScore:    b.QualityScore,
		TransactionHash: b.History[0].Hash,
	}, map[string]string{"Location": "/api/herbs/" + b.BatchID})
}

// score adapts the configured scorer to the ledger and times it.
func (s *Server) score(ctx context.Context, in ledger.ScoreInputs) (float64, error) {
	start := time.Now()
	v, err := s.scorer.Score(ctx, scoring.Inputs(in))
	s.metrics.ScoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, &scoringError{err: err}
	}
	return v, nil
}

// getBatch matches GET /api/herbs/{batchId}.
func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	v, err := s.ledger.Verify(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !v.Integrity.Valid {
		s.requestLogger(r).Warn("batch failed integrity check",
			zap.String("batchId", v.BatchID),
			zap.Intp("brokenAt", v.Integrity.BrokenAt),
		)
	}
	writeJSON(w, http.StatusOK, corrIDFrom(r.Context()), v, nil)
}

// updateBatch matches PUT /api/herbs/{batchId}/update.
func (s *Server) updateBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")
	var req updateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ev, err := s.ledger.AppendEvent(r.Context(), batchID, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.EventsAppended.WithLabelValues(string(ev.Status)).Inc()
	writeJSON(w, http.StatusOK, corrIDFrom(r.Context()), ev, nil)
}

// getStats matches GET /api/stats.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrIDFrom(r.Context()), stats, nil)
}

// getLifecycle lists the stage vocabulary and the suggested stakeholder roles.
func (s *Server) getLifecycle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, corrIDFrom(r.Context()), lifecycleResponse{
		Stages:       s.ledger.Lifecycle().Stages(),
		Stakeholders: ledger.KnownStakeholders,
	}, nil)
}

// getCertificate matches GET /api/herbs/{batchId}/certificate.
func (s *Server) getCertificate(w http.ResponseWriter, r *http.Request) {
	v, err := s.ledger.Verify(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pdf, outcome, err := s.certs.Certificate(r.Context(), v)
	if err != nil {
		s.metrics.Certificates.WithLabelValues("failed").Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.Certificates.WithLabelValues(string(outcome)).Inc()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+v.BatchID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("ETag", `"`+v.Integrity.HeadHash+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// health matches GET /healthz.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx, s.store); err != nil {
		s.requestLogger(r).Warn("store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, corrIDFrom(r.Context()), map[string]string{"status": "unavailable"}, nil)
		return
	}
	writeJSON(w, http.StatusOK, corrIDFrom(r.Context()), map[string]string{"status": "ok"}, nil)
}
