package certificate

import (
	"context"
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/ledger"
)

const contentTypePDF = "application/pdf"

// Outcome says how a certificate request was served.
type Outcome string

const (
	OutcomeRendered Outcome = "rendered"
	OutcomeCached   Outcome = "cached"
)

// ErrChainBroken is returned for batches whose history fails verification.
// No certificate is issued for them.
var ErrChainBroken = errors.New("certificate: batch failed integrity check")

// ErrUnavailable wraps renderer failures, typically a missing or hung Chromium.
var ErrUnavailable = errors.New("certificate: renderer unavailable")

// Service renders certificates and caches them by batch id and head hash, so
// a new event yields a new certificate while repeats are served from storage.
// Only the latest certificate per batch is kept.
type Service struct {
	renderer Renderer
	storage  Storage
	logger   *zap.Logger
	// current maps batch id to the key of its cached certificate.
	current *xsync.Map[string, string]
}

func NewService(renderer Renderer, storage Storage, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		renderer: renderer,
		storage:  storage,
		logger:   logger,
		current:  xsync.NewMap[string, string](),
	}
}

// Key is the storage key for b's current certificate.
func Key(b ledger.VerifiedBatch) string {
	return fmt.Sprintf("certificates/%s/%s.pdf", b.BatchID, b.Integrity.HeadHash)
}

// Certificate returns the PDF for b.
func (s *Service) Certificate(ctx context.Context, b ledger.VerifiedBatch) ([]byte, Outcome, error) {
	if !b.Integrity.Valid {
		return nil, "", ErrChainBroken
	}
	key := Key(b)
	if body, _, err := s.storage.GetObject(ctx, key); err == nil {
		return body, OutcomeCached, nil
	} else if !errors.Is(err, ErrObjectNotFound) {
		s.logger.Warn("certificate cache read failed", zap.String("key", key), zap.Error(err))
	}

	pdf, err := s.renderer.Render(ctx, b)
	if err != nil {
		return nil, "", fmt.Errorf("%w: batch %s: %w", ErrUnavailable, b.BatchID, err)
	}
	if err := s.storage.PutObject(ctx, key, pdf, contentTypePDF); err != nil {
		s.logger.Warn("certificate cache write failed", zap.String("key", key), zap.Error(err))
		return pdf, OutcomeRendered, nil
	}
	if prev, loaded := s.current.LoadAndStore(b.BatchID, key); loaded && prev != key {
		if err := s.storage.DeleteObject(ctx, prev); err != nil {
			s.logger.Warn("stale certificate not evicted", zap.String("key", prev), zap.Error(err))
		}
	}
	return pdf, OutcomeRendered, nil
}
