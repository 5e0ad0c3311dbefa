package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAllocationRetries bounds id draws per registration.
	DefaultAllocationRetries = 8

	genesisStakeholder = "Farmer"
	genesisNotes       = "Batch registered"
)

// ScoreFunc computes the quality score from declared inputs. It is called
// once per successful validation, before the genesis write.
type ScoreFunc func(ctx context.Context, in ScoreInputs) (float64, error)

// Ledger is the sole writer of batches and events. It validates input,
// enforces the lifecycle, and assigns block timestamps and hashes; the Store
// supplies atomicity and durability.
type Ledger struct {
	store     Store
	alloc     Allocator
	lifecycle *Lifecycle
	now       func() time.Time
	retries   int
	logger    *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAllocator replaces the random id allocator.
func WithAllocator(a Allocator) Option {
	return func(l *Ledger) { l.alloc = a }
}

// WithLifecycle replaces the default stage vocabulary.
func WithLifecycle(lc *Lifecycle) Option {
	return func(l *Ledger) { l.lifecycle = lc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithAllocationRetries sets the collision retry budget.
func WithAllocationRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.retries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		alloc:     NewRandomAllocator(),
		lifecycle: DefaultLifecycle(),
		now:       time.Now,
		retries:   DefaultAllocationRetries,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lifecycle exposes the stage vocabulary in use.
func (l *Ledger) Lifecycle() *Lifecycle { return l.lifecycle }

// Register validates in, scores it exactly once, and creates the batch.
func (l *Ledger) Register(ctx context.Context, in BatchInput, score ScoreFunc) (Batch, error) {
	fields, errs := validateBatch(in)
	if len(errs) > 0 {
		return Batch{}, &ValidationError{Errors: errs}
	}
	q, err := score(ctx, fields.header.ScoreInputs)
	if err != nil {
		return Batch{}, fmt.Errorf("score batch: %w", err)
	}
	return l.create(ctx, fields, q)
}

// CreateBatch stores a new batch with a pre-computed quality score and its
// genesis Harvested event.
func (l *Ledger) CreateBatch(ctx context.Context, in BatchInput, qualityScore float64) (Batch, error) {
	fields, errs := validateBatch(in)
	if len(errs) > 0 {
		return Batch{}, &ValidationError{Errors: errs}
	}
	return l.create(ctx, fields, qualityScore)
}

func (l *Ledger) create(ctx context.Context, fields batchFields, qualityScore float64) (Batch, error) {
	if errs := validateScore(qualityScore); len(errs) > 0 {
		return Batch{}, &ValidationError{Errors: errs}
	}
	for attempt := 1; attempt <= l.retries; attempt++ {
		id, err := l.alloc.Allocate()
		if err != nil {
			return Batch{}, fmt.Errorf("allocate batch id: %w", err)
		}
		b := l.genesis(id, fields, qualityScore)
		err = l.store.Insert(ctx, b)
		if errors.Is(err, ErrDuplicateBatch) {
			l.logger.Warn("batch id collision", zap.String("batchId", id), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Batch{}, fmt.Errorf("insert batch %s: %w", id, err)
		}
		l.logger.Info("batch registered",
			zap.String("batchId", id),
			zap.String("herbType", b.HerbType),
			zap.Float64("qualityScore", b.QualityScore),
		)
		return b, nil
	}
	l.logger.Error("batch id allocation exhausted", zap.Int("attempts", l.retries))
	return Batch{}, &AllocationExhaustedError{Attempts: l.retries}
}

func (l *Ledger) genesis(id string, fields batchFields, qualityScore float64) Batch {
	now := l.clock()
	b := fields.header
	b.BatchID = id
	b.QualityScore = qualityScore
	b.CreatedAt = now

	declared := fields.harvestUTC
	if declared.IsZero() {
		declared = now
	}
	ev := TraceEvent{
		Sequence:       0,
		Status:         l.lifecycle.Genesis(),
		Stakeholder:    genesisStakeholder,
		Location:       b.Location,
		Notes:          genesisNotes,
		EventTimestamp: declared,
		BlockTimestamp: now,
		PrevHash:       headerHash(b),
	}
	ev.Hash = hashEvent(id, ev)
	b.History = []TraceEvent{ev}
	return b
}

// AppendEvent validates in against the batch's last status and commits it.
func (l *Ledger) AppendEvent(ctx context.Context, batchID string, in EventInput) (TraceEvent, error) {
	status, declared, errs := l.validateEvent(in)
	if len(errs) > 0 {
		return TraceEvent{}, &ValidationError{Errors: errs}
	}
	ev, err := l.store.Append(ctx, batchID, func(last TraceEvent) (TraceEvent, error) {
		if !l.lifecycle.CanTransition(last.Status, status) {
			return TraceEvent{}, &InvalidTransitionError{BatchID: batchID, From: last.Status, To: status}
		}
		block := l.clock()
		if block.Before(last.BlockTimestamp) {
			block = last.BlockTimestamp
		}
		eventTime := declared
		if eventTime.IsZero() {
			eventTime = block
		}
		next := TraceEvent{
			Sequence:       last.Sequence + 1,
			Status:         status,
			Stakeholder:    in.Stakeholder,
			Location:       in.Location,
			Notes:          in.Notes,
			EventTimestamp: eventTime,
			BlockTimestamp: block,
			PrevHash:       last.Hash,
		}
		next.Hash = hashEvent(batchID, next)
		return next, nil
	})
	if err != nil {
		return TraceEvent{}, err
	}
	l.logger.Info("trace event appended",
		zap.String("batchId", batchID),
		zap.String("status", string(ev.Status)),
		zap.Int("sequence", ev.Sequence),
	)
	return ev, nil
}

// Get returns the batch header and ordered history.
func (l *Ledger) Get(ctx context.Context, batchID string) (Batch, error) {
	return l.store.Get(ctx, batchID)
}

// clock truncates to microseconds so timestamps survive every backend.
func (l *Ledger) clock() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}
