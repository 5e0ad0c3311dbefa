package ledger

import "context"

// AppendFunc receives the batch's committed last event and returns the event
// to commit after it. Returning an error aborts the append with no write.
type AppendFunc func(last TraceEvent) (TraceEvent, error)

// Store is the durable substrate behind the ledger.
//
// Implementations must make Insert atomic with its uniqueness check, call an
// AppendFunc with the true last event while holding the batch exclusively, and
// never expose a partially written batch or event to readers.
type Store interface {
	// Insert writes a new batch with its genesis event. It returns
	// ErrDuplicateBatch when the id is already present.
	Insert(ctx context.Context, b Batch) error
	// Append commits the event produced by fn, or returns *NotFoundError.
	Append(ctx context.Context, batchID string, fn AppendFunc) (TraceEvent, error)
	// Get returns the header and ordered history, or *NotFoundError.
	Get(ctx context.Context, batchID string) (Batch, error)
	// Summaries lists every batch in registration order.
	Summaries(ctx context.Context) ([]BatchSummary, error)
	Close() error
}
