package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// MemoryStore keeps batches in process memory. Each batch has its own lock,
// so appends to different batches never contend.
type MemoryStore struct {
	batches *xsync.Map[string, *memEntry]
}

type memEntry struct {
	mu    sync.RWMutex
	batch Batch
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: xsync.NewMap[string, *memEntry]()}
}

func (s *MemoryStore) Insert(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := &memEntry{batch: b.clone()}
	if _, loaded := s.batches.LoadOrStore(b.BatchID, entry); loaded {
		return ErrDuplicateBatch
	}
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, batchID string, fn AppendFunc) (TraceEvent, error) {
	entry, ok := s.batches.Load(batchID)
	if !ok {
		return TraceEvent{}, &NotFoundError{BatchID: batchID}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return TraceEvent{}, err
	}
	next, err := fn(entry.batch.Head())
	if err != nil {
		return TraceEvent{}, err
	}
	entry.batch.History = append(entry.batch.History, next)
	return next, nil
}

func (s *MemoryStore) Get(_ context.Context, batchID string) (Batch, error) {
	entry, ok := s.batches.Load(batchID)
	if !ok {
		return Batch{}, &NotFoundError{BatchID: batchID}
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.batch.clone(), nil
}

func (s *MemoryStore) Summaries(ctx context.Context) ([]BatchSummary, error) {
	type row struct {
		BatchSummary
		seq int64
	}
	rows := make([]row, 0, s.batches.Size())
	s.batches.Range(func(_ string, entry *memEntry) bool {
		entry.mu.RLock()
		b := entry.batch
		rows = append(rows, row{
			BatchSummary: BatchSummary{
				BatchID:    b.BatchID,
				FarmerName: b.FarmerName,
				HerbType:   b.HerbType,
				Events:     len(b.History),
			},
			seq: b.CreatedAt.UnixNano(),
		})
		entry.mu.RUnlock()
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].seq != rows[j].seq {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].BatchID < rows[j].BatchID
	})
	out := make([]BatchSummary, len(rows))
	for i, r := range rows {
		out[i] = r.BatchSummary
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
