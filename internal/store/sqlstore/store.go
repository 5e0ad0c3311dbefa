// Package sqlstore persists the ledger in a relational database through GORM.
// SQLite and PostgreSQL are supported.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ayulink/herbtrace/internal/ledger"
)

// Store implements ledger.Store on a *gorm.DB.
type Store struct {
	db *gorm.DB
	// locks serializes appends per batch within this process. Across
	// processes the row lock (PostgreSQL) and the (batch_id, sequence)
	// unique index do the same job.
	locks *xsync.Map[string, *sync.Mutex]
}

// New wraps db. Call Migrate before first use on a fresh database.
func New(db *gorm.DB) *Store {
	return &Store{db: db, locks: xsync.NewMap[string, *sync.Mutex]()}
}

// Migrate creates or updates the batches and trace_events tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&batchRecord{}, &eventRecord{}); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, b ledger.Batch) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&batchRecord{}).Where("batch_id = ?", b.BatchID).Count(&n).Error; err != nil {
			return fmt.Errorf("check batch id: %w", err)
		}
		if n > 0 {
			return ledger.ErrDuplicateBatch
		}
		rec := toBatchRecord(b)
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ledger.ErrDuplicateBatch
			}
			return fmt.Errorf("insert batch: %w", err)
		}
		if len(b.History) == 0 {
			return nil
		}
		events := make([]eventRecord, len(b.History))
		for i, ev := range b.History {
			events[i] = toEventRecord(b.BatchID, ev)
		}
		if err := tx.Create(&events).Error; err != nil {
			return fmt.Errorf("insert genesis: %w", err)
		}
		return nil
	})
}

func (s *Store) Append(ctx context.Context, batchID string, fn ledger.AppendFunc) (ledger.TraceEvent, error) {
	// Batches are never deleted, so locks only ever exist for real batches.
	if err := s.exists(ctx, batchID); err != nil {
		return ledger.TraceEvent{}, err
	}
	mu, _ := s.locks.LoadOrStore(batchID, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	var next ledger.TraceEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rec batchRecord
		if err := q.Where("batch_id = ?", batchID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ledger.NotFoundError{BatchID: batchID}
			}
			return fmt.Errorf("lock batch: %w", err)
		}

		var last eventRecord
		if err := tx.Where("batch_id = ?", batchID).Order("sequence DESC").First(&last).Error; err != nil {
			return fmt.Errorf("load last event: %w", err)
		}

		ev, err := fn(last.toEvent())
		if err != nil {
			return err
		}

		row := toEventRecord(batchID, ev)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("append %s: sequence %d taken by a concurrent writer: %w", batchID, ev.Sequence, err)
			}
			return fmt.Errorf("append event: %w", err)
		}
		if err := tx.Model(&batchRecord{}).Where("batch_id = ?", batchID).
			Update("event_count", gorm.Expr("event_count + 1")).Error; err != nil {
			return fmt.Errorf("bump event count: %w", err)
		}
		next = ev
		return nil
	})
	if err != nil {
		return ledger.TraceEvent{}, err
	}
	return next, nil
}

func (s *Store) exists(ctx context.Context, batchID string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&batchRecord{}).Where("batch_id = ?", batchID).Count(&n).Error; err != nil {
		return fmt.Errorf("check batch %s: %w", batchID, err)
	}
	if n == 0 {
		return &ledger.NotFoundError{BatchID: batchID}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, batchID string) (ledger.Batch, error) {
	var out ledger.Batch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec batchRecord
		if err := tx.Where("batch_id = ?", batchID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ledger.NotFoundError{BatchID: batchID}
			}
			return fmt.Errorf("load batch: %w", err)
		}
		var events []eventRecord
		if err := tx.Where("batch_id = ?", batchID).Order("sequence ASC").Find(&events).Error; err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		out = rec.toBatch(events)
		return nil
	})
	return out, err
}

func (s *Store) Summaries(ctx context.Context) ([]ledger.BatchSummary, error) {
	var rows []summaryRow
	err := s.db.WithContext(ctx).Model(&batchRecord{}).
		Select("batch_id, farmer_name, herb_type, event_count").
		Order("registered_at ASC, batch_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	out := make([]ledger.BatchSummary, len(rows))
	for i, r := range rows {
		out[i] = ledger.BatchSummary{
			BatchID:    r.BatchID,
			FarmerName: r.FarmerName,
			HerbType:   r.HerbType,
			Events:     r.EventCount,
		}
	}
	return out, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
