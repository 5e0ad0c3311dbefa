// Package boltstore keeps the ledger in a single bbolt file.
//
// Layout:
//
//	batches/<batchId>           JSON header with event count
//	events/<batchId>/<seq>      JSON trace event, seq as big-endian uint64
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ayulink/herbtrace/internal/ledger"
)

const fileMode os.FileMode = 0600

var (
	batchesBucket = []byte("batches")
	eventsBucket  = []byte("events")
)

// ErrPathIsBlank is returned by Open when no file path is configured.
var ErrPathIsBlank = errors.New("boltstore: file path is blank")

// Store implements ledger.Store on bbolt. Writes run in bbolt's single
// writer transaction, which also serializes appends.
type Store struct {
	db *bolt.DB
}

type headerRecord struct {
	ledger.Batch
	EventCount int `json:"eventCount"`
}

// Open creates the file and root buckets if needed.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrPathIsBlank
	}
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{batchesBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(ctx context.Context, b ledger.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		batches := tx.Bucket(batchesBucket)
		key := []byte(b.BatchID)
		if batches.Get(key) != nil {
			return ledger.ErrDuplicateBatch
		}
		header := headerRecord{Batch: b, EventCount: len(b.History)}
		header.History = nil
		raw, err := json.Marshal(header)
		if err != nil {
			return fmt.Errorf("encode batch: %w", err)
		}
		if err := batches.Put(key, raw); err != nil {
			return err
		}
		history, err := tx.Bucket(eventsBucket).CreateBucket(key)
		if err != nil {
			return fmt.Errorf("create history bucket: %w", err)
		}
		for _, ev := range b.History {
			if err := putEvent(history, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Append(ctx context.Context, batchID string, fn ledger.AppendFunc) (ledger.TraceEvent, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TraceEvent{}, err
	}
	var next ledger.TraceEvent
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(batchID)
		header, err := loadHeader(tx, key)
		if err != nil {
			return err
		}
		history := tx.Bucket(eventsBucket).Bucket(key)
		if history == nil {
			return fmt.Errorf("batch %s has no history bucket", batchID)
		}
		_, raw := history.Cursor().Last()
		if raw == nil {
			return fmt.Errorf("batch %s has empty history", batchID)
		}
		var last ledger.TraceEvent
		if err := json.Unmarshal(raw, &last); err != nil {
			return fmt.Errorf("decode last event: %w", err)
		}

		ev, err := fn(last)
		if err != nil {
			return err
		}
		if history.Get(seqKey(ev.Sequence)) != nil {
			return fmt.Errorf("append %s: sequence %d already written", batchID, ev.Sequence)
		}
		if err := putEvent(history, ev); err != nil {
			return err
		}
		header.EventCount++
		rawHeader, err := json.Marshal(header)
		if err != nil {
			return fmt.Errorf("encode batch: %w", err)
		}
		if err := tx.Bucket(batchesBucket).Put(key, rawHeader); err != nil {
			return err
		}
		next = ev
		return nil
	})
	if err != nil {
		return ledger.TraceEvent{}, err
	}
	return next, nil
}

func (s *Store) Get(ctx context.Context, batchID string) (ledger.Batch, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Batch{}, err
	}
	var out ledger.Batch
	err := s.db.View(func(tx *bolt.Tx) error {
		key := []byte(batchID)
		header, err := loadHeader(tx, key)
		if err != nil {
			return err
		}
		out = header.Batch
		out.History = make([]ledger.TraceEvent, 0, header.EventCount)
		history := tx.Bucket(eventsBucket).Bucket(key)
		if history == nil {
			return nil
		}
		return history.ForEach(func(_, v []byte) error {
			var ev ledger.TraceEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			out.History = append(out.History, ev)
			return nil
		})
	})
	if err != nil {
		return ledger.Batch{}, err
	}
	return out, nil
}

func (s *Store) Summaries(ctx context.Context) ([]ledger.BatchSummary, error) {
	type row struct {
		ledger.BatchSummary
		created time.Time
	}
	var rows []row
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(batchesBucket).ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var h headerRecord
			if err := json.Unmarshal(v, &h); err != nil {
				return fmt.Errorf("decode batch: %w", err)
			}
			rows = append(rows, row{
				BatchSummary: ledger.BatchSummary{
					BatchID:    h.BatchID,
					FarmerName: h.FarmerName,
					HerbType:   h.HerbType,
					Events:     h.EventCount,
				},
				created: h.CreatedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].created.Equal(rows[j].created) {
			return rows[i].created.Before(rows[j].created)
		}
		return rows[i].BatchID < rows[j].BatchID
	})
	out := make([]ledger.BatchSummary, len(rows))
	for i, r := range rows {
		out[i] = r.BatchSummary
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func loadHeader(tx *bolt.Tx, key []byte) (headerRecord, error) {
	raw := tx.Bucket(batchesBucket).Get(key)
	if raw == nil {
		return headerRecord{}, &ledger.NotFoundError{BatchID: string(key)}
	}
	var h headerRecord
	if err := json.Unmarshal(raw, &h); err != nil {
		return headerRecord{}, fmt.Errorf("decode batch: %w", err)
	}
	return h, nil
}

func putEvent(b *bolt.Bucket, ev ledger.TraceEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.Put(seqKey(ev.Sequence), raw)
}

func seqKey(seq int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(seq))
	return k[:]
}
