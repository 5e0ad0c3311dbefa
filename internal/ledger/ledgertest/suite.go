// Package ledgertest holds the conformance checks every ledger.Store backend
// must pass.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayulink/herbtrace/internal/ledger"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) ledger.Store

// SampleInput is the registration used across backend tests.
func SampleInput() ledger.BatchInput {
	return ledger.BatchInput{
		FarmerName:     "Ravi Kumar",
		Location:       "Erode, Tamil Nadu",
		HerbType:       "Turmeric",
		Quantity:       "10",
		GPSCoordinates: "11.341036, 77.717164",
		HarvestDate:    "2025-01-15",
		FarmingMethod:  "Organic",
		SoilPH:         "6.5",
		RainfallMM:     "500",
		SunlightHours:  "8",
	}
}

// RawBatch builds a header plus genesis event without going through the
// ledger, for exercising a store directly.
func RawBatch(id string, created time.Time) ledger.Batch {
	created = created.UTC().Truncate(time.Microsecond)
	return ledger.Batch{
		BatchID:        id,
		FarmerName:     "Asha",
		Location:       "Jaipur",
		HerbType:       "Ashwagandha",
		QuantityKg:     12.5,
		GPSCoordinates: "26.9124, 75.7873",
		HarvestDate:    "2025-02-01",
		FarmingMethod:  "Organic",
		QualityScore:   7.25,
		ScoreInputs:    ledger.ScoreInputs{SoilPH: 7, RainfallMM: 450, SunlightHours: 9},
		CreatedAt:      created,
		History: []ledger.TraceEvent{{
			Sequence:       0,
			Status:         ledger.StatusHarvested,
			Stakeholder:    "Farmer",
			Location:       "Jaipur",
			Notes:          "Batch registered",
			EventTimestamp: created,
			BlockTimestamp: created,
			PrevHash:       "genesis",
			Hash:           "h0",
		}},
	}
}

// RunStoreSuite exercises the Store contract directly.
func RunStoreSuite(t *testing.T, newStore Factory) {
	t.Run("InsertThenGet", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		want := RawBatch("BATCH-AAAAAAAA", time.Now())
		require.NoError(t, s.Insert(ctx, want))

		got, err := s.Get(ctx, want.BatchID)
		require.NoError(t, err)
		assertSameBatch(t, want, got)
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		b := RawBatch("BATCH-DUPLICAT", time.Now())
		require.NoError(t, s.Insert(ctx, b))

		other := RawBatch("BATCH-DUPLICAT", time.Now())
		other.FarmerName = "Someone Else"
		err := s.Insert(ctx, other)
		require.ErrorIs(t, err, ledger.ErrDuplicateBatch)

		got, err := s.Get(ctx, b.BatchID)
		require.NoError(t, err)
		assert.Equal(t, "Asha", got.FarmerName)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		s := open(t, newStore)
		_, err := s.Get(context.Background(), "BATCH-UNKNOWN")
		var nf *ledger.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "BATCH-UNKNOWN", nf.BatchID)
	})

	t.Run("AppendUnknown", func(t *testing.T) {
		s := open(t, newStore)
		called := false
		_, err := s.Append(context.Background(), "BATCH-UNKNOWN", func(last ledger.TraceEvent) (ledger.TraceEvent, error) {
			called = true
			return last, nil
		})
		var nf *ledger.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.False(t, called)
	})

	t.Run("AppendSeesLastEvent", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		b := RawBatch("BATCH-APPENDAA", time.Now())
		require.NoError(t, s.Insert(ctx, b))

		for i := 1; i <= 3; i++ {
			ev, err := s.Append(ctx, b.BatchID, nextEvent(t, i-1))
			require.NoError(t, err)
			assert.Equal(t, i, ev.Sequence)
		}
		got, err := s.Get(ctx, b.BatchID)
		require.NoError(t, err)
		require.Len(t, got.History, 4)
		for i, ev := range got.History {
			assert.Equal(t, i, ev.Sequence)
		}
		assert.Equal(t, got.History[2].Hash, got.History[3].PrevHash)
	})

	t.Run("AppendErrorWritesNothing", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		b := RawBatch("BATCH-ROLLBACK", time.Now())
		require.NoError(t, s.Insert(ctx, b))

		boom := errors.New("rejected")
		_, err := s.Append(ctx, b.BatchID, func(ledger.TraceEvent) (ledger.TraceEvent, error) {
			return ledger.TraceEvent{}, boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.Get(ctx, b.BatchID)
		require.NoError(t, err)
		assert.Len(t, got.History, 1)
	})

	t.Run("ConcurrentAppendsAreSerialized", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		b := RawBatch("BATCH-CONCURRE", time.Now())
		require.NoError(t, s.Insert(ctx, b))

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Append(ctx, b.BatchID, func(last ledger.TraceEvent) (ledger.TraceEvent, error) {
					return chained(last), nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, b.BatchID)
		require.NoError(t, err)
		require.Len(t, got.History, writers+1)
		for i := 1; i < len(got.History); i++ {
			assert.Equal(t, i, got.History[i].Sequence)
			assert.Equal(t, got.History[i-1].Hash, got.History[i].PrevHash)
		}
	})

	t.Run("Summaries", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		base := time.Now()
		first := RawBatch("BATCH-FIRSTAAA", base)
		second := RawBatch("BATCH-SECONDAA", base.Add(time.Second))
		second.FarmerName = "Meera"
		second.HerbType = "Tulsi"
		require.NoError(t, s.Insert(ctx, second))
		require.NoError(t, s.Insert(ctx, first))
		_, err := s.Append(ctx, second.BatchID, nextEvent(t, 0))
		require.NoError(t, err)

		rows, err := s.Summaries(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, ledger.BatchSummary{BatchID: first.BatchID, FarmerName: "Asha", HerbType: "Ashwagandha", Events: 1}, rows[0])
		assert.Equal(t, ledger.BatchSummary{BatchID: second.BatchID, FarmerName: "Meera", HerbType: "Tulsi", Events: 2}, rows[1])
	})
}

// RunLedgerSuite runs the ledger's behavioral guarantees on top of a backend.
func RunLedgerSuite(t *testing.T, newStore Factory) {
	t.Run("RegisterUpdateVerify", func(t *testing.T) {
		l := ledger.New(open(t, newStore))
		ctx := context.Background()

		b, err := l.CreateBatch(ctx, SampleInput(), 8.9)
		require.NoError(t, err)
		require.True(t, ledger.ValidBatchID(b.BatchID), b.BatchID)

		_, err = l.AppendEvent(ctx, b.BatchID, ledger.EventInput{Status: "Processing", Stakeholder: "Processor", Location: "Jaipur"})
		require.NoError(t, err)
		_, err = l.AppendEvent(ctx, b.BatchID, ledger.EventInput{Status: "Shipped", Stakeholder: "Distributor", Location: "Delhi", Notes: "Truck 12"})
		require.NoError(t, err)

		v, err := l.Verify(ctx, b.BatchID)
		require.NoError(t, err)
		require.Len(t, v.History, 3)
		assert.True(t, v.Integrity.Valid, "chain broken at %v", v.Integrity.BrokenAt)
		assert.Equal(t, v.History[2].Hash, v.Integrity.HeadHash)
		assert.Equal(t, b.QualityScore, v.QualityScore)
		assert.Equal(t, b.ScoreInputs, v.ScoreInputs)
	})

	t.Run("RegressionRejected", func(t *testing.T) {
		l := ledger.New(open(t, newStore))
		ctx := context.Background()
		b, err := l.CreateBatch(ctx, SampleInput(), 5)
		require.NoError(t, err)

		_, err = l.AppendEvent(ctx, b.BatchID, ledger.EventInput{Status: "Packaged", Stakeholder: "Manufacturer", Location: "Pune"})
		require.NoError(t, err)
		_, err = l.AppendEvent(ctx, b.BatchID, ledger.EventInput{Status: "Processing", Stakeholder: "Processor", Location: "Pune"})
		var it *ledger.InvalidTransitionError
		require.ErrorAs(t, err, &it)

		got, err := l.Get(ctx, b.BatchID)
		require.NoError(t, err)
		assert.Len(t, got.History, 2)
	})

	t.Run("ConcurrentTransitionsLinearize", func(t *testing.T) {
		l := ledger.New(open(t, newStore))
		ctx := context.Background()
		b, err := l.CreateBatch(ctx, SampleInput(), 5)
		require.NoError(t, err)

		// Every writer asks for the same next stage; exactly one may win.
		const writers = 8
		var wg sync.WaitGroup
		results := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := l.AppendEvent(ctx, b.BatchID, ledger.EventInput{
					Status:      "Processing",
					Stakeholder: fmt.Sprintf("Processor-%d", i),
					Location:    "Jaipur",
				})
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		ok, rejected := 0, 0
		for err := range results {
			var it *ledger.InvalidTransitionError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &it):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, writers-1, rejected)

		v, err := l.Verify(ctx, b.BatchID)
		require.NoError(t, err)
		assert.Len(t, v.History, 2)
		assert.True(t, v.Integrity.Valid)
	})
}

func open(t *testing.T, newStore Factory) ledger.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func nextEvent(t *testing.T, wantLast int) ledger.AppendFunc {
	return func(last ledger.TraceEvent) (ledger.TraceEvent, error) {
		assert.Equal(t, wantLast, last.Sequence)
		return chained(last), nil
	}
}

func chained(last ledger.TraceEvent) ledger.TraceEvent {
	return ledger.TraceEvent{
		Sequence:       last.Sequence + 1,
		Status:         ledger.StatusProcessing,
		Stakeholder:    "Processor",
		Location:       "Jaipur",
		EventTimestamp: last.BlockTimestamp,
		BlockTimestamp: last.BlockTimestamp.Add(time.Millisecond),
		PrevHash:       last.Hash,
		Hash:           fmt.Sprintf("h%d", last.Sequence+1),
	}
}

func assertSameBatch(t *testing.T, want, got ledger.Batch) {
	t.Helper()
	assert.Equal(t, want.BatchID, got.BatchID)
	assert.Equal(t, want.FarmerName, got.FarmerName)
	assert.Equal(t, want.Location, got.Location)
	assert.Equal(t, want.HerbType, got.HerbType)
	assert.Equal(t, want.QuantityKg, got.QuantityKg)
	assert.Equal(t, want.GPSCoordinates, got.GPSCoordinates)
	assert.Equal(t, want.HarvestDate, got.HarvestDate)
	assert.Equal(t, want.FarmingMethod, got.FarmingMethod)
	assert.Equal(t, want.QualityScore, got.QualityScore)
	assert.Equal(t, want.ScoreInputs, got.ScoreInputs)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", want.CreatedAt, got.CreatedAt)
	require.Len(t, got.History, len(want.History))
	for i := range want.History {
		w, g := want.History[i], got.History[i]
		assert.Equal(t, w.Sequence, g.Sequence)
		assert.Equal(t, w.Status, g.Status)
		assert.Equal(t, w.Stakeholder, g.Stakeholder)
		assert.Equal(t, w.Location, g.Location)
		assert.Equal(t, w.Notes, g.Notes)
		assert.True(t, w.EventTimestamp.Equal(g.EventTimestamp))
		assert.True(t, w.BlockTimestamp.Equal(g.BlockTimestamp))
		assert.Equal(t, w.PrevHash, g.PrevHash)
		assert.Equal(t, w.Hash, g.Hash)
	}
}
