package certificate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayulink/herbtrace/internal/ledger"
	"github.com/ayulink/herbtrace/internal/ledger/ledgertest"
)

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, b ledger.VerifiedBatch) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-" + b.Integrity.HeadHash), nil
}

func verifiedBatch(t *testing.T) (*ledger.Ledger, ledger.VerifiedBatch) {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore())
	b, err := l.CreateBatch(context.Background(), ledgertest.SampleInput(), 8.9)
	require.NoError(t, err)
	v, err := l.Verify(context.Background(), b.BatchID)
	require.NoError(t, err)
	return l, v
}

func TestCertificateCachedByHead(t *testing.T) {
	l, v := verifiedBatch(t)
	r := &fakeRenderer{}
	svc := NewService(r, NewInMemoryStorage(), nil)
	ctx := context.Background()

	pdf, outcome, err := svc.Certificate(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRendered, outcome)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF-"))

	again, outcome, err := svc.Certificate(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCached, outcome)
	assert.Equal(t, pdf, again)
	assert.Equal(t, 1, r.calls)

	_, err = l.AppendEvent(ctx, v.BatchID, ledger.EventInput{Status: "Processing", Stakeholder: "Processor", Location: "Jaipur"})
	require.NoError(t, err)
	v2, err := l.Verify(ctx, v.BatchID)
	require.NoError(t, err)
	_, outcome, err = svc.Certificate(ctx, v2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRendered, outcome)
	assert.Equal(t, 2, r.calls)
	assert.NotEqual(t, Key(v), Key(v2))
}

func TestCertificateEvictsSupersededHead(t *testing.T) {
	l, v := verifiedBatch(t)
	storage := NewInMemoryStorage()
	svc := NewService(&fakeRenderer{}, storage, nil)
	ctx := context.Background()

	_, _, err := svc.Certificate(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, 1, storage.Len())

	for _, status := range []string{"Processing", "Packaged", "Shipped"} {
		_, err := l.AppendEvent(ctx, v.BatchID, ledger.EventInput{Status: status, Stakeholder: "Distributor", Location: "Chennai"})
		require.NoError(t, err)
		next, err := l.Verify(ctx, v.BatchID)
		require.NoError(t, err)
		_, outcome, err := svc.Certificate(ctx, next)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRendered, outcome)
		assert.Equal(t, 1, storage.Len(), status)

		_, _, err = storage.GetObject(ctx, Key(next))
		require.NoError(t, err)
		_, _, err = storage.GetObject(ctx, Key(v))
		assert.ErrorIs(t, err, ErrObjectNotFound)
		v = next
	}

	other, err := l.CreateBatch(ctx, ledgertest.SampleInput(), 7)
	require.NoError(t, err)
	ov, err := l.Verify(ctx, other.BatchID)
	require.NoError(t, err)
	_, _, err = svc.Certificate(ctx, ov)
	require.NoError(t, err)
	assert.Equal(t, 2, storage.Len())
}

func TestCertificateRefusesBrokenChain(t *testing.T) {
	_, v := verifiedBatch(t)
	v.Integrity.Valid = false
	r := &fakeRenderer{}
	_, _, err := NewService(r, NewInMemoryStorage(), nil).Certificate(context.Background(), v)
	assert.ErrorIs(t, err, ErrChainBroken)
	assert.Zero(t, r.calls)
}

func TestCertificateRenderFailure(t *testing.T) {
	_, v := verifiedBatch(t)
	boom := errors.New("chromium not found")
	storage := NewInMemoryStorage()
	_, _, err := NewService(&fakeRenderer{err: boom}, storage, nil).Certificate(context.Background(), v)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, _, err = storage.GetObject(context.Background(), Key(v))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestRenderHTML(t *testing.T) {
	_, v := verifiedBatch(t)
	v.History[0].Notes = "<script>alert(1)</script>"
	loc := time.FixedZone("IST", 5*3600+30*60)

	html, err := RenderHTML(v, loc, time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, html, v.BatchID)
	assert.Contains(t, html, "Turmeric")
	assert.Contains(t, html, "8.90 / 10")
	assert.Contains(t, html, "2025-03-01 12:00 IST")
	assert.Contains(t, html, "Verified: 1 linked records")
	assert.NotContains(t, html, "<script>")
}

func TestInMemoryStorage(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()
	require.NoError(t, s.PutObject(ctx, "k", []byte("v"), contentTypePDF))

	body, meta, err := s.GetObject(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), body)
	assert.Equal(t, contentTypePDF, meta.ContentType)
	assert.Equal(t, 1, meta.Size)

	_, _, err = s.GetObject(ctx, "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, s.DeleteObject(ctx, "k"))
	require.NoError(t, s.DeleteObject(ctx, "k"))
	assert.Zero(t, s.Len())
}
