package scoring

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{8.9, 8.9},
		{8.456, 8.46},
		{-3, 0},
		{12.7, 10},
		{math.NaN(), 0},
		{math.Inf(1), 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "%v", tt.in)
	}
}

func TestDefaultModel(t *testing.T) {
	m := DefaultModel()
	got, err := m.Score(context.Background(), Inputs{SoilPH: 6.5, RainfallMM: 500, SunlightHours: 8})
	require.NoError(t, err)
	assert.Equal(t, 8.9, got)

	got, err = m.Score(context.Background(), Inputs{SoilPH: 14, RainfallMM: 20000, SunlightHours: 24})
	require.NoError(t, err)
	assert.Equal(t, MaxScore, got)

	got, err = m.Score(context.Background(), Inputs{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestDefaultModelHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DefaultModel().Score(ctx, Inputs{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		var in Inputs
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, Inputs{SoilPH: 6.5, RainfallMM: 500, SunlightHours: 8}, in)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quality_score": 7.456}`))
	}))
	defer srv.Close()

	got, err := NewRemoteScorer(srv.URL+"/", time.Second).Score(context.Background(), Inputs{SoilPH: 6.5, RainfallMM: 500, SunlightHours: 8})
	require.NoError(t, err)
	assert.Equal(t, 7.46, got)
}

func TestRemoteScorerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"quality_score": 15}`))
	}))
	defer srv.Close()

	got, err := NewRemoteScorer(srv.URL, time.Second).Score(context.Background(), Inputs{})
	require.NoError(t, err)
	assert.Equal(t, MaxScore, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoteScorerClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewRemoteScorer(srv.URL, time.Second, WithRetries(5)).Score(context.Background(), Inputs{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteScorerMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score": 4}`))
	}))
	defer srv.Close()

	_, err := NewRemoteScorer(srv.URL, time.Second).Score(context.Background(), Inputs{})
	assert.ErrorContains(t, err, "quality_score")
}

func TestRemoteScorerGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRemoteScorer(srv.URL, time.Second, WithRetries(1)).Score(context.Background(), Inputs{})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
