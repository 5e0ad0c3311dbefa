package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = rl.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)

	ok, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok, "clients are counted separately")

	now = now.Add(61 * time.Second)
	ok, _ = rl.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow("x")
		require.True(t, ok)
	}
	var nilLimiter *RateLimiter
	ok, _ := nilLimiter.Allow("x")
	assert.True(t, ok)
}

func TestFormatRetryAfter(t *testing.T) {
	assert.Equal(t, "1", formatRetryAfter(0))
	assert.Equal(t, "1", formatRetryAfter(300*time.Millisecond))
	assert.Equal(t, "2", formatRetryAfter(1500*time.Millisecond))
	assert.Equal(t, "60", formatRetryAfter(time.Minute))
}

func TestFlexNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		err  bool
	}{
		{`10`, "10", false},
		{`6.5`, "6.5", false},
		{`"500"`, "500", false},
		{`"ten"`, "ten", false},
		{`null`, "", false},
		{`true`, "", true},
		{`[1]`, "", true},
	}
	for _, tt := range tests {
		var f flexNumber
		err := json.Unmarshal([]byte(tt.raw), &f)
		if tt.err {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, string(f), tt.raw)
	}
}
