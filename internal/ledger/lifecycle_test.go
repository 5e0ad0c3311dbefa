package ledger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLifecycleTransitions(t *testing.T) {
	lc := DefaultLifecycle()
	assert.Equal(t, StatusHarvested, lc.Genesis())
	assert.Equal(t, DefaultStages, lc.Stages())

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusHarvested, StatusProcessing, true},
		{StatusHarvested, StatusInStore, true},
		{StatusProcessing, StatusQualityTested, true},
		{StatusPackaged, StatusShipped, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusProcessing, StatusHarvested, false},
		{StatusInStore, StatusShipped, false},
		{StatusInStore, StatusInStore, false},
		{"Lost", StatusProcessing, false},
		{StatusHarvested, "Lost", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lc.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestNewLifecycleRejects(t *testing.T) {
	_, err := NewLifecycle()
	assert.Error(t, err)
	_, err = NewLifecycle(StatusProcessing, StatusHarvested)
	assert.ErrorContains(t, err, "first stage")
	_, err = NewLifecycle(StatusHarvested, StatusProcessing, StatusProcessing)
	assert.ErrorContains(t, err, "duplicate")
	_, err = NewLifecycle(StatusHarvested, "")
	assert.ErrorContains(t, err, "blank")
}

func TestStagesIsACopy(t *testing.T) {
	lc := DefaultLifecycle()
	s := lc.Stages()
	s[0] = "Mutated"
	assert.Equal(t, StatusHarvested, lc.Genesis())
}

func TestRandomAllocatorShape(t *testing.T) {
	a := NewRandomAllocator()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := a.Allocate()
		require.NoError(t, err)
		assert.True(t, ValidBatchID(id), id)
		assert.Len(t, id, len(BatchIDPrefix)+8)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestRandomAllocatorDeterministicSource(t *testing.T) {
	a := RandomAllocator{rand: bytes.NewReader([]byte{0, 0, 0, 0, 0})}
	id, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "BATCH-AAAAAAAA", id)

	_, err = a.Allocate()
	assert.Error(t, err)
}

func TestValidBatchID(t *testing.T) {
	assert.True(t, ValidBatchID("BATCH-ABC234"))
	assert.False(t, ValidBatchID("batch-abc"))
	assert.False(t, ValidBatchID("BATCH-"))
	assert.False(t, ValidBatchID("BATCH-AB/CD"))
}
