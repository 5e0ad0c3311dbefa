package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceEventJSONCarriesTimestampAlias(t *testing.T) {
	at := time.Date(2025, 1, 16, 9, 30, 0, 0, time.UTC)
	ev := TraceEvent{
		Sequence:       1,
		Status:         StatusProcessing,
		Stakeholder:    "Processor",
		Location:       "Jaipur",
		EventTimestamp: at,
		BlockTimestamp: at.Add(time.Minute),
		PrevHash:       "p",
		Hash:           "h",
	}
	raw, err := json.Marshal(Batch{BatchID: "BATCH-AAAAAAAA", History: []TraceEvent{ev}})
	require.NoError(t, err)

	var out struct {
		History []map[string]any `json:"history"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.History, 1)
	got := out.History[0]
	assert.Equal(t, "2025-01-16T09:30:00Z", got["timestamp"])
	assert.Equal(t, "2025-01-16T09:30:00Z", got["eventTimestamp"])
	assert.Equal(t, "2025-01-16T09:31:00Z", got["blockTimestamp"])
	assert.Equal(t, "Processor", got["stakeholder"])

	evRaw, err := json.Marshal(ev)
	require.NoError(t, err)
	var back TraceEvent
	require.NoError(t, json.Unmarshal(evRaw, &back))
	assert.Equal(t, ev, back)
}
