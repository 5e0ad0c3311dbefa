package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Integrity is the result of replaying a batch's hash chain.
type Integrity struct {
	Valid    bool   `json:"valid"`
	Length   int    `json:"length"`
	HeadHash string `json:"headHash"`
	BrokenAt *int   `json:"brokenAt,omitempty"`
}

// headerHash binds the immutable registration fields. It is the genesis
// event's PrevHash, so editing the header breaks the chain.
func headerHash(b Batch) string {
	return digest(
		b.BatchID,
		b.FarmerName,
		b.Location,
		b.HerbType,
		formatFloat(b.QuantityKg),
		b.GPSCoordinates,
		b.HarvestDate,
		b.FarmingMethod,
		formatFloat(b.QualityScore),
		formatFloat(b.ScoreInputs.SoilPH),
		formatFloat(b.ScoreInputs.RainfallMM),
		formatFloat(b.ScoreInputs.SunlightHours),
	)
}

func hashEvent(batchID string, ev TraceEvent) string {
	return digest(
		batchID,
		strconv.Itoa(ev.Sequence),
		string(ev.Status),
		ev.Stakeholder,
		ev.Location,
		ev.Notes,
		formatTime(ev.EventTimestamp),
		formatTime(ev.BlockTimestamp),
		ev.PrevHash,
	)
}

// CheckChain recomputes every link of b's history.
func CheckChain(b Batch) Integrity {
	out := Integrity{Valid: true, Length: len(b.History)}
	prev := headerHash(b)
	for i, ev := range b.History {
		if ev.Sequence != i || ev.PrevHash != prev || hashEvent(b.BatchID, ev) != ev.Hash {
			at := i
			out.Valid = false
			out.BrokenAt = &at
			return out
		}
		prev = ev.Hash
	}
	out.HeadHash = prev
	return out
}

// digest hashes fields as a JSON string array, so no field text can pass
// for a boundary between two fields.
func digest(fields ...string) string {
	payload, _ := json.Marshal(fields)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
