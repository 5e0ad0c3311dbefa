package ledger

import (
	"encoding/json"
	"time"
)

// Batch is one registered herb lot. Header fields are fixed at registration;
// History only ever grows.
type Batch struct {
	BatchID        string       `json:"batchId"`
	FarmerName     string       `json:"farmerName"`
	Location       string       `json:"location"`
	HerbType       string       `json:"herbType"`
	QuantityKg     float64      `json:"quantityKg"`
	GPSCoordinates string       `json:"gpsCoordinates"`
	HarvestDate    string       `json:"harvestDate"`
	FarmingMethod  string       `json:"farmingMethod"`
	QualityScore   float64      `json:"qualityScore"`
	ScoreInputs    ScoreInputs  `json:"scoreInputs"`
	CreatedAt      time.Time    `json:"createdAt"`
	History        []TraceEvent `json:"history"`
}

// ScoreInputs are the agronomic readings the quality score was computed from.
type ScoreInputs struct {
	SoilPH        float64 `json:"soil_ph"`
	RainfallMM    float64 `json:"rainfall_mm"`
	SunlightHours float64 `json:"sunlight_hours"`
}

// TraceEvent is one committed supply-chain checkpoint.
type TraceEvent struct {
	Sequence       int       `json:"sequence"`
	Status         Status    `json:"status"`
	Stakeholder    string    `json:"stakeholder"`
	Location       string    `json:"location"`
	Notes          string    `json:"notes"`
	EventTimestamp time.Time `json:"eventTimestamp"`
	BlockTimestamp time.Time `json:"blockTimestamp"`
	PrevHash       string    `json:"prevHash"`
	Hash           string    `json:"hash"`
}

// MarshalJSON adds "timestamp", a copy of eventTimestamp that the history
// view reads.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	type event TraceEvent
	return json.Marshal(struct {
		event
		Timestamp time.Time `json:"timestamp"`
	}{event(e), e.EventTimestamp})
}

// BatchInput carries registration fields as the caller declared them.
// Numeric fields are strings so malformed values surface as field errors
// rather than decode failures.
type BatchInput struct {
	FarmerName     string
	Location       string
	HerbType       string
	Quantity       string
	GPSCoordinates string
	HarvestDate    string
	FarmingMethod  string
	SoilPH         string
	RainfallMM     string
	SunlightHours  string
}

// EventInput is a supply-chain update request.
type EventInput struct {
	Status      string
	Stakeholder string
	Location    string
	Notes       string
	Timestamp   string
}

// BatchSummary is the slice of a batch the stats scan needs.
type BatchSummary struct {
	BatchID    string
	FarmerName string
	HerbType   string
	Events     int
}

// Head returns the most recent event. Every stored batch has at least the
// genesis event.
func (b Batch) Head() TraceEvent {
	return b.History[len(b.History)-1]
}

func (b Batch) clone() Batch {
	out := b
	out.History = append([]TraceEvent(nil), b.History...)
	return out
}
