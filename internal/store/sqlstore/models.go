package sqlstore

import (
	"time"

	"github.com/ayulink/herbtrace/internal/ledger"
)

// batchRecord is the GORM model for a batch header.
type batchRecord struct {
	BatchID        string    `gorm:"primaryKey;column:batch_id;type:varchar(32)"`
	FarmerName     string    `gorm:"column:farmer_name;not null"`
	Location       string    `gorm:"column:location;not null"`
	HerbType       string    `gorm:"column:herb_type;index:idx_batch_herb;not null"`
	QuantityKg     float64   `gorm:"column:quantity_kg;not null"`
	GPSCoordinates string    `gorm:"column:gps_coordinates;not null"`
	HarvestDate    string    `gorm:"column:harvest_date;not null"`
	FarmingMethod  string    `gorm:"column:farming_method;not null"`
	QualityScore   float64   `gorm:"column:quality_score;not null"`
	SoilPH         float64   `gorm:"column:soil_ph"`
	RainfallMM     float64   `gorm:"column:rainfall_mm"`
	SunlightHours  float64   `gorm:"column:sunlight_hours"`
	RegisteredAt   time.Time `gorm:"column:registered_at;index:idx_batch_registered;not null"`
	EventCount     int       `gorm:"column:event_count;not null;default:0"`
}

func (batchRecord) TableName() string { return "batches" }

// eventRecord is one row of a batch's history. The unique (batch_id,
// sequence) index rejects a second writer racing for the same slot.
type eventRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	BatchID        string    `gorm:"column:batch_id;type:varchar(32);uniqueIndex:idx_event_batch_seq,priority:1;not null"`
	Sequence       int       `gorm:"column:sequence;uniqueIndex:idx_event_batch_seq,priority:2;not null"`
	Status         string    `gorm:"column:status;index:idx_event_status;not null"`
	Stakeholder    string    `gorm:"column:stakeholder;not null"`
	Location       string    `gorm:"column:location;not null"`
	Notes          string    `gorm:"column:notes"`
	EventTimestamp time.Time `gorm:"column:event_timestamp;not null"`
	BlockTimestamp time.Time `gorm:"column:block_timestamp;not null"`
	PrevHash       string    `gorm:"column:prev_hash;type:varchar(64);not null"`
	Hash           string    `gorm:"column:hash;type:varchar(64);not null"`
}

func (eventRecord) TableName() string { return "trace_events" }

// summaryRow is the projection Summaries selects.
type summaryRow struct {
	BatchID    string
	FarmerName string
	HerbType   string
	EventCount int
}

func toBatchRecord(b ledger.Batch) batchRecord {
	return batchRecord{
		BatchID:        b.BatchID,
		FarmerName:     b.FarmerName,
		Location:       b.Location,
		HerbType:       b.HerbType,
		QuantityKg:     b.QuantityKg,
		GPSCoordinates: b.GPSCoordinates,
		HarvestDate:    b.HarvestDate,
		FarmingMethod:  b.FarmingMethod,
		QualityScore:   b.QualityScore,
		SoilPH:         b.ScoreInputs.SoilPH,
		RainfallMM:     b.ScoreInputs.RainfallMM,
		SunlightHours:  b.ScoreInputs.SunlightHours,
		RegisteredAt:   b.CreatedAt.UTC(),
		EventCount:     len(b.History),
	}
}

func (r batchRecord) toBatch(history []eventRecord) ledger.Batch {
	b := ledger.Batch{
		BatchID:        r.BatchID,
		FarmerName:     r.FarmerName,
		Location:       r.Location,
		HerbType:       r.HerbType,
		QuantityKg:     r.QuantityKg,
		GPSCoordinates: r.GPSCoordinates,
		HarvestDate:    r.HarvestDate,
		FarmingMethod:  r.FarmingMethod,
		QualityScore:   r.QualityScore,
		ScoreInputs: ledger.ScoreInputs{
			SoilPH:        r.SoilPH,
			RainfallMM:    r.RainfallMM,
			SunlightHours: r.SunlightHours,
		},
		CreatedAt: r.RegisteredAt.UTC(),
		History:   make([]ledger.TraceEvent, len(history)),
	}
	for i, ev := range history {
		b.History[i] = ev.toEvent()
	}
	return b
}

func toEventRecord(batchID string, ev ledger.TraceEvent) eventRecord {
	return eventRecord{
		BatchID:        batchID,
		Sequence:       ev.Sequence,
		Status:         string(ev.Status),
		Stakeholder:    ev.Stakeholder,
		Location:       ev.Location,
		Notes:          ev.Notes,
		EventTimestamp: ev.EventTimestamp.UTC(),
		BlockTimestamp: ev.BlockTimestamp.UTC(),
		PrevHash:       ev.PrevHash,
		Hash:           ev.Hash,
	}
}

func (r eventRecord) toEvent() ledger.TraceEvent {
	return ledger.TraceEvent{
		Sequence:       r.Sequence,
		Status:         ledger.Status(r.Status),
		Stakeholder:    r.Stakeholder,
		Location:       r.Location,
		Notes:          r.Notes,
		EventTimestamp: r.EventTimestamp.UTC(),
		BlockTimestamp: r.BlockTimestamp.UTC(),
		PrevHash:       r.PrevHash,
		Hash:           r.Hash,
	}
}
