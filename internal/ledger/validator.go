package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

const (
	maxTextLen  = 200
	maxNotesLen = 1000
)

// eventTimeLayouts are tried in order for caller-declared event times.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type batchFields struct {
	header     Batch
	harvestUTC time.Time
}

func validateBatch(in BatchInput) (batchFields, []FieldError) {
	errs := make([]FieldError, 0)
	var out batchFields

	required := []struct {
		path, value string
	}{
		{"farmerName", in.FarmerName},
		{"location", in.Location},
		{"herbType", in.HerbType},
		{"gpsCoordinates", in.GPSCoordinates},
		{"harvestDate", in.HarvestDate},
		{"farmingMethod", in.FarmingMethod},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fieldErr("HERB-REQ-001", f.path, "is required"))
			continue
		}
		if len(f.value) > maxTextLen {
			errs = append(errs, fieldErr("HERB-LIMIT-001", f.path, fmt.Sprintf("must be at most %d characters", maxTextLen)))
		}
	}

	qty, err := parseNumber(in.Quantity)
	switch {
	case err != nil:
		errs = append(errs, fieldErr("HERB-NUM-001", "quantity", err.Error()))
	case qty <= 0:
		errs = append(errs, fieldErr("HERB-NUM-002", "quantity", "must be positive"))
	}

	if strings.TrimSpace(in.GPSCoordinates) != "" {
		if _, _, err := parseGPS(in.GPSCoordinates); err != nil {
			errs = append(errs, fieldErr("HERB-GPS-001", "gpsCoordinates", err.Error()))
		}
	}

	var harvest time.Time
	if strings.TrimSpace(in.HarvestDate) != "" {
		harvest, err = parseHarvestDate(in.HarvestDate)
		if err != nil {
			errs = append(errs, fieldErr("HERB-DATE-001", "harvestDate", err.Error()))
		}
	}

	inputs, inputErrs := validateScoreInputs(in)
	errs = append(errs, inputErrs...)

	out.header = Batch{
		FarmerName:     strings.TrimSpace(in.FarmerName),
		Location:       strings.TrimSpace(in.Location),
		HerbType:       strings.TrimSpace(in.HerbType),
		QuantityKg:     qty,
		GPSCoordinates: strings.TrimSpace(in.GPSCoordinates),
		HarvestDate:    strings.TrimSpace(in.HarvestDate),
		FarmingMethod:  strings.TrimSpace(in.FarmingMethod),
		ScoreInputs:    inputs,
	}
	out.harvestUTC = harvest
	return out, errs
}

func validateScoreInputs(in BatchInput) (ScoreInputs, []FieldError) {
	errs := make([]FieldError, 0)
	check := func(path, raw string, lo, hi float64) float64 {
		v, err := parseNumber(raw)
		if err != nil {
			errs = append(errs, fieldErr("HERB-NUM-001", path, err.Error()))
			return 0
		}
		if v < lo || v > hi {
			errs = append(errs, fieldErr("HERB-NUM-003", path, fmt.Sprintf("must be between %s and %s", formatFloat(lo), formatFloat(hi))))
		}
		return v
	}
	inputs := ScoreInputs{
		SoilPH:        check("soil_ph", in.SoilPH, 0, 14),
		RainfallMM:    check("rainfall_mm", in.RainfallMM, 0, 20000),
		SunlightHours: check("sunlight_hours", in.SunlightHours, 0, 24),
	}
	return inputs, errs
}

func validateScore(score float64) []FieldError {
	if math.IsNaN(score) || score < 0 || score > 10 {
		return []FieldError{fieldErr("HERB-SCORE-001", "qualityScore", "must be between 0 and 10")}
	}
	return nil
}

func (l *Ledger) validateEvent(in EventInput) (Status, time.Time, []FieldError) {
	errs := make([]FieldError, 0)
	status := Status(in.Status)
	switch {
	case in.Status == "":
		errs = append(errs, fieldErr("TRACE-REQ-001", "status", "is required"))
	case !l.lifecycle.Known(status):
		errs = append(errs, fieldErr("TRACE-CODE-001", "status", fmt.Sprintf("unknown status %q", in.Status)))
	}
	if strings.TrimSpace(in.Stakeholder) == "" {
		errs = append(errs, fieldErr("TRACE-REQ-002", "stakeholder", "is required"))
	} else if len(in.Stakeholder) > maxTextLen {
		errs = append(errs, fieldErr("TRACE-LIMIT-001", "stakeholder", fmt.Sprintf("must be at most %d characters", maxTextLen)))
	}
	if strings.TrimSpace(in.Location) == "" {
		errs = append(errs, fieldErr("TRACE-REQ-003", "location", "is required"))
	} else if len(in.Location) > maxTextLen {
		errs = append(errs, fieldErr("TRACE-LIMIT-001", "location", fmt.Sprintf("must be at most %d characters", maxTextLen)))
	}
	if len(in.Notes) > maxNotesLen {
		errs = append(errs, fieldErr("TRACE-LIMIT-002", "notes", fmt.Sprintf("must be at most %d characters", maxNotesLen)))
	}
	var declared time.Time
	if strings.TrimSpace(in.Timestamp) != "" {
		t, err := parseEventTime(in.Timestamp)
		if err != nil {
			errs = append(errs, fieldErr("TRACE-DATE-001", "timestamp", err.Error()))
		}
		declared = t
	}
	return status, declared, errs
}

func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("must be a number")
	}
	return v, nil
}

// parseGPS accepts "lat, long" in decimal degrees.
func parseGPS(raw string) (float64, float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("must be \"lat, long\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude must be a number")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude must be a number")
	}
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude out of range")
	}
	if lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("longitude out of range")
	}
	return lat, lng, nil
}

// parseHarvestDate accepts YYYY-MM-DD, falling back to DD-MM-YYYY.
func parseHarvestDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	var d openapi_types.Date
	if err := d.UnmarshalJSON([]byte(strconv.Quote(s))); err == nil {
		return d.Time.UTC(), nil
	}
	if t, err := time.Parse("02-01-2006", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be YYYY-MM-DD")
}

func parseEventTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("must be an RFC 3339 timestamp")
}
