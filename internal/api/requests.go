package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ayulink/herbtrace/internal/ledger"
)

const maxBodyBytes = 64 << 10

// flexNumber accepts a JSON number or a string and keeps its text, so that
// "10", 10 and "ten" all reach validation instead of failing the decode.
type flexNumber string

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("must be a number or numeric string")
	}
	*f = flexNumber(n.String())
	return nil
}

type registerRequest struct {
	FarmerName     string     `json:"farmerName"`
	Location       string     `json:"location"`
	HerbType       string     `json:"herbType"`
	Quantity       flexNumber `json:"quantity"`
	QuantityKg     flexNumber `json:"quantityKg"`
	GPSCoordinates string     `json:"gpsCoordinates"`
	HarvestDate    string     `json:"harvestDate"`
	FarmingMethod  string     `json:"farmingMethod"`
	SoilPH         flexNumber `json:"soil_ph"`
	RainfallMM     flexNumber `json:"rainfall_mm"`
	SunlightHours  flexNumber `json:"sunlight_hours"`
}

func (r registerRequest) input() ledger.BatchInput {
	qty := r.Quantity
	if qty == "" {
		qty = r.QuantityKg
	}
	return ledger.BatchInput{
		FarmerName:     r.FarmerName,
		Location:       r.Location,
		HerbType:       r.HerbType,
		Quantity:       string(qty),
		GPSCoordinates: r.GPSCoordinates,
		HarvestDate:    r.HarvestDate,
		FarmingMethod:  r.FarmingMethod,
		SoilPH:         string(r.SoilPH),
		RainfallMM:     string(r.RainfallMM),
		SunlightHours:  string(r.SunlightHours),
	}
}

type registerResponse struct {
	BatchID         string  `json:"batchId"`
	QualityScore    float64 `json:"qualityScore"`
	TransactionHash string  `json:"transactionHash"`
}

type updateRequest struct {
	Status      string `json:"status"`
	Stakeholder string `json:"stakeholder"`
	Location    string `json:"location"`
	Notes       string `json:"notes"`
	Timestamp   string `json:"timestamp"`
}

func (r updateRequest) input() ledger.EventInput {
	return ledger.EventInput{
		Status:      r.Status,
		Stakeholder: r.Stakeholder,
		Location:    r.Location,
		Notes:       r.Notes,
		Timestamp:   r.Timestamp,
	}
}

type lifecycleResponse struct {
	Stages       []ledger.Status `json:"stages"`
	Stakeholders []string        `json:"stakeholders"`
}

// errBadRequest marks body decoding failures.
type errBadRequest struct{ err error }

func (e errBadRequest) Error() string { return "invalid JSON: " + e.err.Error() }
func (e errBadRequest) Unwrap() error { return e.err }

func decodeJSON(body io.ReadCloser, v any) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadRequest{errors.New("empty body")}
		}
		return errBadRequest{err}
	}
	if dec.More() {
		return errBadRequest{fmt.Errorf("unexpected data after JSON object")}
	}
	return nil
}
