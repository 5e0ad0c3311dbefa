// Package scoring computes the agronomic quality score attached to a batch
// at registration.
package scoring

import (
	"context"
	"math"
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Inputs are the readings a score is computed from. Field names on the wire
// match the model service contract.
type Inputs struct {
	SoilPH        float64 `json:"soil_ph"`
	RainfallMM    float64 `json:"rainfall_mm"`
	SunlightHours float64 `json:"sunlight_hours"`
}

// Scorer maps inputs to a score in [MinScore, MaxScore].
type Scorer interface {
	Score(ctx context.Context, in Inputs) (float64, error)
}

// Func adapts a plain function to Scorer.
type Func func(ctx context.Context, in Inputs) (float64, error)

func (f Func) Score(ctx context.Context, in Inputs) (float64, error) { return f(ctx, in) }

// Normalize clamps v into range and rounds to two decimals.
func Normalize(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	v = math.Max(MinScore, math.Min(MaxScore, v))
	return math.Round(v*100) / 100
}
