package scoring

import "context"

// LinearModel is an in-process linear regression over the three inputs.
type LinearModel struct {
	Intercept     float64
	SoilPH        float64
	RainfallMM    float64
	SunlightHours float64
}

// DefaultModel is used when no model service is configured.
func DefaultModel() LinearModel {
	return LinearModel{
		Intercept:     1.0,
		SoilPH:        0.6,
		RainfallMM:    0.004,
		SunlightHours: 0.25,
	}
}

func (m LinearModel) Score(ctx context.Context, in Inputs) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw := m.Intercept + m.SoilPH*in.SoilPH + m.RainfallMM*in.RainfallMM + m.SunlightHours*in.SunlightHours
	return Normalize(raw), nil
}
