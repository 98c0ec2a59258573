package prediction

import (
	"time"

	"github.com/kilianp07/ess/core/model"
)

// MockEngine returns fixed forecasts per location.
type MockEngine struct {
	Forecasts map[string][]model.HourlyForecast
	Err       error
}

// PredictDay returns a copy of the configured forecast for location.
func (m MockEngine) PredictDay(location string, date time.Time, avgWindSpeed float64) ([]model.HourlyForecast, error) {
	_, _ = date, avgWindSpeed
	if m.Err != nil {
		return nil, m.Err
	}
	fc, ok := m.Forecasts[location]
	if !ok {
		return nil, model.InvalidInput("unknown location %q", location)
	}
	cp := make([]model.HourlyForecast, len(fc))
	copy(cp, fc)
	return cp, nil
}
