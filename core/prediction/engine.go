package prediction

import (
	"time"

	"github.com/kilianp07/ess/core/model"
)

// Engine forecasts one day of production and consumption for a location.
type Engine interface {
	// PredictDay returns 24 hourly forecasts ordered by hour.
	PredictDay(location string, date time.Time, avgWindSpeed float64) ([]model.HourlyForecast, error)
}

// WindProfile spreads a daily average wind speed over the day: calmer before
// dawn, stronger in the afternoon.
func WindProfile(avg float64) [model.HoursPerDay]float64 {
	var out [model.HoursPerDay]float64
	for h := range out {
		switch {
		case h < 6:
			out[h] = avg * 0.8
		case h >= 12 && h < 18:
			out[h] = avg * 1.2
		default:
			out[h] = avg
		}
	}
	return out
}
