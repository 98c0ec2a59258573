package model

import "math"

// HoursPerDay is the number of hourly slots in a forecast or plan.
const HoursPerDay = 24

// HourlyForecast is the production and consumption expected for one hour of
// the day. It is produced by the forecasting collaborator and never mutated.
type HourlyForecast struct {
	Hour               int      `json:"hour"`
	PowerProductionWh  float64  `json:"power_production_wh"`
	PowerConsumptionWh float64  `json:"power_consumption_wh"`
	WindSpeed          *float64 `json:"wind_speed,omitempty"`
}

// ValidateDay checks that fc holds exactly one entry per hour of the day with
// finite, non-negative values. It returns the entries indexed by hour.
func ValidateDay(fc []HourlyForecast) ([HoursPerDay]HourlyForecast, error) {
	var byHour [HoursPerDay]HourlyForecast
	if len(fc) != HoursPerDay {
		return byHour, InvalidInput("forecast must have %d hourly entries, got %d", HoursPerDay, len(fc))
	}
	var seen [HoursPerDay]bool
	for _, f := range fc {
		if f.Hour < 0 || f.Hour >= HoursPerDay {
			return byHour, InvalidInput("forecast hour %d out of range", f.Hour)
		}
		if seen[f.Hour] {
			return byHour, InvalidInput("duplicate forecast for hour %d", f.Hour)
		}
		if !finiteNonNegative(f.PowerProductionWh) || !finiteNonNegative(f.PowerConsumptionWh) {
			return byHour, InvalidInput("forecast for hour %d has invalid power values", f.Hour)
		}
		seen[f.Hour] = true
		byHour[f.Hour] = f
	}
	return byHour, nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// IsNighttime reports whether hour lies outside the daytime window
// [dayStart, dayEnd).
func IsNighttime(hour, dayStart, dayEnd int) bool {
	return hour < dayStart || hour >= dayEnd
}
