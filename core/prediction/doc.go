// Package prediction forecasts the hourly production and streetlight
// consumption of a harvesting site. Forecasts are optional inputs: callers
// may pass their own instead.
package prediction
