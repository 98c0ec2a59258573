// Package simulator replays one day of hourly forecasts against a private
// copy of a battery. Runs are deterministic and never touch the live battery.
package simulator
