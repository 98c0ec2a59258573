package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ess/core/model"
)

// Config defines the planning parameters.
type Config struct {
	// DayStartHour and DayEndHour bound the daytime window [start, end).
	DayStartHour int `json:"day_start_hour" yaml:"day_start_hour"`
	DayEndHour   int `json:"day_end_hour" yaml:"day_end_hour"`
	// IdleThresholdWh is the production an hour must exceed to be planned
	// as charging.
	IdleThresholdWh float64 `json:"idle_threshold_wh" yaml:"idle_threshold_wh"`
	// UsableCapacityWh caps the night discharge. Zero uses the capacity the
	// scheduler was built with.
	UsableCapacityWh float64 `json:"usable_capacity_wh" yaml:"usable_capacity_wh"`
	ChargeEfficiency float64 `json:"charge_efficiency" yaml:"charge_efficiency"`
	// StreetlightLoadWh is the default hourly night load used when a forecast
	// hour carries no consumption.
	StreetlightLoadWh float64 `json:"streetlight_load_wh" yaml:"streetlight_load_wh"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.DayStartHour == 0 && c.DayEndHour == 0 {
		c.DayStartHour, c.DayEndHour = 6, 18
	}
	if c.ChargeEfficiency == 0 {
		c.ChargeEfficiency = 1
	}
}

// Validate reports a model.ErrConfiguration for unusable settings.
func (c Config) Validate() error {
	if c.DayStartHour < 0 || c.DayEndHour > model.HoursPerDay || c.DayStartHour >= c.DayEndHour {
		return model.ConfigError("daytime window [%d,%d) is invalid", c.DayStartHour, c.DayEndHour)
	}
	if c.IdleThresholdWh < 0 || c.UsableCapacityWh < 0 || c.StreetlightLoadWh < 0 {
		return model.ConfigError("scheduler thresholds and capacities must not be negative")
	}
	if c.ChargeEfficiency <= 0 || c.ChargeEfficiency > 1 {
		return model.ConfigError("charge_efficiency must be in (0,1]")
	}
	return nil
}

// LoadConfig reads a scheduler section from a standalone JSON or YAML file,
// chosen by extension. It backs the --scheduler-config override of the CLI.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	cfg, err := DecodeConfig(f, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig reads a Config in the given format from r.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, model.ConfigError("unsupported scheduler config format %q", format)
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}
