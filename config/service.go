package config

import (
	"time"

	"github.com/kilianp07/ess/core/model"
)

// SimulationConfig sets the starting battery of day simulations.
type SimulationConfig struct {
	// InitialSOC is the state of charge simulations start from.
	InitialSOC float64 `json:"initial_soc"`
	// FromLive starts simulations from a copy of the live battery instead.
	FromLive bool `json:"from_live"`
}

func (c *SimulationConfig) SetDefaults() {
	if c.InitialSOC == 0 {
		c.InitialSOC = 30
	}
}

func (c SimulationConfig) Validate() error {
	if c.InitialSOC < 0 || c.InitialSOC > 100 {
		return model.ConfigError("initial_soc %.2f outside [0,100]", c.InitialSOC)
	}
	return nil
}

// ServiceConfig drives the live control loop.
type ServiceConfig struct {
	// Location is the site of the live battery.
	Location     string        `json:"location"`
	TickInterval time.Duration `json:"tick_interval"`
	// AvgWindSpeed feeds the production forecast used when no reading has
	// arrived over MQTT.
	AvgWindSpeed float64 `json:"avg_wind_speed"`
}

func (c *ServiceConfig) SetDefaults() {
	if c.Location == "" {
		c.Location = "building5"
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Minute
	}
	if c.AvgWindSpeed == 0 {
		c.AvgWindSpeed = 5
	}
}

func (c ServiceConfig) Validate() error {
	if c.TickInterval < time.Second {
		return model.ConfigError("tick_interval must be at least 1s, got %s", c.TickInterval)
	}
	if c.AvgWindSpeed < 0 {
		return model.ConfigError("avg_wind_speed must not be negative")
	}
	return nil
}

// StoreConfig selects where the live battery state is persisted.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "ess.db"
	}
}

func (c StoreConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "sqlite" {
		return model.ConfigError("unknown store backend %s", c.Backend)
	}
	return nil
}
