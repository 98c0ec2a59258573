package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/metrics"
	"github.com/kilianp07/ess/core/prediction"
	"github.com/kilianp07/ess/core/rate"
	"github.com/kilianp07/ess/core/scheduler"
	"github.com/kilianp07/ess/infra/monitoring"
	"github.com/kilianp07/ess/infra/mqtt"
)

type Config struct {
	Battery    battery.Config          `json:"battery"`
	Rate       rate.Config             `json:"rate"`
	Scheduler  scheduler.Config        `json:"scheduler"`
	Simulation SimulationConfig        `json:"simulation"`
	Service    ServiceConfig           `json:"service"`
	Sites      prediction.SiteConfig   `json:"sites"`
	MQTT       mqtt.Config             `json:"mqtt"`
	Metrics    metrics.Config          `json:"metrics"`
	Store      StoreConfig             `json:"store"`
	Sentry     monitoring.SentryConfig `json:"sentry"`
}

// EnvPrefix marks environment overrides. A double underscore separates
// sections: K_BATTERY__SERIES=8 sets battery.series.
const EnvPrefix = "K_"

// Load reads the file at path, applies environment overrides, then defaults
// and validation. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section. The daytime window of the scheduler is
// shared with the prediction sites.
func (c *Config) SetDefaults() {
	c.Battery.SetDefaults()
	c.Rate.SetDefaults()
	c.Scheduler.SetDefaults()
	if c.Sites.DayStartHour == 0 && c.Sites.DayEndHour == 0 {
		c.Sites.DayStartHour = c.Scheduler.DayStartHour
		c.Sites.DayEndHour = c.Scheduler.DayEndHour
	}
	c.Sites.SetDefaults()
	c.Simulation.SetDefaults()
	c.Service.SetDefaults()
	c.Store.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Battery.Validate(); err != nil {
		return fmt.Errorf("battery: %w", err)
	}
	if err := c.Rate.Validate(); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Sites.Validate(); err != nil {
		return fmt.Errorf("sites: %w", err)
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
