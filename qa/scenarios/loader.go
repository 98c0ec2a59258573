package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ess/core/battery"
)

// BatteryDef overrides the default pack for a scenario.
type BatteryDef struct {
	InitialSOC  float64 `yaml:"initial_soc"`
	FloorSOC    float64 `yaml:"floor_soc"`
	RestMinutes float64 `yaml:"rest_minutes"`
	LoadHours   float64 `yaml:"load_hours"`
}

// Config returns the default configuration with the overrides applied.
func (b BatteryDef) Config() battery.Config {
	cfg := battery.DefaultConfig()
	cfg.InitialSOC = b.InitialSOC
	cfg.FloorSOC = b.FloorSOC
	if b.RestMinutes > 0 {
		cfg.RestMinutes = b.RestMinutes
	}
	if b.LoadHours > 0 {
		cfg.LoadHours = b.LoadHours
	}
	return cfg
}

// StepDef is one command sent to the controller.
type StepDef struct {
	// Action is start_charge, start_discharge, stop, step or auto.
	Action       string  `yaml:"action"`
	ProductionWh float64 `yaml:"production_wh"`
	Night        bool    `yaml:"night"`
	Minutes      float64 `yaml:"minutes"`
	// ExpectError names the error kind the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
	// ExpectPhase is checked after the step when set.
	ExpectPhase string `yaml:"expect_phase,omitempty"`
}

type Expected struct {
	Phase       string   `yaml:"phase"`
	SOC         *float64 `yaml:"soc,omitempty"`
	Transitions int      `yaml:"transitions"`
}

type Scenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Battery     BatteryDef `yaml:"battery"`
	Steps       []StepDef  `yaml:"steps"`
	Expected    Expected   `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
