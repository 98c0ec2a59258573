package battery

import (
	"fmt"
	"math"

	"github.com/kilianp07/ess/core/model"
)

// Config describes the cells of a pack and the cutoffs of its charge cycle.
// It is immutable for the lifetime of a Battery.
type Config struct {
	CellCapacityMAh float64 `json:"cell_capacity_mah"`
	Series          int     `json:"series"`
	Parallel        int     `json:"parallel"`
	// VoltageFull is the CC to CV switch-over and CV hold voltage per cell.
	VoltageFull    float64 `json:"voltage_full"`
	VoltageEmpty   float64 `json:"voltage_empty"`
	NominalVoltage float64 `json:"nominal_voltage"`

	TemperatureK    float64 `json:"temperature_k"`
	MinTemperatureK float64 `json:"min_temperature_k"`
	MaxTemperatureK float64 `json:"max_temperature_k"`

	InitialSOC float64 `json:"initial_soc"`
	// FloorSOC is the discharge cutoff in percent.
	FloorSOC float64 `json:"floor_soc"`

	// CVCutoffC ends the CV phase once the tapering current drops to it.
	CVCutoffC    float64 `json:"cv_cutoff_c"`
	CVTauMinutes float64 `json:"cv_tau_minutes"`
	RestMinutes  float64 `json:"rest_minutes"`
	// LoadHours is the streetlight operating time the discharge rate is
	// scaled to. The nominal discharge rate assumes 12 hours.
	LoadHours float64 `json:"load_hours"`

	// Curve overrides the default open-circuit voltage table.
	Curve []CurvePoint `json:"curve"`
}

// DefaultConfig returns the 7S4P pack of 3000 mAh cells the streetlights use.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.CellCapacityMAh == 0 {
		c.CellCapacityMAh = 3000
	}
	if c.Series == 0 {
		c.Series = 7
	}
	if c.Parallel == 0 {
		c.Parallel = 4
	}
	if c.VoltageFull == 0 {
		c.VoltageFull = 4.2
	}
	if c.VoltageEmpty == 0 {
		c.VoltageEmpty = 3.0
	}
	if c.NominalVoltage == 0 {
		c.NominalVoltage = 3.7
	}
	if c.TemperatureK == 0 {
		c.TemperatureK = 298.15
	}
	if c.MinTemperatureK == 0 {
		c.MinTemperatureK = 233.15
	}
	if c.MaxTemperatureK == 0 {
		c.MaxTemperatureK = 333.15
	}
	if c.CVCutoffC == 0 {
		c.CVCutoffC = 0.02
	}
	if c.CVTauMinutes == 0 {
		c.CVTauMinutes = 60
	}
	if c.RestMinutes == 0 {
		c.RestMinutes = 120
	}
	if c.LoadHours == 0 {
		c.LoadHours = 12
	}
}

// Validate reports a model.ErrConfiguration for unusable settings.
func (c Config) Validate() error {
	switch {
	case !(c.CellCapacityMAh > 0) || math.IsInf(c.CellCapacityMAh, 0):
		return model.ConfigError("cell capacity must be positive")
	case c.Series <= 0 || c.Parallel <= 0:
		return model.ConfigError("series and parallel counts must be positive")
	case !(c.VoltageEmpty > 0) || c.VoltageFull <= c.VoltageEmpty:
		return model.ConfigError("voltage_full must be above voltage_empty")
	case c.MinTemperatureK <= 0 || c.MaxTemperatureK <= c.MinTemperatureK:
		return model.ConfigError("temperature bounds are invalid")
	case c.TemperatureK < c.MinTemperatureK || c.TemperatureK > c.MaxTemperatureK:
		return model.ConfigError("temperature %.2fK outside bounds", c.TemperatureK)
	case c.FloorSOC < 0 || c.FloorSOC >= 100:
		return model.ConfigError("floor_soc must be in [0,100)")
	case c.InitialSOC < 0 || c.InitialSOC > 100:
		return model.ConfigError("initial_soc must be in [0,100]")
	case c.CVCutoffC <= 0 || c.CVTauMinutes <= 0 || c.RestMinutes <= 0 || c.LoadHours <= 0:
		return model.ConfigError("cutoff, tau, rest and load durations must be positive")
	}
	return nil
}

// CellAh is the capacity of one cell in amp-hours.
func (c Config) CellAh() float64 { return c.CellCapacityMAh / 1000 }

// CapacityAh is the pack capacity at pack voltage.
func (c Config) CapacityAh() float64 { return c.CellAh() * float64(c.Parallel) }

// EnergyCapacityWh is the nominal energy the pack stores when full.
func (c Config) EnergyCapacityWh() float64 {
	return c.CapacityAh() * c.NominalVoltage * float64(c.Series)
}

// UsableEnergyWh is the energy one night may draw: the nominal capacity
// above the discharge floor.
func (c Config) UsableEnergyWh() float64 {
	return c.EnergyCapacityWh() * (100 - c.FloorSOC) / 100
}

// PackNominalVoltage is the nominal voltage of the series string.
func (c Config) PackNominalVoltage() float64 { return c.NominalVoltage * float64(c.Series) }

// CellConfiguration renders the layout, e.g. "7S4P".
func (c Config) CellConfiguration() string { return fmt.Sprintf("%dS%dP", c.Series, c.Parallel) }

// TotalCells is Series x Parallel.
func (c Config) TotalCells() int { return c.Series * c.Parallel }
