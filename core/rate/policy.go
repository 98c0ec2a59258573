package rate

import (
	"math"
	"time"

	"github.com/kilianp07/ess/core/model"
)

const (
	DefaultReferenceWh   = 25804.8
	DefaultK             = 6.75e-9
	DefaultChargeBase    = 0.1
	DefaultDischargeBase = 0.0833

	// NominalLoadHours is the night length the discharge bases are sized for.
	NominalLoadHours = 12.0
)

// Config holds the tunable constants of the policy.
type Config struct {
	// ReferenceWh is the production above which rates are adapted.
	ReferenceWh float64 `json:"reference_wh"`
	// K scales the surplus production into the rate adjustment.
	K             float64 `json:"k"`
	ChargeBase    float64 `json:"charge_base"`
	DischargeBase float64 `json:"discharge_base"`
	// Seasonal replaces DischargeBase by the month's entry of
	// SeasonalDischarge when a date is known.
	Seasonal          bool               `json:"seasonal"`
	SeasonalDischarge map[string]float64 `json:"seasonal_discharge"`
}

// SetDefaults fills zero fields with the nominal constants.
func (c *Config) SetDefaults() {
	if c.ReferenceWh == 0 {
		c.ReferenceWh = DefaultReferenceWh
	}
	if c.K == 0 {
		c.K = DefaultK
	}
	if c.ChargeBase == 0 {
		c.ChargeBase = DefaultChargeBase
	}
	if c.DischargeBase == 0 {
		c.DischargeBase = DefaultDischargeBase
	}
	if c.SeasonalDischarge == nil {
		c.SeasonalDischarge = map[string]float64{
			"winter": 0.0932,
			"spring": 0.0833,
			"summer": 0.0734,
			"fall":   0.0833,
		}
	}
}

// Validate rejects non-positive constants.
func (c Config) Validate() error {
	if c.ReferenceWh <= 0 || c.K <= 0 {
		return model.ConfigError("rate reference_wh and k must be positive")
	}
	if c.ChargeBase <= 0 || c.DischargeBase <= 0 {
		return model.ConfigError("rate base C-rates must be positive")
	}
	for season, r := range c.SeasonalDischarge {
		if r <= 0 {
			return model.ConfigError("seasonal discharge rate for %s must be positive", season)
		}
	}
	return nil
}

// Policy is an immutable rate adaptation policy.
type Policy struct {
	cfg Config
}

// NewPolicy validates cfg and returns a Policy. Zero fields take defaults.
func NewPolicy(cfg Config) (Policy, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{cfg: cfg}, nil
}

// Default returns the policy built from the nominal constants.
func Default() Policy {
	p, _ := NewPolicy(Config{})
	return p
}

// Config returns a copy of the policy constants.
func (p Policy) Config() Config { return p.cfg }

// Rates is the outcome of one rate decision, in C.
type Rates struct {
	Charge    float64 `json:"charge_c_rate"`
	Discharge float64 `json:"discharge_c_rate"`
	// Throttled is true when production exceeded the reference.
	Throttled bool `json:"throttled"`
}

// Adapt maps the energy harvested during the hour of the decision to
// C-rates. Negative or non-finite input is treated as no production.
func (p Policy) Adapt(productionWh float64) Rates {
	c := p.cfg
	if math.IsNaN(productionWh) || math.IsInf(productionWh, 0) || productionWh <= c.ReferenceWh {
		return Rates{Charge: c.ChargeBase, Discharge: c.DischargeBase}
	}
	x := c.K * (productionWh - c.ReferenceWh)
	return Rates{
		Charge:    c.ChargeBase * 0.1 / (x + 0.1),
		Discharge: c.DischargeBase * (x + c.DischargeBase) / c.DischargeBase,
		Throttled: true,
	}
}

// ForMonth returns a policy whose discharge base follows the season of m.
// Without seasonal rates enabled it returns p unchanged.
func (p Policy) ForMonth(m time.Month) Policy {
	if !p.cfg.Seasonal {
		return p
	}
	r, ok := p.cfg.SeasonalDischarge[Season(m)]
	if !ok {
		return p
	}
	out := p
	out.cfg.DischargeBase = r
	return out
}

// Season names the meteorological season of a month on the northern hemisphere.
func Season(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "fall"
	}
}

// CurrentAmps converts a C-rate into a pack current for cells of cellAh
// amp-hours connected parallel wide.
func CurrentAmps(cRate, cellAh float64, parallel int) float64 {
	return cRate * cellAh * float64(parallel)
}

// DischargeForLoad rescales a discharge C-rate sized for NominalLoadHours to a
// load running loadHours per night. Non-positive loadHours leave it unchanged.
func DischargeForLoad(cRate, loadHours float64) float64 {
	if !(loadHours > 0) {
		return cRate
	}
	return cRate * NominalLoadHours / loadHours
}
