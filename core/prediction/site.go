package prediction

import (
	"math"
	"sort"
	"time"

	"github.com/kilianp07/ess/core/model"
)

// Turbine describes the wind turbines of a site.
type Turbine struct {
	Model       string  `json:"model"`
	RatedPowerW float64 `json:"rated_power_w"`
	CutInSpeed  float64 `json:"cut_in_speed"`
	AreaM2      float64 `json:"area_m2"`
	Efficiency  float64 `json:"efficiency"`
	Count       int     `json:"count"`
	// WindFactor corrects the reported wind speed for the local terrain.
	WindFactor float64 `json:"wind_factor"`
}

// Piezo describes the floor tiles harvesting footsteps.
type Piezo struct {
	Tiles          int     `json:"tiles"`
	HourlyPeople   float64 `json:"hourly_people"`
	StepsPerPerson float64 `json:"steps_per_person"`
	WattsPerStep   float64 `json:"watts_per_step"`
}

// Site is one installation feeding a storage unit.
type Site struct {
	DisplayName  string  `json:"display_name"`
	Turbine      Turbine `json:"turbine"`
	Piezo        Piezo   `json:"piezo"`
	Streetlights int     `json:"streetlights"`
}

// SiteConfig holds the shared physical constants and the sites.
type SiteConfig struct {
	AirDensity      float64         `json:"air_density"`
	ACDCEfficiency  float64         `json:"ac_dc_efficiency"`
	StreetlightW    float64         `json:"streetlight_w"`
	DayStartHour    int             `json:"day_start_hour"`
	DayEndHour      int             `json:"day_end_hour"`
	Sites           map[string]Site `json:"sites"`
	DisableDefaults bool            `json:"disable_defaults"`
}

// SetDefaults fills zero constants and merges the built-in sites unless
// DisableDefaults is set. Configured sites replace built-ins of the same name.
func (c *SiteConfig) SetDefaults() {
	if c.AirDensity == 0 {
		c.AirDensity = 1.225
	}
	if c.ACDCEfficiency == 0 {
		c.ACDCEfficiency = 0.7
	}
	if c.StreetlightW == 0 {
		c.StreetlightW = 150
	}
	if c.DayStartHour == 0 && c.DayEndHour == 0 {
		c.DayStartHour, c.DayEndHour = 6, 18
	}
	if c.DisableDefaults {
		return
	}
	if c.Sites == nil {
		c.Sites = make(map[string]Site)
	}
	for name, s := range DefaultSites() {
		if _, ok := c.Sites[name]; !ok {
			c.Sites[name] = s
		}
	}
}

// Validate reports a model.ErrConfiguration for unusable settings.
func (c SiteConfig) Validate() error {
	if c.AirDensity <= 0 || c.ACDCEfficiency <= 0 || c.ACDCEfficiency > 1 || c.StreetlightW < 0 {
		return model.ConfigError("site constants are invalid")
	}
	if c.DayStartHour < 0 || c.DayEndHour > model.HoursPerDay || c.DayStartHour >= c.DayEndHour {
		return model.ConfigError("daytime window [%d,%d) is invalid", c.DayStartHour, c.DayEndHour)
	}
	if len(c.Sites) == 0 {
		return model.ConfigError("no sites configured")
	}
	for name, s := range c.Sites {
		t := s.Turbine
		if t.Count < 0 || t.RatedPowerW < 0 || t.AreaM2 < 0 || t.Efficiency < 0 || t.Efficiency > 1 || t.WindFactor < 0 {
			return model.ConfigError("site %s: turbine settings are invalid", name)
		}
		p := s.Piezo
		if p.HourlyPeople < 0 || p.StepsPerPerson < 0 || p.WattsPerStep < 0 || s.Streetlights < 0 {
			return model.ConfigError("site %s: piezo or streetlight settings are invalid", name)
		}
	}
	return nil
}

// DefaultSites returns the three campus installations.
func DefaultSites() map[string]Site {
	piezo := func(tiles int, people float64) Piezo {
		return Piezo{Tiles: tiles, HourlyPeople: people, StepsPerPerson: 4, WattsPerStep: 5}
	}
	return map[string]Site{
		"building5": {
			DisplayName:  "5호관_60주년_사이",
			Turbine:      Turbine{Model: "Lotus-V 1kW", RatedPowerW: 1000, CutInSpeed: 1.5, AreaM2: 3.14, Efficiency: 0.35, Count: 2, WindFactor: 1.4},
			Piezo:        piezo(275, 754),
			Streetlights: 8,
		},
		"lake_front": {
			DisplayName:  "인경호_앞",
			Turbine:      Turbine{Model: "mini wind turbine 600W", RatedPowerW: 600, CutInSpeed: 1.2, AreaM2: 2.0, Efficiency: 0.30, Count: 3, WindFactor: 0.9},
			Piezo:        piezo(200, 562),
			Streetlights: 9,
		},
		"forest": {
			DisplayName:  "하이데거숲",
			Turbine:      Turbine{Model: "Lotus-V 3kW", RatedPowerW: 3000, CutInSpeed: 1.5, AreaM2: 4.5, Efficiency: 0.40, Count: 1, WindFactor: 0.8},
			Piezo:        piezo(230, 616),
			Streetlights: 14,
		},
	}
}

// SiteEngine derives forecasts from the physical description of each site.
type SiteEngine struct {
	cfg SiteConfig
}

// NewSiteEngine validates cfg and returns an engine.
func NewSiteEngine(cfg SiteConfig) (*SiteEngine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SiteEngine{cfg: cfg}, nil
}

// Locations lists the configured site names in sorted order.
func (e *SiteEngine) Locations() []string {
	out := make([]string, 0, len(e.cfg.Sites))
	for name := range e.cfg.Sites {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Site returns the named site.
func (e *SiteEngine) Site(location string) (Site, bool) {
	s, ok := e.cfg.Sites[location]
	return s, ok
}

// NightLoadWh is the hourly streetlight consumption of a site.
func (e *SiteEngine) NightLoadWh(location string) (float64, error) {
	s, ok := e.cfg.Sites[location]
	if !ok {
		return 0, model.InvalidInput("unknown location %q", location)
	}
	return float64(s.Streetlights) * e.cfg.StreetlightW, nil
}

// WindWh is the energy one hour of wind at windSpeed yields after
// conversion losses.
func (e *SiteEngine) WindWh(s Site, windSpeed float64) float64 {
	t := s.Turbine
	v := windSpeed * t.WindFactor
	if v < t.CutInSpeed {
		return 0
	}
	p := 0.5 * e.cfg.AirDensity * t.AreaM2 * v * v * v * t.Efficiency
	p = math.Min(p, t.RatedPowerW)
	return p * float64(t.Count) * e.cfg.ACDCEfficiency
}

// PiezoWh is the energy one hour of average foot traffic yields after
// conversion losses.
func (e *SiteEngine) PiezoWh(s Site) float64 {
	p := s.Piezo
	return p.HourlyPeople * p.StepsPerPerson * p.WattsPerStep * e.cfg.ACDCEfficiency
}

// PredictDay implements Engine. The date is accepted for interface
// compatibility; the site model has no seasonal terms.
func (e *SiteEngine) PredictDay(location string, _ time.Time, avgWindSpeed float64) ([]model.HourlyForecast, error) {
	s, ok := e.cfg.Sites[location]
	if !ok {
		return nil, model.InvalidInput("unknown location %q", location)
	}
	if math.IsNaN(avgWindSpeed) || math.IsInf(avgWindSpeed, 0) || avgWindSpeed < 0 {
		return nil, model.InvalidInput("average wind speed must be a finite non-negative value, got %v", avgWindSpeed)
	}
	load := float64(s.Streetlights) * e.cfg.StreetlightW
	piezo := e.PiezoWh(s)
	out := make([]model.HourlyForecast, model.HoursPerDay)
	for h, ws := range WindProfile(avgWindSpeed) {
		f := model.HourlyForecast{
			Hour:              h,
			PowerProductionWh: e.WindWh(s, ws) + piezo,
			WindSpeed:         &ws,
		}
		if model.IsNighttime(h, e.cfg.DayStartHour, e.cfg.DayEndHour) {
			f.PowerConsumptionWh = load
		}
		out[h] = f
	}
	return out, nil
}
