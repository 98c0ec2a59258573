package scheduler

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/rate"
)

// Summary aggregates a daily plan.
type Summary struct {
	// RequiredBatteryCapacityWh is the total night load.
	RequiredBatteryCapacityWh float64 `json:"required_battery_capacity_wh"`
	// MaxChargingCapacityWh is the daytime surplus planned for charging,
	// after charge efficiency.
	MaxChargingCapacityWh  float64         `json:"max_charging_capacity_wh"`
	PlannedDischargeWh     float64         `json:"planned_discharge_wh"`
	ChargeDischargeBalance float64         `json:"charge_discharge_balance"`
	ChargingPeriod         model.HourRange `json:"charging_period"`
	DischargingPeriod      model.HourRange `json:"discharging_period"`
	IsSufficient           bool            `json:"is_sufficient"`
	UnmetLoadWh            float64         `json:"unmet_load_wh"`
}

// Schedule is the plan for one day, indexed by hour.
type Schedule struct {
	Entries []model.PlanEntry `json:"hourly_plan"`
	Summary Summary           `json:"ess_summary"`
}

// Scheduler builds daily plans. It holds no mutable state and is safe for
// concurrent use.
type Scheduler struct {
	cfg        Config
	policy     rate.Policy
	capacityWh float64
	loadHours  float64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLoadHours sizes planned discharge C-rates for a streetlight load
// running hours per night, as the battery does.
func WithLoadHours(hours float64) Option {
	return func(s *Scheduler) { s.loadHours = hours }
}

// New returns a Scheduler for a pack able to deliver capacityWh in one
// night. cfg.UsableCapacityWh takes precedence when set. Charge and
// discharge rates come from policy unchanged, hour by hour.
func New(cfg Config, policy rate.Policy, capacityWh float64, opts ...Option) (*Scheduler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UsableCapacityWh > 0 {
		capacityWh = cfg.UsableCapacityWh
	}
	if !(capacityWh > 0) || math.IsInf(capacityWh, 0) {
		return nil, model.ConfigError("usable capacity must be positive, got %v", capacityWh)
	}
	s := &Scheduler{cfg: cfg, policy: policy, capacityWh: capacityWh, loadHours: rate.NominalLoadHours}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// CapacityWh is the energy available for one night.
func (s *Scheduler) CapacityWh() float64 { return s.capacityWh }

// Build plans one day. Daytime hours whose production exceeds the idle
// threshold charge; night hours discharge the load, walking the night
// chronologically from the end of the day until the capacity runs out.
// loadPerHour is used for night hours whose forecast has no consumption;
// zero falls back to the configured streetlight load.
func (s *Scheduler) Build(forecasts []model.HourlyForecast, loadPerHour float64) (Schedule, error) {
	byHour, err := model.ValidateDay(forecasts)
	if err != nil {
		return Schedule{}, err
	}
	if math.IsNaN(loadPerHour) || math.IsInf(loadPerHour, 0) || loadPerHour < 0 {
		return Schedule{}, model.InvalidInput("load per hour must be a finite non-negative value, got %v", loadPerHour)
	}
	if loadPerHour == 0 {
		loadPerHour = s.cfg.StreetlightLoadWh
	}

	entries := make([]model.PlanEntry, model.HoursPerDay)
	var charged, loads []float64
	for h, f := range byHour {
		e := model.PlanEntry{
			Hour:             h,
			PowerProduction:  f.PowerProductionWh,
			PowerConsumption: f.PowerConsumptionWh,
			EssMode:          model.EssIdle,
		}
		if !s.isNight(h) {
			if f.PowerProductionWh > s.cfg.IdleThresholdWh {
				e.EssMode = model.EssCharging
				e.EssPower = f.PowerProductionWh
				e.ChargeCRate = s.policy.Adapt(f.PowerProductionWh).Charge
				charged = append(charged, f.PowerProductionWh)
			}
		} else if e.PowerConsumption == 0 {
			e.PowerConsumption = loadPerHour
		}
		entries[h] = e
	}

	remaining := s.capacityWh
	unmet := 0.0
	var discharged []float64
	for _, h := range s.nightHours() {
		e := &entries[h]
		load := e.PowerConsumption
		loads = append(loads, load)
		d := math.Min(load, remaining)
		unmet += load - d
		if d <= 0 {
			continue
		}
		remaining -= d
		e.EssMode = model.EssDischarging
		e.EssPower = -d
		e.DischargeCRate = rate.DischargeForLoad(s.policy.Adapt(e.PowerProduction).Discharge, s.loadHours)
		discharged = append(discharged, d)
	}

	maxCharging := floats.Sum(charged) * s.cfg.ChargeEfficiency
	plannedDischarge := floats.Sum(discharged)
	return Schedule{
		Entries: entries,
		Summary: Summary{
			RequiredBatteryCapacityWh: floats.Sum(loads),
			MaxChargingCapacityWh:     maxCharging,
			PlannedDischargeWh:        plannedDischarge,
			ChargeDischargeBalance:    maxCharging - plannedDischarge,
			ChargingPeriod:            period(entries, model.EssCharging, s.cfg.DayStartHour),
			DischargingPeriod:         period(entries, model.EssDischarging, s.cfg.DayEndHour%model.HoursPerDay),
			IsSufficient:              unmet == 0,
			UnmetLoadWh:               unmet,
		},
	}, nil
}

func (s *Scheduler) isNight(h int) bool {
	return model.IsNighttime(h, s.cfg.DayStartHour, s.cfg.DayEndHour)
}

// nightHours lists the night in chronological order starting at the end of
// the day and wrapping past midnight.
func (s *Scheduler) nightHours() []int {
	hours := make([]int, 0, model.HoursPerDay)
	for i := 0; i < model.HoursPerDay; i++ {
		h := (s.cfg.DayEndHour + i) % model.HoursPerDay
		if s.isNight(h) {
			hours = append(hours, h)
		}
	}
	return hours
}

// period returns the first and last hour in mode, scanning from origin.
func period(entries []model.PlanEntry, mode model.EssMode, origin int) model.HourRange {
	r := model.HourRange{Empty: true}
	for i := 0; i < len(entries); i++ {
		h := (origin + i) % len(entries)
		if entries[h].EssMode != mode {
			continue
		}
		if r.Empty {
			r = model.HourRange{Start: h}
		}
		r.End = h
	}
	return r
}
