package simulator

import (
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/rate"
)

// stepMinutes is the length of one simulated hour.
const stepMinutes = 60

// Options selects the simulated day and its daytime window [StartHour, EndHour).
type Options struct {
	Date      time.Time
	StartHour int
	EndHour   int
}

// DefaultOptions uses a 06:00 to 18:00 day.
func DefaultOptions(date time.Time) Options {
	return Options{Date: date, StartHour: 6, EndHour: 18}
}

// HourResult is the outcome of one simulated hour. Currents are the average
// pack currents over the hour.
type HourResult struct {
	Hour             int         `json:"hour"`
	IsNighttime      bool        `json:"is_nighttime"`
	PowerProduction  float64     `json:"power_production"`
	StartSOC         float64     `json:"start_soc"`
	EndSOC           float64     `json:"end_soc"`
	SOCChange        float64     `json:"soc_change"`
	ChargeCurrent    float64     `json:"charge_current"`
	DischargeCurrent float64     `json:"discharge_current"`
	Phase            model.Phase `json:"state"`
	ChargedWh        float64     `json:"charged_wh"`
	DischargedWh     float64     `json:"discharged_wh"`
}

// Totals aggregates a simulated day.
type Totals struct {
	TotalPowerProduction float64 `json:"total_power_production"`
	TotalChargePower     float64 `json:"total_charge_power"`
	TotalDischargePower  float64 `json:"total_discharge_power"`
	InitialSOC           float64 `json:"initial_soc"`
	FinalSOC             float64 `json:"final_soc"`
	ChargeCycles         int     `json:"charge_cycles"`
	DischargeCycles      int     `json:"discharge_cycles"`
}

// Event is a phase change at a simulated instant.
type Event struct {
	At time.Time `json:"at"`
	battery.Transition
}

// Result is the full outcome of a run.
type Result struct {
	Date   time.Time    `json:"date"`
	Hours  []HourResult `json:"hourly_results"`
	Totals Totals       `json:"totals"`
	Events []Event      `json:"events,omitempty"`
}

// Simulator runs day simulations with a fixed rate policy. It holds no
// mutable state; concurrent runs are independent.
type Simulator struct {
	policy rate.Policy
}

// New returns a Simulator using policy, adjusted to the simulated month
// when the policy is seasonal.
func New(policy rate.Policy) *Simulator {
	return &Simulator{policy: policy}
}

// Run simulates one day on b, which must be a copy the caller owns. Each hour
// is a single 60 minute control tick.
func (s *Simulator) Run(b *battery.Battery, forecasts []model.HourlyForecast, opts Options) (Result, error) {
	if opts.StartHour < 0 || opts.EndHour > model.HoursPerDay || opts.StartHour >= opts.EndHour {
		return Result{}, model.InvalidInput("start hour %d must be before end hour %d within the day", opts.StartHour, opts.EndHour)
	}
	byHour, err := model.ValidateDay(forecasts)
	if err != nil {
		return Result{}, err
	}
	if b == nil {
		return Result{}, model.ConfigError("no battery to simulate")
	}

	day := time.Date(opts.Date.Year(), opts.Date.Month(), opts.Date.Day(), 0, 0, 0, 0, opts.Date.Location())
	now := day
	m := battery.NewMachine(b, s.policy.ForMonth(day.Month()), battery.WithClock(func() time.Time { return now }))
	packV := b.Config().PackNominalVoltage()

	res := Result{Date: day, Hours: make([]HourResult, 0, model.HoursPerDay)}
	res.Totals.InitialSOC = b.SOC()
	var produced, charged, discharged []float64
	for h, f := range byHour {
		now = day.Add(time.Duration(h) * time.Hour)
		night := model.IsNighttime(h, opts.StartHour, opts.EndHour)
		startSOC := b.SOC()
		step, err := m.Auto(f.PowerProductionWh, night, stepMinutes)
		if err != nil {
			return Result{}, err
		}
		hr := HourResult{
			Hour:             h,
			IsNighttime:      night,
			PowerProduction:  f.PowerProductionWh,
			StartSOC:         startSOC,
			EndSOC:           b.SOC(),
			SOCChange:        b.SOC() - startSOC,
			ChargeCurrent:    step.ChargedAh * 60 / stepMinutes,
			DischargeCurrent: step.DischargedAh * 60 / stepMinutes,
			Phase:            b.Phase(),
			ChargedWh:        step.ChargedAh * packV,
			DischargedWh:     step.DischargedAh * packV,
		}
		res.Hours = append(res.Hours, hr)
		produced = append(produced, hr.PowerProduction)
		charged = append(charged, hr.ChargedWh)
		discharged = append(discharged, hr.DischargedWh)
		for _, tr := range step.Transitions {
			switch tr.To {
			case model.PhaseChargingCC:
				res.Totals.ChargeCycles++
			case model.PhaseDischarging:
				res.Totals.DischargeCycles++
			}
			res.Events = append(res.Events, Event{At: now.Add(time.Duration(tr.AtMinute * float64(time.Minute))), Transition: tr})
		}
	}
	res.Totals.TotalPowerProduction = floats.Sum(produced)
	res.Totals.TotalChargePower = floats.Sum(charged)
	res.Totals.TotalDischargePower = floats.Sum(discharged)
	res.Totals.FinalSOC = b.SOC()
	return res, nil
}
