package battery

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/rate"
)

// timeEpsilon is the smallest remainder in minutes Step keeps iterating on.
const timeEpsilon = 1e-9

// Machine drives the charge/discharge cycle of one Battery. It is not safe
// for concurrent use; core/control serialises access to the live machine.
type Machine struct {
	b      *Battery
	policy rate.Policy
	now    func() time.Time
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock replaces time.Now, mainly for simulations and tests.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// NewMachine wraps b. The machine takes ownership of b.
func NewMachine(b *Battery, policy rate.Policy, opts ...MachineOption) *Machine {
	m := &Machine{b: b, policy: policy, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) Battery() *Battery       { return m.b }
func (m *Machine) Policy() rate.Policy     { return m.policy }
func (m *Machine) Phase() model.Phase      { return m.b.Phase() }
func (m *Machine) Snapshot() Snapshot      { return m.b.Snapshot() }
func (m *Machine) SetPolicy(p rate.Policy) { m.policy = p }

// Clone returns a machine over an independent copy of the battery.
func (m *Machine) Clone(opts ...MachineOption) *Machine {
	c := &Machine{b: m.b.Clone(), policy: m.policy, now: m.now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Outcome reports the result of a start or stop command.
type Outcome struct {
	Phase    model.Phase `json:"state"`
	Message  string      `json:"message"`
	CRate    float64     `json:"c_rate"`
	Current  float64     `json:"current"`
	Rates    rate.Rates  `json:"rates"`
	Snapshot Snapshot    `json:"status"`
}

// StartCharge moves an idle battery into constant-current charging at the
// rate the policy derives from the day's production. A full battery stays
// idle.
func (m *Machine) StartCharge(productionWh float64) (Outcome, error) {
	if p := m.b.Phase(); p != model.PhaseIdle {
		return Outcome{}, model.InvalidTransition(p, "cannot start charging")
	}
	if err := validProduction(productionWh); err != nil {
		return Outcome{}, err
	}
	rates := m.policy.Adapt(productionWh)
	if m.b.soc >= 100 {
		return m.outcome("battery is already fully charged", 0, 0, rates), nil
	}
	cfg := m.b.cfg
	current := rate.CurrentAmps(rates.Charge, cfg.CellAh(), cfg.Parallel)
	m.b.chargeCurrent = current
	m.b.dischargeCurrent = 0
	m.b.mode = ChargingCC{Current: current, CRate: rates.Charge}
	msg := fmt.Sprintf("charging started at %.4fC", rates.Charge)
	if rates.Throttled {
		msg += " (throttled by production)"
	}
	return m.outcome(msg, rates.Charge, current, rates), nil
}

// StartDischarge moves an idle battery into discharging. The rate is scaled
// from the nominal 12 hour load window to the configured load hours. A
// battery at its floor stays idle.
func (m *Machine) StartDischarge(productionWh float64, isNighttime bool) (Outcome, error) {
	if p := m.b.Phase(); p != model.PhaseIdle {
		return Outcome{}, model.InvalidTransition(p, "cannot start discharging")
	}
	if err := validProduction(productionWh); err != nil {
		return Outcome{}, err
	}
	rates := m.policy.Adapt(productionWh)
	cfg := m.b.cfg
	if m.b.soc <= cfg.FloorSOC {
		return m.outcome("battery is at its discharge floor", 0, 0, rates), nil
	}
	cRate := rate.DischargeForLoad(rates.Discharge, cfg.LoadHours)
	current := rate.CurrentAmps(cRate, cfg.CellAh(), cfg.Parallel)
	m.b.dischargeCurrent = current
	m.b.chargeCurrent = 0
	m.b.mode = Discharging{Current: current, CRate: cRate}
	msg := fmt.Sprintf("discharging started at %.4fC", cRate)
	if !isNighttime {
		msg += "; discharging during daytime"
	}
	return m.outcome(msg, cRate, current, rates), nil
}

// Stop ends an active charge or discharge and starts the rest period.
func (m *Machine) Stop() (Outcome, error) {
	p := m.b.Phase()
	if p != model.PhaseChargingCC && p != model.PhaseChargingCV && p != model.PhaseDischarging {
		return Outcome{}, model.InvalidTransition(p, "nothing to stop")
	}
	m.enterRest(p, m.now())
	return m.outcome(fmt.Sprintf("%s stopped, resting", p), 0, 0, rate.Rates{}), nil
}

func (m *Machine) outcome(msg string, cRate, current float64, rates rate.Rates) Outcome {
	return Outcome{
		Phase:    m.b.Phase(),
		Message:  msg,
		CRate:    cRate,
		Current:  current,
		Rates:    rates,
		Snapshot: m.b.Snapshot(),
	}
}

func (m *Machine) enterRest(from model.Phase, at time.Time) {
	m.b.chargeCurrent = 0
	m.b.dischargeCurrent = 0
	m.b.mode = Resting{StartedAt: at, From: from}
}

// Transition records one phase change inside a Step.
type Transition struct {
	From     model.Phase `json:"from"`
	To       model.Phase `json:"to"`
	AtMinute float64     `json:"at_minute"`
	Reason   string      `json:"reason"`
}

// StepResult summarises one Step call.
type StepResult struct {
	Minutes      float64      `json:"minutes"`
	ChargedAh    float64      `json:"charged_ah"`
	DischargedAh float64      `json:"discharged_ah"`
	Transitions  []Transition `json:"transitions,omitempty"`
}

// Step advances the battery by minutes. Cutoffs reached mid-step split the
// step; the remainder continues in the following phase, so a single call can
// cross several transitions.
func (m *Machine) Step(minutes float64) (StepResult, error) {
	if !positive(minutes) {
		return StepResult{}, model.InvalidInput("duration must be positive, got %v", minutes)
	}
	start := m.now()
	res := StepResult{Minutes: minutes}
	elapsed := 0.0
	for minutes-elapsed > timeEpsilon {
		left := minutes - elapsed
		var (
			used float64
			err  error
		)
		switch mode := m.b.mode.(type) {
		case Idle:
			used = left
		case ChargingCC:
			used, err = m.stepCC(mode, left, elapsed, &res)
		case ChargingCV:
			used, err = m.stepCV(mode, left, elapsed, start, &res)
		case Discharging:
			used, err = m.stepDischarge(mode, left, elapsed, start, &res)
		case Resting:
			used, err = m.stepRest(mode, left, elapsed, &res)
		}
		if err != nil {
			return res, err
		}
		elapsed += used
	}
	return res, nil
}

func (m *Machine) stepCC(mode ChargingCC, left, elapsed float64, res *StepResult) (float64, error) {
	cfg := m.b.cfg
	boundary := math.Min(m.b.curve.SOCAtVoltage(cfg.VoltageFull), 100)
	used := 0.0
	if m.b.soc < boundary {
		before := m.b.soc
		var err error
		used, err = m.b.ApplyCurrentUntil(mode.Current, left, Charge, boundary)
		if err != nil {
			return 0, err
		}
		res.ChargedAh += (m.b.soc - before) / 100 * cfg.CapacityAh()
	}
	if m.b.cellVoltage >= cfg.VoltageFull-socEpsilon || m.b.soc >= boundary {
		m.b.mode = ChargingCV{Current: mode.Current}
		res.Transitions = append(res.Transitions, Transition{
			From: model.PhaseChargingCC, To: model.PhaseChargingCV,
			AtMinute: elapsed + used, Reason: "cell voltage reached full",
		})
	}
	return used, nil
}

// stepCV integrates the exponential taper I0*exp(-t/tau) exactly and stops
// at the cutoff current or at full charge, whichever comes first.
func (m *Machine) stepCV(mode ChargingCV, left, elapsed float64, start time.Time, res *StepResult) (float64, error) {
	cfg := m.b.cfg
	cutoff := cfg.CVCutoffC * cfg.CapacityAh()
	tau := cfg.CVTauMinutes
	i0 := mode.Current
	rest := func(at float64, reason string) float64 {
		m.enterRest(model.PhaseChargingCV, start.Add(minutesToDuration(elapsed+at)))
		res.Transitions = append(res.Transitions, Transition{
			From: model.PhaseChargingCV, To: model.PhaseRest, AtMinute: elapsed + at, Reason: reason,
		})
		return at
	}
	if i0 <= cutoff+timeEpsilon {
		return rest(0, "taper current reached cutoff"), nil
	}
	if m.b.soc >= 100 {
		return rest(0, "battery full"), nil
	}

	t := left
	reason := ""
	if tCut := tau * math.Log(i0/cutoff); tCut <= t {
		t, reason = tCut, "taper current reached cutoff"
	}
	roomAh := (100 - m.b.soc) / 100 * cfg.CapacityAh()
	if gain := i0 * tau / 60 * (1 - math.Exp(-t/tau)); gain >= roomAh {
		// Time at which the integral of the taper fills the remaining room.
		t = -tau * math.Log(1-roomAh*60/(i0*tau))
		reason = "battery full"
	}
	if t > timeEpsilon {
		gainAh := i0 * tau / 60 * (1 - math.Exp(-t/tau))
		before := m.b.soc
		if _, err := m.b.ApplyCurrentUntil(gainAh*60/t, t, Charge, 100); err != nil {
			return 0, err
		}
		res.ChargedAh += (m.b.soc - before) / 100 * cfg.CapacityAh()
	}
	i := i0 * math.Exp(-t/tau)
	m.b.chargeCurrent = i
	m.b.mode = ChargingCV{Current: i}
	if reason != "" {
		return rest(t, reason), nil
	}
	return t, nil
}

func (m *Machine) stepDischarge(mode Discharging, left, elapsed float64, start time.Time, res *StepResult) (float64, error) {
	cfg := m.b.cfg
	used := 0.0
	if m.b.soc > cfg.FloorSOC {
		before := m.b.soc
		var err error
		used, err = m.b.ApplyCurrentUntil(mode.Current, left, Discharge, cfg.FloorSOC)
		if err != nil {
			return 0, err
		}
		res.DischargedAh += (before - m.b.soc) / 100 * cfg.CapacityAh()
	}
	if m.b.soc <= cfg.FloorSOC {
		m.enterRest(model.PhaseDischarging, start.Add(minutesToDuration(elapsed+used)))
		res.Transitions = append(res.Transitions, Transition{
			From: model.PhaseDischarging, To: model.PhaseRest, AtMinute: elapsed + used, Reason: "discharge floor reached",
		})
	}
	return used, nil
}

func (m *Machine) stepRest(mode Resting, left, elapsed float64, res *StepResult) (float64, error) {
	total := m.b.cfg.RestMinutes
	used := math.Min(left, math.Max(0, total-mode.ElapsedMinutes))
	if used > 0 {
		if err := m.b.ApplyRest(used); err != nil {
			return 0, err
		}
	}
	if r := m.b.mode.(Resting); r.ElapsedMinutes >= total-timeEpsilon {
		m.b.mode = Idle{}
		res.Transitions = append(res.Transitions, Transition{
			From: model.PhaseRest, To: model.PhaseIdle, AtMinute: elapsed + used, Reason: "rest complete",
		})
	}
	return used, nil
}

// Auto runs one control tick: a resting battery only waits, at night a
// charge is stopped and a discharge started, during the day a discharge is
// stopped and a charge started when there is production to store. An ongoing
// CC charge or discharge takes the rate of productionWh. The battery is then
// stepped by minutes. Commands issued by the tick are reported as
// transitions at minute zero.
func (m *Machine) Auto(productionWh float64, isNighttime bool, minutes float64) (StepResult, error) {
	if err := validProduction(productionWh); err != nil {
		return StepResult{}, err
	}
	if !positive(minutes) {
		return StepResult{}, model.InvalidInput("duration must be positive, got %v", minutes)
	}
	var issued []Transition
	command := func(reason string, fn func() (Outcome, error)) error {
		from := m.b.Phase()
		out, err := fn()
		if err != nil {
			return err
		}
		if out.Phase != from {
			issued = append(issued, Transition{From: from, To: out.Phase, Reason: reason})
		}
		return nil
	}

	var err error
	switch p := m.b.Phase(); {
	case p == model.PhaseRest:
	case isNighttime:
		if p.Charging() {
			err = command("nighttime", m.Stop)
		} else if p == model.PhaseDischarging {
			m.retarget(productionWh)
		} else if p == model.PhaseIdle && m.b.soc > m.b.cfg.FloorSOC {
			err = command("nighttime", func() (Outcome, error) { return m.StartDischarge(productionWh, true) })
		}
	default:
		if p == model.PhaseDischarging {
			err = command("daytime", m.Stop)
		} else if p == model.PhaseChargingCC {
			m.retarget(productionWh)
		} else if p == model.PhaseIdle && m.b.soc < 100 && productionWh > 0 {
			err = command("production available", func() (Outcome, error) { return m.StartCharge(productionWh) })
		}
	}
	if err != nil {
		return StepResult{}, err
	}
	res, err := m.Step(minutes)
	res.Transitions = append(issued, res.Transitions...)
	return res, err
}

// retarget moves an ongoing CC charge or discharge to the rates of
// productionWh. CV keeps its taper.
func (m *Machine) retarget(productionWh float64) {
	rates := m.policy.Adapt(productionWh)
	cfg := m.b.cfg
	switch m.b.mode.(type) {
	case ChargingCC:
		current := rate.CurrentAmps(rates.Charge, cfg.CellAh(), cfg.Parallel)
		m.b.chargeCurrent = current
		m.b.mode = ChargingCC{Current: current, CRate: rates.Charge}
	case Discharging:
		cRate := rate.DischargeForLoad(rates.Discharge, cfg.LoadHours)
		current := rate.CurrentAmps(cRate, cfg.CellAh(), cfg.Parallel)
		m.b.dischargeCurrent = current
		m.b.mode = Discharging{Current: current, CRate: cRate}
	}
}

func validProduction(wh float64) error {
	if math.IsNaN(wh) || math.IsInf(wh, 0) || wh < 0 {
		return model.InvalidInput("production must be a finite non-negative value, got %v", wh)
	}
	return nil
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
