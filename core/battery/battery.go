package battery

import (
	"math"
	"time"

	"github.com/kilianp07/ess/core/model"
)

// Direction selects the sign of an applied current.
type Direction int

const (
	Charge Direction = iota + 1
	Discharge
)

func (d Direction) String() string {
	switch d {
	case Charge:
		return "charge"
	case Discharge:
		return "discharge"
	}
	return "unknown"
}

// socEpsilon absorbs float error when a step lands on a boundary.
const socEpsilon = 1e-9

// Battery holds the state of one pack. Currents are pack currents in amps.
type Battery struct {
	cfg   Config
	curve Curve

	soc         float64
	cellVoltage float64
	temperature float64
	mode        Mode

	chargeCurrent    float64
	dischargeCurrent float64
}

// New validates cfg and returns an idle battery at cfg.InitialSOC. The
// voltage curve is built from cfg.Curve or the default table.
func New(cfg Config) (*Battery, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	points := cfg.Curve
	if len(points) == 0 {
		points = DefaultCurvePoints(cfg.VoltageEmpty, cfg.VoltageFull)
	}
	curve, err := NewTableCurve(points)
	if err != nil {
		return nil, err
	}
	return NewWithCurve(cfg, curve)
}

// NewWithCurve is New with a caller supplied voltage curve. The curve must
// reach cfg.VoltageFull at 100 percent so the CC phase can always end.
func NewWithCurve(cfg Config, curve Curve) (*Battery, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if curve == nil {
		return nil, model.ConfigError("voltage curve is required")
	}
	if curve.Voltage(100) < cfg.VoltageFull {
		return nil, model.ConfigError("voltage curve tops out at %.3fV, below %.3fV", curve.Voltage(100), cfg.VoltageFull)
	}
	b := &Battery{
		cfg:         cfg,
		curve:       curve,
		soc:         cfg.InitialSOC,
		temperature: cfg.TemperatureK,
		mode:        Idle{},
	}
	b.cellVoltage = curve.Voltage(b.soc)
	return b, nil
}

func (b *Battery) Config() Config            { return b.cfg }
func (b *Battery) Curve() Curve              { return b.curve }
func (b *Battery) SOC() float64              { return b.soc }
func (b *Battery) CellVoltage() float64      { return b.cellVoltage }
func (b *Battery) PackVoltage() float64      { return b.cellVoltage * float64(b.cfg.Series) }
func (b *Battery) CapacityAh() float64       { return b.cfg.CapacityAh() }
func (b *Battery) Temperature() float64      { return b.temperature }
func (b *Battery) Mode() Mode                { return b.mode }
func (b *Battery) Phase() model.Phase        { return b.mode.Phase() }
func (b *Battery) ChargeCurrent() float64    { return b.chargeCurrent }
func (b *Battery) DischargeCurrent() float64 { return b.dischargeCurrent }

// SetSOC moves the battery to soc percent. It is meant for calibration and
// test setup; the phase is not changed.
func (b *Battery) SetSOC(soc float64) error {
	if math.IsNaN(soc) || soc < 0 || soc > 100 {
		return model.InvalidInput("soc %.3f outside [0,100]", soc)
	}
	b.soc = soc
	b.cellVoltage = b.curve.Voltage(soc)
	return nil
}

// SetTemperature records a temperature reading in kelvin.
func (b *Battery) SetTemperature(k float64) error {
	if math.IsNaN(k) || k < b.cfg.MinTemperatureK || k > b.cfg.MaxTemperatureK {
		return model.InvalidInput("temperature %.2fK outside [%.2f,%.2f]", k, b.cfg.MinTemperatureK, b.cfg.MaxTemperatureK)
	}
	b.temperature = k
	return nil
}

// ApplyCurrent integrates current over minutes in direction dir, clipping soc
// to [0,100]. It returns the minutes actually applied, which is shorter than
// requested when the boundary is reached mid-step.
func (b *Battery) ApplyCurrent(current, minutes float64, dir Direction) (float64, error) {
	boundary := 100.0
	if dir == Discharge {
		boundary = 0
	}
	return b.ApplyCurrentUntil(current, minutes, dir, boundary)
}

// ApplyCurrentUntil is ApplyCurrent with the step truncated at boundary soc
// percent instead of the physical limit. A boundary behind the current soc
// applies nothing.
func (b *Battery) ApplyCurrentUntil(current, minutes float64, dir Direction, boundary float64) (float64, error) {
	if !positive(current) {
		return 0, model.InvalidInput("current must be positive, got %v", current)
	}
	if !positive(minutes) {
		return 0, model.InvalidInput("duration must be positive, got %v", minutes)
	}
	if math.IsNaN(boundary) || boundary < 0 || boundary > 100 {
		return 0, model.InvalidInput("boundary soc %v outside [0,100]", boundary)
	}
	if dir != Charge && dir != Discharge {
		return 0, model.InvalidInput("unknown direction %d", int(dir))
	}

	dsoc := current * minutes / 60 / b.cfg.CapacityAh() * 100
	room := boundary - b.soc
	if dir == Discharge {
		room = b.soc - boundary
	}
	if room <= 0 {
		return 0, nil
	}
	applied := minutes
	if dsoc >= room {
		applied = minutes * room / dsoc
		b.soc = boundary
	} else if dir == Charge {
		b.soc += dsoc
	} else {
		b.soc -= dsoc
	}
	if math.Abs(b.soc-boundary) < socEpsilon {
		b.soc = boundary
	}
	b.soc = clamp(b.soc, 0, 100)
	b.cellVoltage = b.curve.Voltage(b.soc)
	return applied, nil
}

// ApplyRest advances the rest timer. The voltage is left unchanged: no
// relaxation toward open-circuit voltage is modelled.
func (b *Battery) ApplyRest(minutes float64) error {
	if !positive(minutes) {
		return model.InvalidInput("duration must be positive, got %v", minutes)
	}
	r, ok := b.mode.(Resting)
	if !ok {
		return model.InvalidTransition(b.Phase(), "rest can only be applied while resting")
	}
	r.ElapsedMinutes += minutes
	b.mode = r
	return nil
}

// Clone returns an independent copy. The curve is shared; curves are
// immutable.
func (b *Battery) Clone() *Battery {
	c := *b
	return &c
}

// RestInfo is reported only while resting.
type RestInfo struct {
	StartedAt        time.Time   `json:"start_time"`
	ElapsedMinutes   float64     `json:"elapsed_minutes"`
	RemainingMinutes float64     `json:"remaining_minutes"`
	TotalMinutes     float64     `json:"total_duration_minutes"`
	From             model.Phase `json:"from"`
}

// Snapshot is a point in time copy of the battery state suitable for
// reporting and persistence.
type Snapshot struct {
	SOC               float64     `json:"soc"`
	CellVoltage       float64     `json:"voltage"`
	PackVoltage       float64     `json:"pack_voltage"`
	CapacityAh        float64     `json:"capacity"`
	EnergyCapacityWh  float64     `json:"energy_capacity_wh"`
	Temperature       float64     `json:"temperature"`
	Phase             model.Phase `json:"state"`
	ChargeCurrent     float64     `json:"charge_current"`
	DischargeCurrent  float64     `json:"discharge_current"`
	CRate             float64     `json:"c_rate,omitempty"`
	CellConfiguration string      `json:"cell_configuration"`
	TotalCells        int         `json:"total_cells"`
	Rest              *RestInfo   `json:"rest_info,omitempty"`
}

// Snapshot captures the current state.
func (b *Battery) Snapshot() Snapshot {
	s := Snapshot{
		SOC:               b.soc,
		CellVoltage:       b.cellVoltage,
		PackVoltage:       b.PackVoltage(),
		CapacityAh:        b.cfg.CapacityAh(),
		EnergyCapacityWh:  b.cfg.EnergyCapacityWh(),
		Temperature:       b.temperature,
		Phase:             b.Phase(),
		ChargeCurrent:     b.chargeCurrent,
		DischargeCurrent:  b.dischargeCurrent,
		CellConfiguration: b.cfg.CellConfiguration(),
		TotalCells:        b.cfg.TotalCells(),
	}
	switch m := b.mode.(type) {
	case ChargingCC:
		s.CRate = m.CRate
	case Discharging:
		s.CRate = m.CRate
	case Resting:
		s.Rest = &RestInfo{
			StartedAt:        m.StartedAt,
			ElapsedMinutes:   m.ElapsedMinutes,
			RemainingMinutes: math.Max(0, b.cfg.RestMinutes-m.ElapsedMinutes),
			TotalMinutes:     b.cfg.RestMinutes,
			From:             m.From,
		}
	}
	return s
}

// Restore loads a snapshot produced by Snapshot, typically after a restart.
// Nothing is changed when the snapshot is inconsistent.
func (b *Battery) Restore(s Snapshot) error {
	if math.IsNaN(s.SOC) || s.SOC < 0 || s.SOC > 100 {
		return model.InvalidInput("snapshot soc %.3f outside [0,100]", s.SOC)
	}
	if math.IsNaN(s.Temperature) || s.Temperature < b.cfg.MinTemperatureK || s.Temperature > b.cfg.MaxTemperatureK {
		return model.InvalidInput("snapshot temperature %.2fK outside bounds", s.Temperature)
	}
	var m Mode
	switch s.Phase {
	case model.PhaseIdle:
		m = Idle{}
	case model.PhaseChargingCC:
		m = ChargingCC{Current: s.ChargeCurrent, CRate: s.CRate}
	case model.PhaseChargingCV:
		m = ChargingCV{Current: s.ChargeCurrent}
	case model.PhaseDischarging:
		m = Discharging{Current: s.DischargeCurrent, CRate: s.CRate}
	case model.PhaseRest:
		if s.Rest == nil {
			return model.InvalidInput("resting snapshot without rest info")
		}
		m = Resting{StartedAt: s.Rest.StartedAt, ElapsedMinutes: s.Rest.ElapsedMinutes, From: s.Rest.From}
	default:
		return model.InvalidInput("snapshot phase %d unknown", int(s.Phase))
	}
	if (s.Phase.Charging() && !positive(s.ChargeCurrent)) || (s.Phase == model.PhaseDischarging && !positive(s.DischargeCurrent)) {
		return model.InvalidInput("active snapshot without a current set-point")
	}
	b.soc = s.SOC
	b.cellVoltage = b.curve.Voltage(s.SOC)
	b.temperature = s.Temperature
	b.chargeCurrent = s.ChargeCurrent
	b.dischargeCurrent = s.DischargeCurrent
	b.mode = m
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
