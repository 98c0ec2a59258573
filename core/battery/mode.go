package battery

import (
	"time"

	"github.com/kilianp07/ess/core/model"
)

// Mode is the phase a battery is in together with the fields that are only
// meaningful in that phase. The set of implementations is closed.
type Mode interface {
	Phase() model.Phase
	isMode()
}

type Idle struct{}

// ChargingCC holds the constant charge current set-point.
type ChargingCC struct {
	Current float64
	CRate   float64
}

// ChargingCV holds the current flowing at the constant hold voltage. It
// tapers with every step.
type ChargingCV struct {
	Current float64
}

type Discharging struct {
	Current float64
	CRate   float64
}

// Resting is the dwell after a cycle. From is the phase that was left.
type Resting struct {
	StartedAt      time.Time
	ElapsedMinutes float64
	From           model.Phase
}

func (Idle) Phase() model.Phase        { return model.PhaseIdle }
func (ChargingCC) Phase() model.Phase  { return model.PhaseChargingCC }
func (ChargingCV) Phase() model.Phase  { return model.PhaseChargingCV }
func (Discharging) Phase() model.Phase { return model.PhaseDischarging }
func (Resting) Phase() model.Phase     { return model.PhaseRest }

func (Idle) isMode()        {}
func (ChargingCC) isMode()  {}
func (ChargingCV) isMode()  {}
func (Discharging) isMode() {}
func (Resting) isMode()     {}
