package model

import "fmt"

// Phase is the operating phase of a battery. Only the phase constrains which
// transitions are allowed.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChargingCC
	PhaseChargingCV
	PhaseDischarging
	PhaseRest
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseChargingCC:
		return "CHARGING_CC"
	case PhaseChargingCV:
		return "CHARGING_CV"
	case PhaseDischarging:
		return "DISCHARGING"
	case PhaseRest:
		return "REST"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Charging reports whether the phase is one of the two charge phases.
func (p Phase) Charging() bool {
	return p == PhaseChargingCC || p == PhaseChargingCV
}

// MarshalText encodes the phase using its wire name.
func (p Phase) MarshalText() ([]byte, error) {
	if p < PhaseIdle || p > PhaseRest {
		return nil, fmt.Errorf("unknown phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a wire name produced by MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePhase converts a wire name into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "IDLE":
		return PhaseIdle, nil
	case "CHARGING_CC":
		return PhaseChargingCC, nil
	case "CHARGING_CV":
		return PhaseChargingCV, nil
	case "DISCHARGING":
		return PhaseDischarging, nil
	case "REST":
		return PhaseRest, nil
	}
	return PhaseIdle, InvalidInput("unknown phase %q", s)
}
