package model

import "fmt"

// EssMode is the planned operating mode of the storage for one hour.
type EssMode string

const (
	EssCharging    EssMode = "CHARGING"
	EssDischarging EssMode = "DISCHARGING"
	EssIdle        EssMode = "IDLE"
)

// PlanEntry is one hour of a daily operation plan. EssPower is signed:
// positive while charging, negative while discharging.
type PlanEntry struct {
	Hour             int     `json:"hour"`
	PowerProduction  float64 `json:"power_production"`
	PowerConsumption float64 `json:"power_consumption"`
	EssMode          EssMode `json:"ess_mode"`
	EssPower         float64 `json:"ess_power"`
	ChargeCRate      float64 `json:"charge_c_rate,omitempty"`
	DischargeCRate   float64 `json:"discharge_c_rate,omitempty"`
}

// HourRange is an inclusive range of clock hours. Ranges may wrap past
// midnight, in which case End < Start.
type HourRange struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Empty bool `json:"empty"`
}

func (r HourRange) String() string {
	if r.Empty {
		return "none"
	}
	s := fmt.Sprintf("%02d:00-%02d:59", r.Start, r.End)
	if r.End < r.Start {
		s += " (next day)"
	}
	return s
}
