package events

import "time"

// SimulationEvent is emitted when a day simulation completes.
type SimulationEvent struct {
	Location     string
	Date         time.Time
	InitialSOC   float64
	FinalSOC     float64
	ChargedWh    float64
	DischargedWh float64
	Duration     time.Duration
}

// ScheduleEvent is emitted when a daily plan has been built.
type ScheduleEvent struct {
	Location   string
	Date       time.Time
	RequiredWh float64
	ChargingWh float64
	UnmetWh    float64
	Sufficient bool
}
