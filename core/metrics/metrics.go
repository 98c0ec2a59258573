package metrics

import (
	"time"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/model"
)

// BatteryState is a committed snapshot of a live battery.
type BatteryState struct {
	Location string
	Snapshot battery.Snapshot
	Time     time.Time
}

// MetricsSink records battery state snapshots.
type MetricsSink interface {
	RecordBatteryState(ev BatteryState) error
}

// PhaseTransition is a phase change of a live battery.
type PhaseTransition struct {
	Location string
	From     model.Phase
	To       model.Phase
	Reason   string
	Time     time.Time
}

// PhaseTransitionRecorder records phase changes.
type PhaseTransitionRecorder interface {
	RecordPhaseTransition(ev PhaseTransition) error
}

// SimulationRun summarises one day simulation.
type SimulationRun struct {
	Location     string
	Date         time.Time
	InitialSOC   float64
	FinalSOC     float64
	ChargedWh    float64
	DischargedWh float64
	Duration     time.Duration
	Time         time.Time
}

// SimulationRecorder records simulation runs.
type SimulationRecorder interface {
	RecordSimulation(ev SimulationRun) error
}

// ScheduleRun summarises one built daily plan.
type ScheduleRun struct {
	Location   string
	Date       time.Time
	RequiredWh float64
	ChargingWh float64
	UnmetWh    float64
	Sufficient bool
	Time       time.Time
}

// ScheduleRecorder records built schedules.
type ScheduleRecorder interface {
	RecordSchedule(ev ScheduleRun) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordBatteryState(BatteryState) error       { return nil }
func (NopSink) RecordPhaseTransition(PhaseTransition) error { return nil }
func (NopSink) RecordSimulation(SimulationRun) error        { return nil }
func (NopSink) RecordSchedule(ScheduleRun) error            { return nil }
