// Package events defines the battery events emitted on the event bus.
//
// Available event types:
//   - PhaseEvent: a phase transition of the live battery
//   - StateEvent: a committed snapshot after a command or control tick
//   - SimulationEvent: a finished day simulation
//   - ScheduleEvent: a built daily plan
package events
