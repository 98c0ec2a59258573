package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is attempted; the
// errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordBatteryState(ev BatteryState) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordBatteryState(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordPhaseTransition(ev PhaseTransition) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(PhaseTransitionRecorder); ok {
			errs = append(errs, rec.RecordPhaseTransition(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordSimulation(ev SimulationRun) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(SimulationRecorder); ok {
			errs = append(errs, rec.RecordSimulation(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordSchedule(ev ScheduleRun) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(ScheduleRecorder); ok {
			errs = append(errs, rec.RecordSchedule(ev))
		}
	}
	return errors.Join(errs...)
}
