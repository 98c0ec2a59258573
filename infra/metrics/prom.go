package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/ess/core/metrics"
)

// PromSink exposes battery state and activity as Prometheus metrics.
type PromSink struct {
	soc         *prometheus.GaugeVec
	voltage     *prometheus.GaugeVec
	current     *prometheus.GaugeVec
	phase       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	simulations *prometheus.HistogramVec
	schedules   *prometheus.CounterVec
	unmet       *prometheus.GaugeVec
}

// NewPromSink registers the battery metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the metrics on reg. A nil registerer
// defaults to the global one. Collectors already registered by an earlier
// sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		soc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ess_battery_soc_percent",
			Help: "State of charge of the battery",
		}, []string{"location"}),
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ess_battery_pack_voltage_volts",
			Help: "Pack voltage derived from the state of charge",
		}, []string{"location"}),
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ess_battery_current_amps",
			Help: "Charge or discharge current set-point",
		}, []string{"location", "direction"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ess_battery_phase",
			Help: "1 for the phase the battery is in, 0 otherwise",
		}, []string{"location", "phase"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ess_phase_transitions_total",
			Help: "Phase transitions of the live battery",
		}, []string{"location", "from", "to"}),
		simulations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ess_simulation_duration_seconds",
			Help:    "Wall time of day simulations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"location"}),
		schedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ess_schedules_built_total",
			Help: "Daily schedules built",
		}, []string{"location", "sufficient"}),
		unmet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ess_schedule_unmet_load_wh",
			Help: "Night load the last schedule could not cover",
		}, []string{"location"}),
	}
	if err := register(reg, &s.soc, &s.voltage, &s.current, &s.phase, &s.unmet); err != nil {
		return nil, err
	}
	if err := register(reg, &s.transitions, &s.schedules); err != nil {
		return nil, err
	}
	if err := register(reg, &s.simulations); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds each collector to reg, swapping in the existing collector
// when one with the same description is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, cs ...*C) error {
	for _, c := range cs {
		if err := reg.Register(*c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
			existing, ok := are.ExistingCollector.(C)
			if !ok {
				return err
			}
			*c = existing
		}
	}
	return nil
}

var phases = []string{"IDLE", "CHARGING_CC", "CHARGING_CV", "DISCHARGING", "REST"}

// RecordBatteryState updates the state gauges.
func (s *PromSink) RecordBatteryState(ev coremetrics.BatteryState) error {
	snap := ev.Snapshot
	s.soc.WithLabelValues(ev.Location).Set(snap.SOC)
	s.voltage.WithLabelValues(ev.Location).Set(snap.PackVoltage)
	s.current.WithLabelValues(ev.Location, "charge").Set(snap.ChargeCurrent)
	s.current.WithLabelValues(ev.Location, "discharge").Set(snap.DischargeCurrent)
	cur := snap.Phase.String()
	for _, p := range phases {
		v := 0.0
		if p == cur {
			v = 1
		}
		s.phase.WithLabelValues(ev.Location, p).Set(v)
	}
	return nil
}

// RecordPhaseTransition counts a transition.
func (s *PromSink) RecordPhaseTransition(ev coremetrics.PhaseTransition) error {
	s.transitions.WithLabelValues(ev.Location, ev.From.String(), ev.To.String()).Inc()
	return nil
}

// RecordSimulation observes the simulation wall time.
func (s *PromSink) RecordSimulation(ev coremetrics.SimulationRun) error {
	s.simulations.WithLabelValues(ev.Location).Observe(ev.Duration.Seconds())
	return nil
}

// RecordSchedule counts a schedule and tracks its unmet load.
func (s *PromSink) RecordSchedule(ev coremetrics.ScheduleRun) error {
	sufficient := "false"
	if ev.Sufficient {
		sufficient = "true"
	}
	s.schedules.WithLabelValues(ev.Location, sufficient).Inc()
	s.unmet.WithLabelValues(ev.Location).Set(ev.UnmetWh)
	return nil
}
