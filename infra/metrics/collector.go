package metrics

import (
	"context"

	"github.com/kilianp07/ess/core/events"
	coremetrics "github.com/kilianp07/ess/core/metrics"
	"github.com/kilianp07/ess/infra/logger"
	"github.com/kilianp07/ess/internal/eventbus"
)

// StartEventCollector subscribes to the bus and records battery events on
// sink until ctx is canceled or the bus is closed. The returned channel is
// closed once the collector has stopped.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.StateEvent:
		return sink.RecordBatteryState(coremetrics.BatteryState{Location: e.Location, Snapshot: e.Snapshot, Time: e.At})
	case events.PhaseEvent:
		if r, ok := sink.(coremetrics.PhaseTransitionRecorder); ok {
			return r.RecordPhaseTransition(coremetrics.PhaseTransition{
				Location: e.Location, From: e.From, To: e.To, Reason: e.Reason, Time: e.At,
			})
		}
	case events.SimulationEvent:
		if r, ok := sink.(coremetrics.SimulationRecorder); ok {
			return r.RecordSimulation(coremetrics.SimulationRun{
				Location:     e.Location,
				Date:         e.Date,
				InitialSOC:   e.InitialSOC,
				FinalSOC:     e.FinalSOC,
				ChargedWh:    e.ChargedWh,
				DischargedWh: e.DischargedWh,
				Duration:     e.Duration,
				Time:         e.Date,
			})
		}
	case events.ScheduleEvent:
		if r, ok := sink.(coremetrics.ScheduleRecorder); ok {
			return r.RecordSchedule(coremetrics.ScheduleRun{
				Location:   e.Location,
				Date:       e.Date,
				RequiredWh: e.RequiredWh,
				ChargingWh: e.ChargingWh,
				UnmetWh:    e.UnmetWh,
				Sufficient: e.Sufficient,
				Time:       e.Date,
			})
		}
	}
	return nil
}
