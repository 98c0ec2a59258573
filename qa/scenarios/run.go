package scenarios

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/control"
	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/rate"
	"github.com/kilianp07/ess/core/statestore"
	"github.com/kilianp07/ess/infra/metrics"
	"github.com/kilianp07/ess/internal/eventbus"
)

const location = "scenario"

func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	b, err := battery.New(sc.Battery.Config())
	if err != nil {
		t.Fatalf("battery: %v", err)
	}
	bus := eventbus.NewTypedBuffered[eventbus.Event](256)
	done := metrics.StartEventCollector(context.Background(), bus, sink)
	ctrl := control.New(location, battery.NewMachine(b, rate.Default()),
		control.WithEventBus(bus),
		control.WithStore(statestore.NewMemoryStore()),
	)

	for i, st := range sc.Steps {
		err := runStep(ctrl, st)
		if st.ExpectError != "" {
			if !errors.Is(err, expectedKind(st.ExpectError)) {
				t.Fatalf("step %d (%s): expected %s error, got %v", i, st.Action, st.ExpectError, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, st.Action, err)
		}
		if st.ExpectPhase != "" && ctrl.Status().Phase.String() != st.ExpectPhase {
			t.Fatalf("step %d (%s): expected phase %s, got %s", i, st.Action, st.ExpectPhase, ctrl.Status().Phase)
		}
	}

	bus.Close()
	<-done

	got := ctrl.Status()
	if got.Phase.String() != sc.Expected.Phase {
		t.Errorf("scenario %s expected phase %s, got %s", sc.Name, sc.Expected.Phase, got.Phase)
	}
	if sc.Expected.SOC != nil && math.Abs(got.SOC-*sc.Expected.SOC) > 1e-6 {
		t.Errorf("scenario %s expected soc %.6f, got %.6f", sc.Name, *sc.Expected.SOC, got.SOC)
	}
	if n := countTransitions(t, reg); n != sc.Expected.Transitions {
		t.Errorf("scenario %s expected %d transitions, got %d", sc.Name, sc.Expected.Transitions, n)
	}
}

func runStep(c *control.Controller, st StepDef) error {
	var err error
	switch st.Action {
	case "start_charge":
		_, err = c.StartCharge(st.ProductionWh)
	case "start_discharge":
		_, err = c.StartDischarge(st.ProductionWh, st.Night)
	case "stop":
		_, err = c.Stop()
	case "step":
		_, err = c.Step(st.Minutes)
	case "auto":
		_, err = c.Auto(st.ProductionWh, st.Night, st.Minutes)
	default:
		err = fmt.Errorf("unknown action %q", st.Action)
	}
	return err
}

func expectedKind(name string) error {
	switch name {
	case "invalid_input":
		return model.ErrInvalidInput
	case "invalid_transition":
		return model.ErrInvalidTransition
	case "configuration":
		return model.ErrConfiguration
	}
	return fmt.Errorf("unknown error kind %q", name)
}

func countTransitions(t *testing.T, reg *prometheus.Registry) int {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != "ess_phase_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return int(total)
}
