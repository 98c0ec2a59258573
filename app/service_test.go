package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ess/config"
	"github.com/kilianp07/ess/core/events"
	coremetrics "github.com/kilianp07/ess/core/metrics"
	"github.com/kilianp07/ess/core/model"
	coremqtt "github.com/kilianp07/ess/core/mqtt"
	"github.com/kilianp07/ess/core/prediction"
	"github.com/kilianp07/ess/core/rate"
	"github.com/kilianp07/ess/core/statestore"
	"github.com/kilianp07/ess/infra/mqtt"
)

func testForecast() []model.HourlyForecast {
	fc := make([]model.HourlyForecast, model.HoursPerDay)
	for h := range fc {
		fc[h].Hour = h
		if h >= 6 && h < 18 {
			fc[h].PowerProductionWh = 1000
		} else {
			fc[h].PowerConsumptionWh = 1200
		}
	}
	return fc
}

type fixture struct {
	svc   *Service
	pub   *mqtt.MockPublisher
	store *statestore.MemoryStore
	clock time.Time
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Service.Location = "forest"
	cfg.Battery.InitialSOC = 50
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	f := &fixture{
		pub:   mqtt.NewMockPublisher(),
		store: statestore.NewMemoryStore(),
		clock: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
	}
	engine := prediction.MockEngine{Forecasts: map[string][]model.HourlyForecast{
		"forest":     testForecast(),
		"lake_front": testForecast(),
	}}
	svc, err := New(cfg,
		WithEngine(engine),
		WithMQTTClient(f.pub),
		WithStore(f.store),
		WithMetricsSink(coremetrics.NopSink{}),
		WithClock(func() time.Time { return f.clock }),
	)
	require.NoError(t, err)
	f.svc = svc
	t.Cleanup(func() { _ = svc.Close() })
	return f
}

func TestNewRejectsUnknownServiceLocation(t *testing.T) {
	cfg := config.Default()
	cfg.Service.Location = "moon"
	_, err := New(cfg, WithStore(statestore.NewMemoryStore()))
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t, nil)
	st := f.svc.GetStatus()
	assert.Equal(t, "forest", st.Location)
	assert.Equal(t, model.PhaseIdle, st.Phase)
	assert.InDelta(t, 50.0, st.SOC, 1e-9)
	assert.Equal(t, "7S4P", st.CellConfiguration)
}

func TestStartCharge(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.StartCharge(1000, "moon")
	require.ErrorIs(t, err, model.ErrInvalidInput)

	out, err := f.svc.StartCharge(30000, "forest")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseChargingCC, out.Phase)
	assert.Less(t, out.CRate, 0.1)
	assert.Contains(t, out.Message, "throttled")

	_, err = f.svc.StartCharge(1000, "forest")
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	assert.Len(t, f.pub.Published("forest"), 1)
	rec, ok, err := f.store.Load("forest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.PhaseChargingCC, rec.Snapshot.Phase)
}

func TestStartDischargeUsesLatestReading(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.RecordProduction(coremqtt.ProductionReading{Location: "forest", ProductionWh: 30000, Timestamp: f.clock})

	out, err := f.svc.StartDischarge("forest", false)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDischarging, out.Phase)
	assert.True(t, out.Rates.Throttled)
	assert.Contains(t, out.Message, "daytime")

	_, err = f.svc.StartDischarge("forest", true)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	out, err = f.svc.Stop()
	require.NoError(t, err)
	assert.Equal(t, model.PhaseRest, out.Phase)
}

func TestBuildDailySchedule(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.svc.Bus().Subscribe()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	plan, err := f.svc.BuildDailySchedule("forest", date, 5, nil)
	require.NoError(t, err)
	require.Len(t, plan.Entries, model.HoursPerDay)
	assert.Equal(t, model.EssCharging, plan.Entries[12].EssMode)
	// the pack holds far less than one night of streetlights
	assert.Equal(t, model.EssDischarging, plan.Entries[18].EssMode)
	assert.Equal(t, model.EssIdle, plan.Entries[20].EssMode)
	assert.InDelta(t, 12*1200.0, plan.Summary.RequiredBatteryCapacityWh, 1e-6)
	assert.False(t, plan.Summary.IsSufficient)

	ev := <-sub
	se, ok := ev.(events.ScheduleEvent)
	require.True(t, ok)
	assert.Equal(t, "forest", se.Location)
	assert.Equal(t, plan.Summary.IsSufficient, se.Sufficient)

	again, err := f.svc.BuildDailySchedule("forest", date, 5, testForecast())
	require.NoError(t, err)
	assert.Equal(t, plan, again)

	_, err = f.svc.BuildDailySchedule("moon", date, 5, nil)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.svc.BuildDailySchedule("forest", date, 5, testForecast()[:10])
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSimulateDayLeavesLiveBatteryAlone(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Simulation.InitialSOC = 80 })
	before := f.svc.GetStatus()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	res, err := f.svc.SimulateDay("lake_front", date, 5, 6, 18)
	require.NoError(t, err)
	require.Len(t, res.Hours, model.HoursPerDay)
	assert.InDelta(t, 80.0, res.Totals.InitialSOC, 1e-9)
	assert.Equal(t, before, f.svc.GetStatus())

	again, err := f.svc.SimulateDay("lake_front", date, 5, 6, 18)
	require.NoError(t, err)
	assert.Equal(t, res.Hours, again.Hours)

	_, err = f.svc.SimulateDay("lake_front", date, 5, 18, 6)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.svc.SimulateDay("moon", date, 5, 6, 18)
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSimulateDayFromLive(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Simulation.FromLive = true; c.Battery.InitialSOC = 64 })
	res, err := f.svc.SimulateDay("forest", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 5, 6, 18)
	require.NoError(t, err)
	assert.InDelta(t, 64.0, res.Totals.InitialSOC, 1e-9)
}

func TestTickFollowsDayAndNight(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Tick(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, res.Transitions)
	assert.Equal(t, model.PhaseDischarging, res.Transitions[0].To)
	assert.Equal(t, model.PhaseDischarging, f.svc.GetStatus().Phase)

	res, err = f.svc.Tick(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, res.Transitions)
	assert.Equal(t, model.PhaseRest, res.Transitions[0].To)
	assert.Equal(t, "daytime", res.Transitions[0].Reason)
}

func TestRunRestoresAndStops(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Service.TickInterval = time.Second })
	snap := f.svc.GetStatus().Snapshot
	snap.SOC = 77
	require.NoError(t, f.store.Save(statestore.Record{Location: "forest", Snapshot: snap, UpdatedAt: f.clock}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.svc.Run(ctx) }()

	require.Eventually(t, func() bool { return f.svc.GetStatus().Phase == model.PhaseDischarging }, 5*time.Second, 20*time.Millisecond)
	soc := f.svc.GetStatus().SOC
	assert.LessOrEqual(t, soc, 77.0)
	assert.Greater(t, soc, 70.0)
	f.pub.Inject(coremqtt.ProductionReading{Location: "forest", ProductionWh: 500, Timestamp: f.clock})
	r, ok := f.svc.latestReading("forest")
	require.True(t, ok)
	assert.Equal(t, 500.0, r.ProductionWh)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestPlanAndSimulationAgreeOnChargeRate(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Simulation.InitialSOC = 10 })
	fc := testForecast()
	for h := 6; h < 18; h++ {
		fc[h].PowerProductionWh = 2000
	}
	fc[8].PowerProductionWh = 30000
	f.svc.engine = prediction.MockEngine{Forecasts: map[string][]model.HourlyForecast{"forest": fc}}
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	plan, err := f.svc.BuildDailySchedule("forest", date, 5, nil)
	require.NoError(t, err)
	res, err := f.svc.SimulateDay("forest", date, 5, 6, 18)
	require.NoError(t, err)

	assert.Equal(t, rate.Default().Adapt(2000).Charge, plan.Entries[6].ChargeCRate)
	assert.Less(t, plan.Entries[8].ChargeCRate, 0.1)
	capAh := f.svc.cfg.Battery.CapacityAh()
	checked := 0
	for h := 6; h < 18; h++ {
		hr := res.Hours[h]
		if hr.Phase != model.PhaseChargingCC {
			continue
		}
		assert.InDelta(t, plan.Entries[h].ChargeCRate, hr.ChargeCurrent/capAh, 1e-9, "hour %d", h)
		checked++
	}
	assert.GreaterOrEqual(t, checked, 3)
}

func TestScheduleCapacityStopsAtFloor(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Battery.FloorSOC = 50 })
	plan, err := f.svc.BuildDailySchedule("forest", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 5, testForecast())
	require.NoError(t, err)
	assert.InDelta(t, -0.5*f.svc.cfg.Battery.EnergyCapacityWh(), plan.Entries[18].EssPower, 1e-9)
}

func TestTickUsesProductionOfTheHour(t *testing.T) {
	f := newFixture(t, nil)
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	f.svc.RecordProduction(coremqtt.ProductionReading{Location: "forest", ProductionWh: 30000, Timestamp: noon.Add(-30 * time.Minute)})
	prod, err := f.svc.productionFor(noon)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, prod)

	f.svc.RecordProduction(coremqtt.ProductionReading{Location: "forest", ProductionWh: 30000, Timestamp: noon.Add(10 * time.Minute)})
	_, err = f.svc.Tick(noon.Add(20 * time.Minute))
	require.NoError(t, err)
	st := f.svc.GetStatus()
	assert.Equal(t, model.PhaseChargingCC, st.Phase)
	assert.InDelta(t, rate.Default().Adapt(30000).Charge, st.CRate, 1e-12)
}

func TestLiveMachineUsesSeasonalPolicy(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Rate.Seasonal = true })
	out, err := f.svc.StartDischarge("forest", true)
	require.NoError(t, err)
	assert.InDelta(t, 0.0734, out.CRate, 1e-12)
}
