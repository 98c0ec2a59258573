package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/rate"
)

var simDate = time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

func forecast(dayWh float64) []model.HourlyForecast {
	fc := make([]model.HourlyForecast, model.HoursPerDay)
	for h := range fc {
		fc[h].Hour = h
		if h >= 6 && h < 18 {
			fc[h].PowerProductionWh = dayWh
		}
	}
	return fc
}

func newBattery(t *testing.T, soc float64) *battery.Battery {
	t.Helper()
	cfg := battery.DefaultConfig()
	cfg.InitialSOC = soc
	b, err := battery.New(cfg)
	require.NoError(t, err)
	return b
}

func TestRunChargesByDayDischargesAtNight(t *testing.T) {
	b := newBattery(t, 30)
	res, err := New(rate.Default()).Run(b, forecast(1000), DefaultOptions(simDate))
	require.NoError(t, err)
	require.Len(t, res.Hours, 24)

	first := res.Hours[0]
	assert.True(t, first.IsNighttime)
	assert.Equal(t, model.PhaseDischarging, first.Phase)
	assert.Less(t, first.EndSOC, first.StartSOC)
	assert.InDelta(t, 0.9996, first.DischargeCurrent, 1e-9)

	noon := res.Hours[12]
	assert.False(t, noon.IsNighttime)
	assert.Equal(t, model.PhaseChargingCC, noon.Phase)
	assert.InDelta(t, 1.2, noon.ChargeCurrent, 1e-9)
	assert.InDelta(t, 10, noon.SOCChange, 1e-9)

	for i, h := range res.Hours {
		assert.Equal(t, i, h.Hour)
		assert.GreaterOrEqual(t, h.EndSOC, 0.0)
		assert.LessOrEqual(t, h.EndSOC, 100.0)
		if i > 0 {
			assert.Equal(t, res.Hours[i-1].EndSOC, h.StartSOC)
		}
	}
	assert.GreaterOrEqual(t, res.Totals.ChargeCycles, 1)
	assert.GreaterOrEqual(t, res.Totals.DischargeCycles, 1)
	assert.Equal(t, 12000.0, res.Totals.TotalPowerProduction)
	assert.Equal(t, 30.0, res.Totals.InitialSOC)
	assert.Equal(t, res.Hours[23].EndSOC, res.Totals.FinalSOC)
	assert.NotEmpty(t, res.Events)
}

func TestRunEnergyBalance(t *testing.T) {
	b := newBattery(t, 55)
	cfg := b.Config()
	res, err := New(rate.Default()).Run(b, forecast(500), DefaultOptions(simDate))
	require.NoError(t, err)
	netWh := res.Totals.TotalChargePower - res.Totals.TotalDischargePower
	deltaSOC := netWh / cfg.PackNominalVoltage() / cfg.CapacityAh() * 100
	assert.InDelta(t, res.Totals.FinalSOC-res.Totals.InitialSOC, deltaSOC, 1e-9)
}

func TestRunIsDeterministic(t *testing.T) {
	sim := New(rate.Default())
	fc := forecast(30000)
	a, err := sim.Run(newBattery(t, 42), fc, DefaultOptions(simDate))
	require.NoError(t, err)
	b, err := sim.Run(newBattery(t, 42), fc, DefaultOptions(simDate))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunLeavesSourceUntouched(t *testing.T) {
	live := newBattery(t, 70)
	_, err := New(rate.Default()).Run(live.Clone(), forecast(1000), DefaultOptions(simDate))
	require.NoError(t, err)
	assert.Equal(t, 70.0, live.SOC())
	assert.Equal(t, model.PhaseIdle, live.Phase())
}

func TestRunEventsUseSimulatedClock(t *testing.T) {
	res, err := New(rate.Default()).Run(newBattery(t, 50), forecast(1000), DefaultOptions(simDate))
	require.NoError(t, err)
	for _, ev := range res.Events {
		assert.False(t, ev.At.Before(simDate), "event %v before simulated day", ev.At)
		assert.True(t, ev.At.Before(simDate.Add(25*time.Hour)))
	}
}

func TestRunSeasonalPolicy(t *testing.T) {
	cfg := rate.Config{Seasonal: true}
	cfg.SetDefaults()
	p, err := rate.NewPolicy(cfg)
	require.NoError(t, err)
	winter := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	res, err := New(p).Run(newBattery(t, 50), forecast(0), DefaultOptions(winter))
	require.NoError(t, err)
	// 0.0932C of a 12 Ah pack.
	assert.InDelta(t, 0.0932*12, res.Hours[0].DischargeCurrent, 1e-9)
}

func TestRunRejectsBadWindow(t *testing.T) {
	sim := New(rate.Default())
	_, err := sim.Run(newBattery(t, 50), forecast(1), Options{Date: simDate, StartHour: 18, EndHour: 6})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = sim.Run(newBattery(t, 50), forecast(1), Options{Date: simDate, StartHour: 6, EndHour: 6})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = sim.Run(newBattery(t, 50), forecast(1)[:10], DefaultOptions(simDate))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
