package battery

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ess/core/model"
)

func newTestBattery(t *testing.T, soc float64) *Battery {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InitialSOC = soc
	b, err := New(cfg)
	require.NoError(t, err)
	return b
}

func TestDefaultConfigPack(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 12.0, cfg.CapacityAh(), 1e-12)
	assert.InDelta(t, 12*3.7*7, cfg.EnergyCapacityWh(), 1e-9)
	assert.Equal(t, "7S4P", cfg.CellConfiguration())
	assert.Equal(t, 28, cfg.TotalCells())
	assert.InDelta(t, cfg.EnergyCapacityWh(), cfg.UsableEnergyWh(), 1e-9)

	cfg.FloorSOC = 20
	assert.InDelta(t, 0.8*12*3.7*7, cfg.UsableEnergyWh(), 1e-9)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero series":      func(c *Config) { c.Series = -1 },
		"inverted voltage": func(c *Config) { c.VoltageEmpty = 4.3 },
		"floor at 100":     func(c *Config) { c.FloorSOC = 100 },
		"initial soc":      func(c *Config) { c.InitialSOC = 101 },
		"temperature":      func(c *Config) { c.TemperatureK = 400 },
		"nan capacity":     func(c *Config) { c.CellCapacityMAh = math.NaN() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, model.ErrConfiguration)
		})
	}
}

func TestNewRejectsShortCurve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Curve = []CurvePoint{{SOC: 0, Voltage: 3.0}, {SOC: 100, Voltage: 4.1}}
	_, err := New(cfg)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestApplyCurrentClipsAtFull(t *testing.T) {
	b := newTestBattery(t, 99.5)
	applied, err := b.ApplyCurrent(1, 60, Charge)
	require.NoError(t, err)
	assert.Less(t, applied, 60.0)
	// 0.5% of 12 Ah at 1 A.
	assert.InDelta(t, 3.6, applied, 1e-9)
	assert.Equal(t, 100.0, b.SOC())
	assert.InDelta(t, 4.2, b.CellVoltage(), 1e-12)
}

func TestApplyCurrentClipsAtEmpty(t *testing.T) {
	b := newTestBattery(t, 1)
	applied, err := b.ApplyCurrent(12, 60, Discharge)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, applied, 1e-9)
	assert.Equal(t, 0.0, b.SOC())
}

func TestApplyCurrentBounds(t *testing.T) {
	currents := []float64{0.1, 1, 5, 50, 500}
	durations := []float64{0.5, 1, 60, 600}
	for _, start := range []float64{0, 10, 50, 99, 100} {
		for _, c := range currents {
			for _, d := range durations {
				for _, dir := range []Direction{Charge, Discharge} {
					b := newTestBattery(t, start)
					applied, err := b.ApplyCurrent(c, d, dir)
					require.NoError(t, err)
					soc := b.SOC()
					if soc < 0 || soc > 100 {
						t.Fatalf("soc %v out of range after %v A for %v min from %v", soc, c, d, start)
					}
					if applied < d && soc != 0 && soc != 100 {
						t.Fatalf("truncated step left soc %v off the boundary", soc)
					}
				}
			}
		}
	}
}

func TestApplyCurrentRejectsInvalidInput(t *testing.T) {
	b := newTestBattery(t, 50)
	for _, tc := range []struct {
		current, minutes float64
	}{
		{0, 10}, {-1, 10}, {1, 0}, {1, -5}, {math.NaN(), 1}, {1, math.Inf(1)},
	} {
		_, err := b.ApplyCurrent(tc.current, tc.minutes, Charge)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	}
	assert.Equal(t, 50.0, b.SOC())
}

func TestApplyRestOnlyWhileResting(t *testing.T) {
	b := newTestBattery(t, 50)
	err := b.ApplyRest(10)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	b.mode = Resting{}
	require.NoError(t, b.ApplyRest(10))
	v := b.CellVoltage()
	require.NoError(t, b.ApplyRest(20))
	assert.Equal(t, v, b.CellVoltage())
	assert.InDelta(t, 30, b.Mode().(Resting).ElapsedMinutes, 1e-12)
}

func TestSetSOCAndTemperature(t *testing.T) {
	b := newTestBattery(t, 50)
	assert.ErrorIs(t, b.SetSOC(-1), model.ErrInvalidInput)
	assert.ErrorIs(t, b.SetTemperature(10), model.ErrInvalidInput)
	assert.Equal(t, 50.0, b.SOC())

	require.NoError(t, b.SetSOC(80))
	assert.InDelta(t, b.Curve().Voltage(80), b.CellVoltage(), 1e-12)
	require.NoError(t, b.SetTemperature(300))
	assert.Equal(t, 300.0, b.Temperature())
}

func TestCloneIsIndependent(t *testing.T) {
	b := newTestBattery(t, 40)
	c := b.Clone()
	_, err := c.ApplyCurrent(1.2, 60, Charge)
	require.NoError(t, err)
	assert.Equal(t, 40.0, b.SOC())
	assert.InDelta(t, 50.0, c.SOC(), 1e-9)
}

func TestSnapshotRestore(t *testing.T) {
	b := newTestBattery(t, 60)
	b.mode = Discharging{Current: 1, CRate: 0.0833}
	b.dischargeCurrent = 1
	snap := b.Snapshot()
	assert.Equal(t, model.PhaseDischarging, snap.Phase)
	assert.Nil(t, snap.Rest)

	other := newTestBattery(t, 10)
	require.NoError(t, other.Restore(snap))
	assert.Equal(t, snap, other.Snapshot())
}

func TestRestoreRejectsInconsistentSnapshot(t *testing.T) {
	b := newTestBattery(t, 20)
	snap := b.Snapshot()
	snap.Phase = model.PhaseRest
	err := b.Restore(snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
	assert.Equal(t, model.PhaseIdle, b.Phase())
	assert.Equal(t, 20.0, b.SOC())
}

func TestRestoreRejectsNaNTemperature(t *testing.T) {
	b := newTestBattery(t, 40)
	snap := b.Snapshot()
	snap.Temperature = math.NaN()
	err := b.Restore(snap)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Equal(t, 40.0, b.SOC())
	assert.False(t, math.IsNaN(b.Temperature()))
}
