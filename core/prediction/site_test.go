package prediction

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ess/core/model"
)

var day = time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)

func TestWindProfile(t *testing.T) {
	p := WindProfile(10)
	assert.Equal(t, 8.0, p[0])
	assert.Equal(t, 8.0, p[5])
	assert.Equal(t, 10.0, p[6])
	assert.Equal(t, 12.0, p[12])
	assert.Equal(t, 12.0, p[17])
	assert.Equal(t, 10.0, p[18])
	assert.Equal(t, 10.0, p[23])
}

func TestSiteEngineDefaults(t *testing.T) {
	e, err := NewSiteEngine(SiteConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"building5", "forest", "lake_front"}, e.Locations())
	load, err := e.NightLoadWh("forest")
	require.NoError(t, err)
	assert.Equal(t, 14*150.0, load)
}

func TestSiteEnginePredictDay(t *testing.T) {
	e, err := NewSiteEngine(SiteConfig{})
	require.NoError(t, err)
	fc, err := e.PredictDay("building5", day, 3.5)
	require.NoError(t, err)
	require.Len(t, fc, 24)

	piezo := 754 * 4 * 5 * 0.7
	// 0.5 * 1.225 * 3.14 * 4.9^3 * 0.35 W per turbine, two turbines, 70% conversion.
	assert.InDelta(t, 79.193954*2*0.7+piezo, fc[8].PowerProductionWh, 1e-4)
	assert.InDelta(t, 136.847152*2*0.7+piezo, fc[13].PowerProductionWh, 1e-4)
	assert.Zero(t, fc[8].PowerConsumptionWh)
	assert.Equal(t, 8*150.0, fc[20].PowerConsumptionWh)
	require.NotNil(t, fc[2].WindSpeed)
	assert.InDelta(t, 2.8, *fc[2].WindSpeed, 1e-12)

	_, err = model.ValidateDay(fc)
	assert.NoError(t, err)

	windy, err := e.PredictDay("building5", day, 15)
	require.NoError(t, err)
	// 15 m/s * 1.4 saturates the 1 kW rating.
	assert.InDelta(t, 1000*2*0.7+piezo, windy[8].PowerProductionWh, 1e-9)
}

func TestSiteEngineCutIn(t *testing.T) {
	e, err := NewSiteEngine(SiteConfig{})
	require.NoError(t, err)
	s, ok := e.Site("lake_front")
	require.True(t, ok)
	assert.Zero(t, e.WindWh(s, 1.0))
	assert.Positive(t, e.WindWh(s, 2.0))
}

func TestSiteEngineRejectsInput(t *testing.T) {
	e, err := NewSiteEngine(SiteConfig{})
	require.NoError(t, err)
	_, err = e.PredictDay("mars", day, 3)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = e.PredictDay("forest", day, -1)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSiteConfigOverrides(t *testing.T) {
	cfg := SiteConfig{
		DisableDefaults: true,
		Sites: map[string]Site{
			"pier": {Piezo: Piezo{HourlyPeople: 10, StepsPerPerson: 1, WattsPerStep: 1}, Streetlights: 2},
		},
	}
	e, err := NewSiteEngine(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"pier"}, e.Locations())
	fc, err := e.PredictDay("pier", day, 0)
	require.NoError(t, err)
	assert.InDelta(t, 7, fc[0].PowerProductionWh, 1e-12)

	_, err = NewSiteEngine(SiteConfig{DisableDefaults: true})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestMockEngine(t *testing.T) {
	fc := []model.HourlyForecast{{Hour: 0, PowerProductionWh: 1}}
	m := MockEngine{Forecasts: map[string][]model.HourlyForecast{"a": fc}}
	out, err := m.PredictDay("a", day, 0)
	require.NoError(t, err)
	out[0].PowerProductionWh = 99
	assert.Equal(t, 1.0, fc[0].PowerProductionWh)

	_, err = m.PredictDay("b", day, 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	boom := errors.New("boom")
	_, err = MockEngine{Err: boom}.PredictDay("a", day, 0)
	assert.ErrorIs(t, err, boom)
}
