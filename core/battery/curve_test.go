package battery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ess/core/model"
)

func TestDefaultCurveMonotonic(t *testing.T) {
	c, err := NewTableCurve(DefaultCurvePoints(3.0, 4.2))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, c.Voltage(0), 1e-12)
	assert.InDelta(t, 4.2, c.Voltage(100), 1e-12)
	prev := c.Voltage(0)
	for soc := 0.5; soc <= 100; soc += 0.5 {
		v := c.Voltage(soc)
		if v < prev {
			t.Fatalf("voltage decreased at soc %v: %v < %v", soc, v, prev)
		}
		prev = v
	}
}

func TestTableCurveInverse(t *testing.T) {
	c, err := NewTableCurve([]CurvePoint{{0, 3.0}, {80, 4.2}, {100, 4.2}})
	require.NoError(t, err)
	assert.InDelta(t, 3.6, c.Voltage(40), 1e-12)
	assert.InDelta(t, 40, c.SOCAtVoltage(3.6), 1e-12)
	assert.InDelta(t, 80, c.SOCAtVoltage(4.2), 1e-12)
	assert.Equal(t, 0.0, c.SOCAtVoltage(2.5))
	assert.True(t, math.IsInf(c.SOCAtVoltage(4.3), 1))
	assert.InDelta(t, 4.2, c.Voltage(150), 1e-12)
}

func TestNewTableCurveValidation(t *testing.T) {
	bad := [][]CurvePoint{
		{{0, 3.0}},
		{{10, 3.0}, {100, 4.2}},
		{{0, 3.0}, {50, 3.9}, {50, 4.0}, {100, 4.2}},
		{{0, 3.0}, {50, 4.0}, {100, 3.9}},
	}
	for _, pts := range bad {
		_, err := NewTableCurve(pts)
		assert.ErrorIs(t, err, model.ErrConfiguration)
	}
}
