package battery

import (
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/kilianp07/ess/core/model"
)

// Curve maps state of charge to open-circuit cell voltage. Implementations
// must be monotonic non-decreasing in soc.
type Curve interface {
	// Voltage returns the cell voltage at soc percent.
	Voltage(soc float64) float64
	// SOCAtVoltage returns the lowest soc at which Voltage reaches v, or
	// +Inf when the curve never reaches it.
	SOCAtVoltage(v float64) float64
}

// CurvePoint is one calibration point of a TableCurve.
type CurvePoint struct {
	SOC     float64 `json:"soc"`
	Voltage float64 `json:"voltage"`
}

// TableCurve interpolates linearly between calibration points.
type TableCurve struct {
	points []CurvePoint
	pl     interp.PiecewiseLinear
}

// NewTableCurve builds a curve from points sorted by strictly increasing soc,
// spanning 0 to 100 percent, with non-decreasing voltages.
func NewTableCurve(points []CurvePoint) (*TableCurve, error) {
	if len(points) < 2 {
		return nil, model.ConfigError("voltage curve needs at least two points")
	}
	if points[0].SOC != 0 || points[len(points)-1].SOC != 100 {
		return nil, model.ConfigError("voltage curve must span 0 to 100 percent")
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		if i > 0 && (p.SOC <= points[i-1].SOC || p.Voltage < points[i-1].Voltage) {
			return nil, model.ConfigError("voltage curve must be monotonic at point %d", i)
		}
		xs[i], ys[i] = p.SOC, p.Voltage
	}
	c := &TableCurve{points: append([]CurvePoint(nil), points...)}
	if err := c.pl.Fit(xs, ys); err != nil {
		return nil, model.ConfigError("voltage curve: %v", err)
	}
	return c, nil
}

// Voltage implements Curve.
func (c *TableCurve) Voltage(soc float64) float64 {
	return c.pl.Predict(clamp(soc, 0, 100))
}

// SOCAtVoltage implements Curve by solving the first segment that reaches v.
func (c *TableCurve) SOCAtVoltage(v float64) float64 {
	if v <= c.points[0].Voltage {
		return c.points[0].SOC
	}
	for i := 1; i < len(c.points); i++ {
		p0, p1 := c.points[i-1], c.points[i]
		if p1.Voltage < v {
			continue
		}
		if p1.Voltage == p0.Voltage {
			return p0.SOC
		}
		return p0.SOC + (v-p0.Voltage)/(p1.Voltage-p0.Voltage)*(p1.SOC-p0.SOC)
	}
	return math.Inf(1)
}

// DefaultCurvePoints samples the open-circuit approximation
// empty + s*(full-empty) + 0.1*sin(pi*s) every ten percent.
func DefaultCurvePoints(empty, full float64) []CurvePoint {
	pts := make([]CurvePoint, 0, 11)
	for i := 0; i <= 10; i++ {
		s := float64(i) / 10
		v := empty + s*(full-empty) + 0.1*math.Sin(math.Pi*s)
		pts = append(pts, CurvePoint{SOC: float64(i * 10), Voltage: clamp(v, empty, full)})
	}
	return pts
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
