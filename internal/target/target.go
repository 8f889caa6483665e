// Package target builds the desired response and per-point error weights on
// the simulator's frequency grid.
package target

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/response"
)

// Generator produces a target vector and matching weights for a frequency
// grid. Both results have length mode.Width(len(freqs)).
type Generator interface {
	Generate(freqs []float64, mode response.MatchMode) (target, weights []float64, err error)
}

var ErrEmptyTable = errors.New("target table has no points")

// Point is one row of a target table
type Point struct {
	FrequencyHz float64
	MagnitudeDB float64
	PhaseDeg    float64
	Weight      float64
}

// Segment selects which half of a Both-mode vector a band applies to
type Segment string

const (
	SegmentAll       Segment = ""
	SegmentAmplitude Segment = "amplitude"
	SegmentPhase     Segment = "phase"
)

// Band multiplies the weights of every frequency in [FromHz, ToHz]
type Band struct {
	FromHz  float64
	ToHz    float64
	Factor  float64
	Segment Segment
}

func (b Band) contains(f float64) bool {
	return f >= b.FromHz && f <= b.ToHz
}

func (b Band) appliesTo(seg Segment) bool {
	return b.Segment == SegmentAll || b.Segment == seg
}

// TableGenerator interpolates a sorted table of points piecewise-linearly
// over log10(frequency). Frequencies outside the table take the nearest end
// point.
type TableGenerator struct {
	points []Point
	bands  []Band

	logF   []float64
	magDB  curve
	phase  curve
	weight curve
}

// NewTableGenerator validates and sorts points
func NewTableGenerator(points []Point, bands []Band) (*TableGenerator, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTable
	}
	sorted := append([]Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FrequencyHz < sorted[j].FrequencyHz })

	g := &TableGenerator{points: sorted, bands: append([]Band(nil), bands...)}
	for i, p := range sorted {
		if !(p.FrequencyHz > 0) || math.IsInf(p.FrequencyHz, 0) {
			return nil, fmt.Errorf("target point %d: frequency %g must be positive", i, p.FrequencyHz)
		}
		if p.Weight < 0 {
			return nil, fmt.Errorf("target point %d: weight %g must not be negative", i, p.Weight)
		}
		if i > 0 && p.FrequencyHz == sorted[i-1].FrequencyHz {
			return nil, fmt.Errorf("target point %d: duplicate frequency %g Hz", i, p.FrequencyHz)
		}
		g.logF = append(g.logF, math.Log10(p.FrequencyHz))
	}
	for i, b := range bands {
		if b.ToHz < b.FromHz {
			return nil, fmt.Errorf("weight band %d: to_hz %g is below from_hz %g", i, b.ToHz, b.FromHz)
		}
		if b.Factor < 0 {
			return nil, fmt.Errorf("weight band %d: factor %g must not be negative", i, b.Factor)
		}
		switch b.Segment {
		case SegmentAll, SegmentAmplitude, SegmentPhase:
		default:
			return nil, fmt.Errorf("weight band %d: unknown segment %q", i, b.Segment)
		}
	}

	var err error
	if g.magDB, err = newCurve(g.logF, sorted, func(p Point) float64 { return p.MagnitudeDB }); err != nil {
		return nil, err
	}
	if g.phase, err = newCurve(g.logF, sorted, func(p Point) float64 { return p.PhaseDeg }); err != nil {
		return nil, err
	}
	if g.weight, err = newCurve(g.logF, sorted, func(p Point) float64 { return p.Weight }); err != nil {
		return nil, err
	}
	return g, nil
}

// Points returns the sorted table
func (g *TableGenerator) Points() []Point {
	return append([]Point(nil), g.points...)
}

// Generate evaluates the table on freqs. Amplitude targets are linear
// magnitudes and phase targets are radians.
func (g *TableGenerator) Generate(freqs []float64, mode response.MatchMode) ([]float64, []float64, error) {
	if !mode.Valid() {
		return nil, nil, fmt.Errorf("unknown match mode %d", int(mode))
	}
	n := len(freqs)
	target := make([]float64, 0, mode.Width(n))
	weights := make([]float64, 0, mode.Width(n))

	if mode == response.Amplitude || mode == response.Both {
		for _, f := range freqs {
			x, err := logFrequency(f)
			if err != nil {
				return nil, nil, err
			}
			target = append(target, math.Pow(10, g.magDB.at(x)/20))
			weights = append(weights, g.weightAt(f, x, SegmentAmplitude))
		}
	}
	if mode == response.Phase || mode == response.Both {
		for _, f := range freqs {
			x, err := logFrequency(f)
			if err != nil {
				return nil, nil, err
			}
			target = append(target, g.phase.at(x)*math.Pi/180)
			weights = append(weights, g.weightAt(f, x, SegmentPhase))
		}
	}
	return target, weights, nil
}

func (g *TableGenerator) weightAt(f, x float64, seg Segment) float64 {
	w := g.weight.at(x)
	for _, b := range g.bands {
		if b.appliesTo(seg) && b.contains(f) {
			w *= b.Factor
		}
	}
	return w
}

func logFrequency(f float64) (float64, error) {
	if !(f > 0) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("frequency %g is not positive", f)
	}
	return math.Log10(f), nil
}

// curve is a clamped piecewise-linear function; a single point is constant
type curve struct {
	lo, hi   float64
	first    float64
	last     float64
	fitted   *interp.PiecewiseLinear
	constant bool
}

func newCurve(xs []float64, points []Point, value func(Point) float64) (curve, error) {
	ys := make([]float64, len(points))
	for i, p := range points {
		ys[i] = value(p)
	}
	c := curve{lo: xs[0], hi: xs[len(xs)-1], first: ys[0], last: ys[len(ys)-1]}
	if len(xs) == 1 {
		c.constant = true
		return c, nil
	}
	c.fitted = &interp.PiecewiseLinear{}
	if err := c.fitted.Fit(xs, ys); err != nil {
		return curve{}, fmt.Errorf("failed to fit target table: %w", err)
	}
	return c, nil
}

func (c curve) at(x float64) float64 {
	switch {
	case c.constant || x <= c.lo:
		return c.first
	case x >= c.hi:
		return c.last
	}
	return c.fitted.Predict(x)
}
