// Package optimizer drives the bounded least-squares solver over the
// log-ratio parameters of the tuned components.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/metrics"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/netlist"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/objective"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/solver"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/logger"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/units"
)

// Evaluator scores a log-ratio parameter vector
type Evaluator interface {
	Evaluate(ctx context.Context, params []float64) (*objective.Evaluation, error)
}

// Step is one objective evaluation as seen by the driver
type Step struct {
	Evaluation int
	Params     []float64
	Values     []float64
	RMS        float64
}

// Result is the solver outcome mapped back to component values
type Result struct {
	Params      []float64
	Values      []float64
	Evaluations int
	RMS         float64
	Status      solver.Status
	Converged   bool
	History     []Step
}

// Driver owns the evaluation counter and the parameter transform
type Driver struct {
	eval      Evaluator
	bindings  []netlist.Binding
	settings  solver.Settings
	collector *metrics.Collector
	log       *slog.Logger

	lower []float64
	upper []float64

	mu          sync.Mutex
	evaluations int
	history     []Step
}

// NewDriver computes the log-ratio bounds ln(min/nominal), ln(max/nominal)
// for every binding
func NewDriver(eval Evaluator, bindings []netlist.Binding, settings solver.Settings, collector *metrics.Collector) (*Driver, error) {
	if len(bindings) == 0 {
		return nil, fmt.Errorf("no components to optimize")
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	d := &Driver{
		eval:      eval,
		bindings:  append([]netlist.Binding(nil), bindings...),
		settings:  settings,
		collector: collector,
		log:       logger.With("stage", metrics.StageOptimize),
		lower:     make([]float64, len(bindings)),
		upper:     make([]float64, len(bindings)),
	}
	for i, b := range bindings {
		if !(b.Nominal > 0) || !(b.Min > 0) || !(b.Max >= b.Min) {
			return nil, fmt.Errorf("%s: need 0 < min <= max and a positive nominal (min %g, max %g, nominal %g)",
				b.Designator, b.Min, b.Max, b.Nominal)
		}
		d.lower[i] = math.Log(b.Min / b.Nominal)
		d.upper[i] = math.Log(b.Max / b.Nominal)
		if b.Nominal < b.Min || b.Nominal > b.Max {
			d.log.Warn("nominal value outside bounds, starting from the nearest bound",
				"designator", b.Designator, "nominal", b.Nominal, "min", b.Min, "max", b.Max)
		}
	}
	return d, nil
}

// Bounds returns copies of the log-ratio bounds
func (d *Driver) Bounds() (lower, upper []float64) {
	return append([]float64(nil), d.lower...), append([]float64(nil), d.upper...)
}

// Values maps log-ratio parameters to absolute component values
func (d *Driver) Values(params []float64) []float64 {
	values := make([]float64, len(params))
	for i, b := range d.bindings {
		values[i] = b.Nominal * math.Exp(params[i])
	}
	return values
}

// Evaluations returns how many objective calls have been made
func (d *Driver) Evaluations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.evaluations
}

// Run starts the solver at the nominal values (all-zero parameters) and
// returns its final vector as-is
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	d.mu.Lock()
	d.evaluations = 0
	d.history = nil
	d.mu.Unlock()

	res, err := solver.LeastSquares(ctx, solver.Problem{
		Residuals: d.residuals,
		X0:        make([]float64, len(d.bindings)),
		Lower:     d.lower,
		Upper:     d.upper,
	}, d.settings)
	if err != nil {
		return nil, fmt.Errorf("optimization aborted after %d evaluations: %w", d.Evaluations(), err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	result := &Result{
		Params:      res.X,
		Values:      d.Values(res.X),
		Evaluations: d.evaluations,
		RMS:         math.Sqrt(2 * res.Cost / float64(len(res.Residuals))),
		Status:      res.Status,
		Converged:   res.Status.Converged(),
		History:     append([]Step(nil), d.history...),
	}

	d.log.Info("optimization finished",
		"status", res.Status.String(),
		"evaluations", result.Evaluations,
		"iterations", res.Iterations,
		"rms", result.RMS)
	for i, b := range d.bindings {
		d.log.Info("optimized value", "designator", b.Designator,
			"nominal", units.FormatShort(b.Nominal), "optimized", units.FormatShort(result.Values[i]))
	}
	return result, nil
}

func (d *Driver) residuals(ctx context.Context, params []float64) ([]float64, error) {
	d.mu.Lock()
	d.evaluations++
	n := d.evaluations
	d.mu.Unlock()

	ev, err := d.eval.Evaluate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("evaluation %d: %w", n, err)
	}

	now := time.Now()
	labels := metrics.StageLabels(metrics.StageOptimize)
	metrics.RecordRMS(d.collector, ev.RMS, now, labels)
	metrics.RecordSimDuration(d.collector, ev.SimDuration, now, labels)

	d.mu.Lock()
	d.history = append(d.history, Step{
		Evaluation: n,
		Params:     append([]float64(nil), params...),
		Values:     append([]float64(nil), ev.Values...),
		RMS:        ev.RMS,
	})
	d.mu.Unlock()

	d.log.Info("evaluation", "evaluation", n, "rms", ev.RMS, "sim_ms", ev.SimDuration.Milliseconds())
	return ev.Residuals, nil
}
