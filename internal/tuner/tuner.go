// Package tuner runs the complete tuning pipeline for one schematic:
// netlist generation, binding, the initial simulation, optimization,
// verification, quantization and the run report.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/metrics"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/netlist"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/objective"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/optimizer"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/rawfile"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/report"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/schematic"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/simsync"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/target"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/config"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/logger"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/models"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/units"
)

// Pipeline stages, used as log attributes and error prefixes
const (
	StageSetup    = "setup"
	StageNetlist  = "netlist"
	StageBind     = "bind"
	StageInitial  = metrics.StageInitial
	StageOptimize = metrics.StageOptimize
	StageVerify   = metrics.StageVerify
	StageQuantize = "quantize"
	StageReport   = "report"
)

// ErrAborted is returned when a confirmation hook declines to continue
var ErrAborted = errors.New("aborted by user")

// LauncherFactory builds one simulator invocation with the given arguments
type LauncherFactory func(args ...string) simsync.Launcher

// ConfirmFunc asks whether to continue past a checkpoint
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Tuner holds everything a run needs besides the context
type Tuner struct {
	cfg       *config.Config
	baseDir   string
	launch    LauncherFactory
	reader    objective.TraceReader
	confirm   ConfirmFunc
	collector *metrics.Collector
	sync      simsync.Options
}

// New prepares a tuner that launches the configured simulator executable
// and reads its binary result files
func New(cfg *config.Config) (*Tuner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	opts, err := SyncOptions(cfg)
	if err != nil {
		return nil, err
	}
	sim := cfg.Simulator
	return &Tuner{
		cfg: cfg,
		launch: func(args ...string) simsync.Launcher {
			return simsync.NewExecLauncher(sim.LauncherPrefix, sim.Executable, sim.WorkingDir, args...)
		},
		reader:    rawfile.Reader{},
		collector: metrics.NewCollector(),
		sync:      opts,
	}, nil
}

// WithLauncher replaces how simulator processes are started
func (t *Tuner) WithLauncher(f LauncherFactory) *Tuner {
	t.launch = f
	return t
}

// WithReader replaces the result-file reader
func (t *Tuner) WithReader(r objective.TraceReader) *Tuner {
	t.reader = r
	return t
}

// WithConfirm installs a hook consulted before the first simulation and
// before optimization starts
func (t *Tuner) WithConfirm(f ConfirmFunc) *Tuner {
	t.confirm = f
	return t
}

// WithBaseDir sets the directory relative schematic, target CSV and report
// paths resolve against
func (t *Tuner) WithBaseDir(dir string) *Tuner {
	t.baseDir = dir
	return t
}

// Collector exposes the metrics recorded during Run
func (t *Tuner) Collector() *metrics.Collector {
	return t.collector
}

// Run executes the pipeline and writes the report. The returned run record
// is populated as far as the pipeline got, even on error.
func (t *Tuner) Run(ctx context.Context) (*models.Run, error) {
	cfg := t.cfg
	asc := SchematicPath(cfg, t.baseDir)
	run := report.NewRun(asc, cfg.OutputNode, cfg.MatchMode.String(), cfg.Quantize.EdgePolicy.String())
	run.Metrics = &models.RunMetrics{
		InitialRMS:   math.NaN(),
		OptimizedRMS: math.NaN(),
		QuantizedRMS: math.NaN(),
	}

	t.collector.Clear()
	t.collector.Start()
	err := t.run(ctx, run, asc)
	t.collector.Stop()

	metrics.FillRunMetrics(t.collector, run.Metrics)
	logSummary(t.collector)
	report.Finish(run, err)

	path := ReportPath(cfg, t.baseDir)
	run.Artifacts["report"] = path
	if werr := report.Write(path, run); werr != nil {
		if err == nil {
			return run, fmt.Errorf("%s: %w", StageReport, werr)
		}
		logger.Warn("failed to write report", "stage", StageReport, "path", path, "error", werr)
	} else {
		logger.Info("report written", "stage", StageReport, "path", path, "status", string(run.Status))
	}
	return run, err
}

func (t *Tuner) run(ctx context.Context, run *models.Run, asc string) error {
	cfg := t.cfg

	gen, err := TargetGenerator(cfg, t.baseDir)
	if err != nil {
		return fmt.Errorf("%s: %w", StageSetup, err)
	}

	// 1. netlist
	netPath := schematic.NetlistPath(asc)
	rawPath := schematic.RawPath(netPath)
	if err := t.generateNetlist(ctx, asc, netPath); err != nil {
		return fmt.Errorf("%s: %w", StageNetlist, err)
	}
	run.Artifacts["netlist"] = netPath

	// 2. bind
	nl, err := netlist.Load(netPath)
	if err != nil {
		return fmt.Errorf("%s: %w", StageBind, err)
	}
	bindings, err := netlist.Bind(nl, BindingSpecs(cfg))
	if err != nil {
		return fmt.Errorf("%s: %w", StageBind, err)
	}
	run.Components = componentResults(bindings)
	logSetup(asc, bindings, cfg)

	// 3. checkpoint
	if err := t.checkpoint(ctx, fmt.Sprintf("%d components bound in %s, start simulating?", len(bindings), netPath)); err != nil {
		return err
	}

	// 4. initial simulation and target
	sim := simsync.New(t.launch(cfg.Simulator.BatchFlag, netPath), rawPath, t.sync)
	obj, initial, err := t.initial(ctx, nl, bindings, sim, gen, netPath, rawPath)
	if err != nil {
		return fmt.Errorf("%s: %w", StageInitial, err)
	}
	run.Artifacts["raw"] = rawPath
	run.Metrics.InitialRMS = initial.RMS

	if err := t.checkpoint(ctx, fmt.Sprintf("initial rms %.6g, start optimization?", initial.RMS)); err != nil {
		return err
	}

	// 5. optimize
	driver, err := optimizer.NewDriver(obj, bindings, SolverSettings(cfg), t.collector)
	if err != nil {
		return fmt.Errorf("%s: %w", StageOptimize, err)
	}
	res, err := driver.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", StageOptimize, err)
	}
	for i, c := range run.Components {
		c.Optimized = res.Values[i]
	}
	run.Metrics.Evaluations = res.Evaluations
	run.Metrics.SolverStatus = res.Status.String()
	run.Metrics.Converged = res.Converged

	// 6. verify
	verified, err := t.verify(ctx, obj, sim, rawPath, res.Values)
	if err != nil {
		return fmt.Errorf("%s: %w", StageVerify, err)
	}
	run.Metrics.OptimizedRMS = verified.RMS

	// 7. quantize
	quantized, err := t.quantize(ctx, run, asc, bindings, obj, res.Values)
	if err != nil {
		return fmt.Errorf("%s: %w", StageQuantize, err)
	}
	run.Metrics.QuantizedRMS = quantized.RMS

	logger.Info("tuning finished",
		"initial_rms", run.Metrics.InitialRMS,
		"optimized_rms", run.Metrics.OptimizedRMS,
		"quantized_rms", run.Metrics.QuantizedRMS,
		"evaluations", res.Evaluations)
	return nil
}

// generateNetlist has the simulator export asc's netlist to netPath
func (t *Tuner) generateNetlist(ctx context.Context, asc, netPath string) error {
	gen := simsync.New(t.launch(t.cfg.Simulator.NetlistFlag, asc), netPath, t.sync)
	stats, err := gen.RunFresh(ctx)
	if err != nil {
		return err
	}
	logger.Info("netlist generated", "stage", StageNetlist, "schematic", asc, "netlist", netPath,
		"elapsed_ms", stats.Elapsed.Milliseconds())
	return nil
}

func (t *Tuner) initial(ctx context.Context, nl *netlist.Netlist, bindings []netlist.Binding, sim *simsync.Synchronizer,
	gen target.Generator, netPath, rawPath string) (*objective.Objective, *objective.Evaluation, error) {
	cfg := t.cfg
	snap, err := objective.Simulate(ctx, sim, t.reader, rawPath, cfg.OutputNode, true)
	if err != nil {
		return nil, nil, err
	}

	want, weights, err := gen.Generate(snap.Frequencies, cfg.MatchMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate target: %w", err)
	}

	obj, err := objective.New(objective.EvalContext{
		NetlistPath:  netPath,
		ArtifactPath: rawPath,
		OutputNode:   cfg.OutputNode,
		Mode:         cfg.MatchMode,
		Target:       want,
		Weights:      weights,
		Bindings:     bindings,
	}, nl, sim, t.reader)
	if err != nil {
		return nil, nil, err
	}

	eval, err := obj.Score(snap.Output)
	if err != nil {
		return nil, nil, err
	}
	t.record(StageInitial, eval.RMS, snap.Stats.Elapsed)
	logger.Info("initial simulation", "stage", StageInitial,
		"points", len(snap.Frequencies), "mode", cfg.MatchMode.String(), "rms", eval.RMS)
	return obj, eval, nil
}

// verify re-simulates the working netlist at the optimized values
func (t *Tuner) verify(ctx context.Context, obj *objective.Objective, sim *simsync.Synchronizer, rawPath string, values []float64) (*objective.Evaluation, error) {
	if err := obj.Apply(values); err != nil {
		return nil, err
	}
	snap, err := objective.Simulate(ctx, sim, t.reader, rawPath, t.cfg.OutputNode, true)
	if err != nil {
		return nil, err
	}
	eval, err := obj.Score(snap.Output)
	if err != nil {
		return nil, err
	}
	t.record(StageVerify, eval.RMS, snap.Stats.Elapsed)
	logger.Info("optimized values verified", "stage", StageVerify, "rms", eval.RMS)
	return eval, nil
}

// quantize snaps the optimized values to their series, writes the
// <stem>_opt schematic and simulates it against the same target
func (t *Tuner) quantize(ctx context.Context, run *models.Run, asc string, bindings []netlist.Binding, obj *objective.Objective, values []float64) (*objective.Evaluation, error) {
	cfg := t.cfg
	policy := cfg.Quantize.EdgePolicy

	replacements := make(map[string]schematic.Replacement, len(bindings))
	for i, b := range bindings {
		replacements[b.Designator] = schematic.Replacement{Value: values[i], Series: b.Series}
	}

	optAsc := schematic.OptimizedPath(asc)
	changes, err := schematic.RewriteFile(asc, optAsc, replacements, policy)
	if err != nil {
		return nil, err
	}
	run.Artifacts["optimized_schematic"] = optAsc

	quantized := make(map[string]float64, len(changes))
	for _, c := range changes {
		quantized[c.Instance] = c.Quantized
	}
	for _, c := range run.Components {
		q, ok := quantized[c.Designator]
		if !ok {
			return nil, fmt.Errorf("%s was not rewritten in %s", c.Designator, optAsc)
		}
		c.Quantized = q
		logger.Info("quantized value", "stage", StageQuantize, "designator", c.Designator,
			"series", c.Series, "optimized", units.FormatShort(c.Optimized), "quantized", units.FormatShort(q),
			"policy", policy.String())
	}

	optNet := schematic.NetlistPath(optAsc)
	optRaw := schematic.RawPath(optNet)
	if err := t.generateNetlist(ctx, optAsc, optNet); err != nil {
		return nil, err
	}
	run.Artifacts["optimized_netlist"] = optNet

	sim := simsync.New(t.launch(cfg.Simulator.BatchFlag, optNet), optRaw, t.sync)
	snap, err := objective.Simulate(ctx, sim, t.reader, optRaw, cfg.OutputNode, true)
	if err != nil {
		return nil, err
	}
	run.Artifacts["optimized_raw"] = optRaw

	eval, err := obj.Score(snap.Output)
	if err != nil {
		return nil, err
	}
	t.record(metrics.StageQuantized, eval.RMS, snap.Stats.Elapsed)
	logger.Info("quantized schematic simulated", "stage", StageQuantize, "schematic", optAsc, "rms", eval.RMS)
	return eval, nil
}

func (t *Tuner) checkpoint(ctx context.Context, prompt string) error {
	if t.confirm == nil {
		return nil
	}
	ok, err := t.confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

func (t *Tuner) record(stage string, rms float64, elapsed time.Duration) {
	now := time.Now()
	labels := metrics.StageLabels(stage)
	metrics.RecordRMS(t.collector, rms, now, labels)
	metrics.RecordSimDuration(t.collector, elapsed, now, labels)
}

func componentResults(bindings []netlist.Binding) []*models.ComponentResult {
	out := make([]*models.ComponentResult, len(bindings))
	for i, b := range bindings {
		out[i] = &models.ComponentResult{
			Designator: b.Designator,
			Series:     b.Series.String(),
			Min:        b.Min,
			Max:        b.Max,
			Nominal:    b.Nominal,
			Optimized:  math.NaN(),
			Quantized:  math.NaN(),
		}
	}
	return out
}

func logSetup(asc string, bindings []netlist.Binding, cfg *config.Config) {
	log := logger.With("stage", StageBind)
	log.Info("tuning setup",
		"schematic", asc,
		"output_node", cfg.OutputNode,
		"mode", cfg.MatchMode.String(),
		"edge_policy", cfg.Quantize.EdgePolicy.String(),
		"components", len(bindings))
	for _, b := range bindings {
		log.Info("component",
			slog.String("designator", b.Designator),
			slog.Int("line", b.Line+1),
			slog.String("nominal", units.FormatShort(b.Nominal)),
			slog.String("min", units.FormatShort(b.Min)),
			slog.String("max", units.FormatShort(b.Max)),
			slog.String("series", b.Series.String()),
			slog.Bool("nominal_in_range", b.Nominal >= b.Min && b.Nominal <= b.Max))
	}
}

func logSummary(c *metrics.Collector) {
	summary := c.GetSummary()
	for _, name := range c.GetMetricNames() {
		agg := summary.Aggregations[name]
		if agg == nil {
			continue
		}
		logger.Debug("metric summary", "metric", name, "count", agg.Count,
			"min", agg.Min, "max", agg.Max, "mean", agg.Mean, "p95", agg.P95)
	}
	logger.Debug("run duration", "seconds", summary.Duration.Seconds())
}
