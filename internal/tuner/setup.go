package tuner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/netlist"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/simsync"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/solver"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/target"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/config"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/utils"
)

// BindingSpecs converts the configured components
func BindingSpecs(cfg *config.Config) []netlist.BindingSpec {
	specs := make([]netlist.BindingSpec, len(cfg.Components))
	for i, c := range cfg.Components {
		specs[i] = netlist.BindingSpec{
			Instance: c.Instance,
			Min:      c.Min,
			Max:      c.Max,
			Series:   c.Series,
		}
	}
	return specs
}

// SolverSettings starts from the solver defaults and applies every nonzero
// configured field
func SolverSettings(cfg *config.Config) solver.Settings {
	s := solver.DefaultSettings()
	if cfg.Solver.DiffStep > 0 {
		s.DiffStep = cfg.Solver.DiffStep
	}
	if cfg.Solver.FTol > 0 {
		s.FTol = cfg.Solver.FTol
	}
	if cfg.Solver.XTol > 0 {
		s.XTol = cfg.Solver.XTol
	}
	if cfg.Solver.GTol > 0 {
		s.GTol = cfg.Solver.GTol
	}
	if cfg.Solver.MaxEvaluations > 0 {
		s.MaxEvaluations = cfg.Solver.MaxEvaluations
	}
	return s
}

// SyncOptions builds the synchronizer's poll strategy and deadlines
func SyncOptions(cfg *config.Config) (simsync.Options, error) {
	sim := cfg.Simulator
	interval, err := sim.Poll.GetInterval()
	if err != nil {
		return simsync.Options{}, fmt.Errorf("invalid poll interval: %w", err)
	}
	maxInterval, err := sim.Poll.GetMaxInterval()
	if err != nil {
		return simsync.Options{}, fmt.Errorf("invalid poll max_interval: %w", err)
	}
	poll, err := utils.PollFromConfig(sim.Poll.Strategy, interval, maxInterval)
	if err != nil {
		return simsync.Options{}, err
	}
	settle, err := sim.GetSettle()
	if err != nil {
		return simsync.Options{}, fmt.Errorf("invalid settle: %w", err)
	}
	timeout, err := sim.GetTimeout()
	if err != nil {
		return simsync.Options{}, fmt.Errorf("invalid timeout: %w", err)
	}
	return simsync.Options{Poll: poll, Settle: settle, Timeout: timeout}, nil
}

// TargetGenerator builds the target table from inline points or the CSV
// file. A relative CSV path is resolved against baseDir.
func TargetGenerator(cfg *config.Config, baseDir string) (*target.TableGenerator, error) {
	var points []target.Point
	if csvPath := strings.TrimSpace(cfg.Target.CSV); csvPath != "" {
		loaded, err := target.LoadCSV(ResolvePath(baseDir, csvPath))
		if err != nil {
			return nil, err
		}
		points = loaded
	} else {
		points = make([]target.Point, len(cfg.Target.Points))
		for i, p := range cfg.Target.Points {
			weight := 1.0
			if p.Weight != nil {
				weight = *p.Weight
			}
			points[i] = target.Point{
				FrequencyHz: p.FrequencyHz,
				MagnitudeDB: p.MagnitudeDB,
				PhaseDeg:    p.PhaseDeg,
				Weight:      weight,
			}
		}
	}

	bands := make([]target.Band, len(cfg.Target.Bands))
	for i, b := range cfg.Target.Bands {
		bands[i] = target.Band{
			FromHz:  b.FromHz,
			ToHz:    b.ToHz,
			Factor:  b.Factor,
			Segment: target.Segment(b.Segment),
		}
	}
	return target.NewTableGenerator(points, bands)
}

// ReportPath returns the configured report path, or <stem>_report.json next
// to the schematic. Relative paths resolve against baseDir.
func ReportPath(cfg *config.Config, baseDir string) string {
	if cfg.Report != "" {
		return ResolvePath(baseDir, cfg.Report)
	}
	asc := SchematicPath(cfg, baseDir)
	return strings.TrimSuffix(asc, filepath.Ext(asc)) + "_report.json"
}

// SchematicPath returns the absolute path of the configured schematic
func SchematicPath(cfg *config.Config, baseDir string) string {
	return ResolvePath(baseDir, strings.TrimSpace(cfg.Schematic))
}

// ResolvePath anchors a relative path at baseDir and makes it absolute, so
// the simulator's working directory does not change which file it names
func ResolvePath(baseDir, path string) string {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
