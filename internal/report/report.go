// Package report writes the tuning run record as indented JSON.
package report

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/models"
)

// NewRun starts a run record with a fresh id
func NewRun(schematic, outputNode, matchMode, edgePolicy string) *models.Run {
	return &models.Run{
		ID:         uuid.New().String(),
		Status:     models.RunStatusRunning,
		Schematic:  schematic,
		OutputNode: outputNode,
		MatchMode:  matchMode,
		EdgePolicy: edgePolicy,
		StartTime:  time.Now(),
		Artifacts:  make(map[string]string),
	}
}

// Finish stamps the end time and final status; err may be nil
func Finish(run *models.Run, err error) {
	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(run.StartTime)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		return
	}
	run.Status = models.RunStatusCompleted
}

// ToStruct converts a run into a protobuf Struct
func ToStruct(run *models.Run) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":          run.ID,
		"status":      string(run.Status),
		"schematic":   run.Schematic,
		"output_node": run.OutputNode,
		"match_mode":  run.MatchMode,
		"edge_policy": run.EdgePolicy,
		"start_time":  run.StartTime.Format(time.RFC3339Nano),
		"components":  componentList(run.Components),
	}
	if !run.EndTime.IsZero() {
		fields["end_time"] = run.EndTime.Format(time.RFC3339Nano)
		fields["duration_seconds"] = run.Duration.Seconds()
	}
	if run.Metrics != nil {
		fields["metrics"] = metricsMap(run.Metrics)
	}
	if len(run.Artifacts) > 0 {
		artifacts := make(map[string]any, len(run.Artifacts))
		for k, v := range run.Artifacts {
			artifacts[k] = v
		}
		fields["artifacts"] = artifacts
	}
	if run.Error != "" {
		fields["error"] = run.Error
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	return s, nil
}

// Marshal renders a run as indented JSON
func Marshal(run *models.Run) ([]byte, error) {
	s, err := ToStruct(run)
	if err != nil {
		return nil, err
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// Write renders a run to path
func Write(path string, run *models.Run) error {
	data, err := Marshal(run)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// Read loads a report back as a Struct
func Read(path string) (*structpb.Struct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return s, nil
}

func componentList(components []*models.ComponentResult) []any {
	sorted := append([]*models.ComponentResult(nil), components...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Designator < sorted[j].Designator })

	out := make([]any, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, map[string]any{
			"designator":         c.Designator,
			"series":             c.Series,
			"min":                finite(c.Min),
			"max":                finite(c.Max),
			"nominal":            finite(c.Nominal),
			"optimized":          finite(c.Optimized),
			"quantized":          finite(c.Quantized),
			"quantization_error": finite(c.QuantizationError()),
		})
	}
	return out
}

func metricsMap(m *models.RunMetrics) map[string]any {
	out := map[string]any{
		"initial_rms":   finite(m.InitialRMS),
		"optimized_rms": finite(m.OptimizedRMS),
		"quantized_rms": finite(m.QuantizedRMS),
		"evaluations":   m.Evaluations,
		"solver_status": m.SolverStatus,
		"converged":     m.Converged,
	}
	if m.SimDuration != nil {
		out["sim_duration_ms"] = aggregationMap(m.SimDuration)
	}
	if m.RMSHistory != nil {
		out["rms_history"] = aggregationMap(m.RMSHistory)
	}
	if len(m.RMSTrace) > 0 {
		trace := make([]any, len(m.RMSTrace))
		for i, v := range m.RMSTrace {
			trace[i] = finite(v)
		}
		out["rms_trace"] = trace
	}
	return out
}

func aggregationMap(a *models.Aggregation) map[string]any {
	return map[string]any{
		"count": a.Count,
		"sum":   finite(a.Sum),
		"min":   finite(a.Min),
		"max":   finite(a.Max),
		"mean":  finite(a.Mean),
		"p50":   finite(a.P50),
		"p95":   finite(a.P95),
	}
}

// finite maps NaN and infinities to null, which JSON cannot carry as numbers
func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
