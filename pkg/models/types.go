package models

import (
	"time"
)

// RunStatus represents the status of a tuning run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the record of one tuning run, written out as the run report
type Run struct {
	ID         string             `json:"id"`
	Status     RunStatus          `json:"status"`
	Schematic  string             `json:"schematic"`
	OutputNode string             `json:"output_node"`
	MatchMode  string             `json:"match_mode"`
	EdgePolicy string             `json:"edge_policy"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time,omitempty"`
	Duration   time.Duration      `json:"duration,omitempty"`
	Components []*ComponentResult `json:"components"`
	Metrics    *RunMetrics        `json:"metrics,omitempty"`
	Artifacts  map[string]string  `json:"artifacts,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// ComponentResult holds one tuned instance's values through the run
type ComponentResult struct {
	Designator string  `json:"designator"`
	Series     string  `json:"series"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Nominal    float64 `json:"nominal"`
	Optimized  float64 `json:"optimized"`
	Quantized  float64 `json:"quantized"`
}

// QuantizationError is the relative change snapping made to the optimized value
func (c *ComponentResult) QuantizationError() float64 {
	if c.Optimized == 0 {
		return 0
	}
	return (c.Quantized - c.Optimized) / c.Optimized
}

// RunMetrics contains the scores and counters of a tuning run
type RunMetrics struct {
	InitialRMS   float64      `json:"initial_rms"`
	OptimizedRMS float64      `json:"optimized_rms"`
	QuantizedRMS float64      `json:"quantized_rms"`
	Evaluations  int          `json:"evaluations"`
	SolverStatus string       `json:"solver_status"`
	Converged    bool         `json:"converged"`
	SimDuration  *Aggregation `json:"sim_duration_ms,omitempty"`
	RMSHistory   *Aggregation `json:"rms_history,omitempty"`
	RMSTrace     []float64    `json:"rms_trace,omitempty"` // per optimizer evaluation, in order
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// MetricsSummary represents a summary of collected metrics
type MetricsSummary struct {
	StartTime    time.Time               `json:"start_time"`
	EndTime      time.Time               `json:"end_time"`
	Duration     time.Duration           `json:"duration"`
	Metrics      map[string][]float64    `json:"metrics"` // metric name -> values
	Aggregations map[string]*Aggregation `json:"aggregations,omitempty"`
}

// Aggregation represents aggregated statistics for a metric
type Aggregation struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}
