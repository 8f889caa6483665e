package metrics

import (
	"time"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/models"
)

// Metric names recorded during a tuning run
const (
	MetricRMSError      = "rms_error"
	MetricSimDurationMs = "sim_duration_ms"
)

// Stages label where in the pipeline a value was recorded
const (
	StageInitial   = "initial"
	StageOptimize  = "optimize"
	StageVerify    = "verify"
	StageQuantized = "quantized"
)

// RecordRMS records the weighted rms error of one evaluation
func RecordRMS(collector *Collector, rms float64, timestamp time.Time, labels map[string]string) {
	collector.Record(MetricRMSError, rms, timestamp, labels)
}

// RecordSimDuration records the wall time of one simulator run
func RecordSimDuration(collector *Collector, d time.Duration, timestamp time.Time, labels map[string]string) {
	collector.Record(MetricSimDurationMs, float64(d)/float64(time.Millisecond), timestamp, labels)
}

// StageLabels creates a labels map for a pipeline stage
func StageLabels(stage string) map[string]string {
	return map[string]string{
		"stage": stage,
	}
}

// FillRunMetrics copies the simulation-time and rms aggregations into m,
// along with the rms of every optimizer evaluation
func FillRunMetrics(collector *Collector, m *models.RunMetrics) {
	labels := StageLabels(StageOptimize)
	m.SimDuration = collector.GetTotalAggregation(MetricSimDurationMs)
	m.RMSHistory = collector.GetAggregation(MetricRMSError, labels)

	points := collector.GetTimeSeries(MetricRMSError, labels)
	m.RMSTrace = nil
	if len(points) > 0 {
		m.RMSTrace = make([]float64, len(points))
		for i, p := range points {
			m.RMSTrace[i] = p.Value
		}
	}
}
