package config

import (
	"time"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/eseries"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/response"
)

// Config represents one tuning run
type Config struct {
	LogLevel   string             `yaml:"log_level"`
	LogFormat  string             `yaml:"log_format"`
	Simulator  Simulator          `yaml:"simulator"`
	Schematic  string             `yaml:"schematic"`
	OutputNode string             `yaml:"output_node"`
	MatchMode  response.MatchMode `yaml:"match_mode"`
	Components []Component        `yaml:"components"`
	Quantize   Quantize           `yaml:"quantize"`
	Solver     Solver             `yaml:"solver"`
	Target     Target             `yaml:"target"`
	Report     string             `yaml:"report"`
}

// Simulator describes how to launch the external simulator and wait for it
type Simulator struct {
	Executable     string   `yaml:"executable"`
	LauncherPrefix []string `yaml:"launcher_prefix,omitempty"`
	WorkingDir     string   `yaml:"working_dir,omitempty"`
	NetlistFlag    string   `yaml:"netlist_flag"`
	BatchFlag      string   `yaml:"batch_flag"`
	Poll           Poll     `yaml:"poll"`
	Settle         string   `yaml:"settle"`
	Timeout        string   `yaml:"timeout"`
}

// Poll configures how often the result file is checked
type Poll struct {
	Strategy    string `yaml:"strategy"` // constant, exponential
	Interval    string `yaml:"interval"`
	MaxInterval string `yaml:"max_interval,omitempty"`
}

// Component is one tunable instance with its search range
type Component struct {
	Instance string         `yaml:"instance"`
	Min      float64        `yaml:"min"`
	Max      float64        `yaml:"max"`
	Series   eseries.Series `yaml:"series"`
}

// Quantize selects how optimized values snap to the preferred series
type Quantize struct {
	EdgePolicy eseries.EdgePolicy `yaml:"edge_policy"`
}

// Solver holds least-squares tolerances; zero fields take the defaults
type Solver struct {
	DiffStep       float64 `yaml:"diff_step"`
	FTol           float64 `yaml:"ftol"`
	XTol           float64 `yaml:"xtol"`
	GTol           float64 `yaml:"gtol"`
	MaxEvaluations int     `yaml:"max_evaluations"`
}

// Target is the desired response, either inline points or a CSV table
type Target struct {
	Points []TargetPoint `yaml:"points,omitempty"`
	CSV    string        `yaml:"csv,omitempty"`
	Bands  []WeightBand  `yaml:"bands,omitempty"`
}

// TargetPoint is one row of the target table
type TargetPoint struct {
	FrequencyHz float64  `yaml:"frequency_hz"`
	MagnitudeDB float64  `yaml:"magnitude_db"`
	PhaseDeg    float64  `yaml:"phase_deg"`
	Weight      *float64 `yaml:"weight,omitempty"`
}

// WeightBand scales the weights of every frequency in [FromHz, ToHz]
type WeightBand struct {
	FromHz  float64 `yaml:"from_hz"`
	ToHz    float64 `yaml:"to_hz"`
	Factor  float64 `yaml:"factor"`
	Segment string  `yaml:"segment,omitempty"` // amplitude, phase or empty for both
}

// GetSettle parses the settle string to time.Duration
func (s *Simulator) GetSettle() (time.Duration, error) {
	return time.ParseDuration(s.Settle)
}

// GetTimeout parses the timeout string to time.Duration
func (s *Simulator) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(s.Timeout)
}

// GetInterval parses the poll interval
func (p *Poll) GetInterval() (time.Duration, error) {
	return time.ParseDuration(p.Interval)
}

// GetMaxInterval parses the poll ceiling; empty means no ceiling was set
func (p *Poll) GetMaxInterval() (time.Duration, error) {
	if p.MaxInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(p.MaxInterval)
}
