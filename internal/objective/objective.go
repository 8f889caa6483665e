// Package objective evaluates a parameter vector by writing component values
// into the netlist, running the simulator and scoring the response against
// the target.
package objective

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/netlist"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/response"
	"github.com/GoSim-25-26J-441/spice-tuner/internal/simsync"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/units"
)

// FrequencyTrace is the name of the sweep variable in AC results
const FrequencyTrace = "frequency"

// Simulator runs one simulation and blocks until its results are on disk
type Simulator interface {
	Run(ctx context.Context) (simsync.Stats, error)
	RunFresh(ctx context.Context) (simsync.Stats, error)
}

// TraceReader loads named traces from a result file
type TraceReader interface {
	ReadTraces(path string, names ...string) ([][]complex128, error)
}

// LengthMismatchError means the simulated response and the target disagree
// in length, usually because the simulation failed or changed its sweep
type LengthMismatchError struct {
	Target    int
	Simulated int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("simulated response has %d points, target has %d", e.Simulated, e.Target)
}

var ErrParamCount = errors.New("parameter count does not match bindings")

// EvalContext is everything an evaluation needs besides the parameters
type EvalContext struct {
	NetlistPath  string
	ArtifactPath string
	OutputNode   string
	Mode         response.MatchMode
	Target       []float64
	Weights      []float64
	Bindings     []netlist.Binding
}

func (c EvalContext) clone() EvalContext {
	c.Target = append([]float64(nil), c.Target...)
	c.Weights = append([]float64(nil), c.Weights...)
	c.Bindings = append([]netlist.Binding(nil), c.Bindings...)
	return c
}

func (c EvalContext) validate() error {
	if c.NetlistPath == "" || c.ArtifactPath == "" {
		return errors.New("netlist and artifact paths are required")
	}
	if c.OutputNode == "" {
		return errors.New("output node is required")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid match mode %d", int(c.Mode))
	}
	if len(c.Target) == 0 {
		return errors.New("target is empty")
	}
	if len(c.Weights) != len(c.Target) {
		return fmt.Errorf("%d weights for %d target points", len(c.Weights), len(c.Target))
	}
	if len(c.Bindings) == 0 {
		return errors.New("no components to tune")
	}
	return nil
}

// Evaluation is the outcome of one objective call
type Evaluation struct {
	Values      []float64
	Response    []float64
	Residuals   []float64
	RMS         float64
	SimDuration time.Duration
}

// Objective owns the working netlist. Evaluate is safe for concurrent use but
// evaluations run one at a time.
type Objective struct {
	mu     sync.Mutex
	ec     EvalContext
	nl     *netlist.Netlist
	sim    Simulator
	reader TraceReader
	// saved holds the value tokens last written to the netlist file
	saved string
}

// New builds an Objective. The EvalContext is copied and never changes
// afterwards.
func New(ec EvalContext, nl *netlist.Netlist, sim Simulator, reader TraceReader) (*Objective, error) {
	if err := ec.validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation context: %w", err)
	}
	for _, b := range ec.Bindings {
		if b.Line < 0 || b.Line >= nl.Len() {
			return nil, fmt.Errorf("binding %s: line %d outside netlist", b.Designator, b.Line)
		}
	}
	// the netlist on disk was last simulated at the nominal values
	nominal := make([]string, len(ec.Bindings))
	for i, b := range ec.Bindings {
		nominal[i] = units.FormatValue(b.Nominal)
	}
	return &Objective{ec: ec.clone(), nl: nl, sim: sim, reader: reader, saved: strings.Join(nominal, " ")}, nil
}

// Context returns a copy of the evaluation context
func (o *Objective) Context() EvalContext {
	return o.ec.clone()
}

// Values maps log-ratio parameters to absolute component values
func (o *Objective) Values(params []float64) ([]float64, error) {
	if len(params) != len(o.ec.Bindings) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrParamCount, len(params), len(o.ec.Bindings))
	}
	values := make([]float64, len(params))
	for i, b := range o.ec.Bindings {
		values[i] = b.Nominal * math.Exp(params[i])
	}
	return values, nil
}

// Evaluate writes nominal*exp(params) into the netlist, simulates, and
// returns the weighted residuals (target - simulated) * weights
func (o *Objective) Evaluate(ctx context.Context, params []float64) (*Evaluation, error) {
	values, err := o.Values(params)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	unchanged, err := o.apply(values)
	if err != nil {
		return nil, err
	}
	// the same netlist reproduces the same result file, which a change check
	// would wait on until the timeout
	run := o.sim.Run
	if unchanged {
		run = o.sim.RunFresh
	}
	stats, err := run(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	traces, err := o.reader.ReadTraces(o.ec.ArtifactPath, o.ec.OutputNode)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	eval, err := o.Score(traces[0])
	if err != nil {
		return nil, err
	}
	eval.Values = values
	eval.SimDuration = stats.Elapsed
	return eval, nil
}

// Apply writes absolute values into the working netlist and saves it
// without simulating
func (o *Objective) Apply(values []float64) error {
	if len(values) != len(o.ec.Bindings) {
		return fmt.Errorf("%w: got %d, want %d", ErrParamCount, len(values), len(o.ec.Bindings))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.apply(values)
	return err
}

// apply reports whether the saved netlist text is the same as last time
func (o *Objective) apply(values []float64) (bool, error) {
	tokens := make([]string, len(values))
	for i, b := range o.ec.Bindings {
		tokens[i] = units.FormatValue(values[i])
		if err := o.nl.SetValue(b.Line, tokens[i]); err != nil {
			return false, fmt.Errorf("failed to set %s: %w", b.Designator, err)
		}
	}
	if err := o.nl.Save(o.ec.NetlistPath); err != nil {
		o.saved = ""
		return false, err
	}
	key := strings.Join(tokens, " ")
	unchanged := key == o.saved
	o.saved = key
	return unchanged, nil
}

// Score compares a simulated output trace against the target
func (o *Objective) Score(trace []complex128) (*Evaluation, error) {
	resp, err := response.Extract(trace, o.ec.Mode)
	if err != nil {
		return nil, err
	}
	if len(resp) != len(o.ec.Target) {
		return nil, &LengthMismatchError{Target: len(o.ec.Target), Simulated: len(resp)}
	}

	residuals := make([]float64, len(resp))
	for i := range resp {
		residuals[i] = (o.ec.Target[i] - resp[i]) * o.ec.Weights[i]
	}
	return &Evaluation{
		Response:  resp,
		Residuals: residuals,
		RMS:       response.RMS(residuals),
	}, nil
}

// Snapshot is one simulation's frequency grid and output trace
type Snapshot struct {
	Frequencies []float64
	Output      []complex128
	Stats       simsync.Stats
}

// Simulate runs sim once and reads the frequency and output traces from
// artifact. fresh truncates the artifact first.
func Simulate(ctx context.Context, sim Simulator, reader TraceReader, artifact, outputNode string, fresh bool) (*Snapshot, error) {
	run := sim.Run
	if fresh {
		run = sim.RunFresh
	}
	stats, err := run(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	traces, err := reader.ReadTraces(artifact, FrequencyTrace, outputNode)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	if len(traces[0]) != len(traces[1]) {
		return nil, fmt.Errorf("frequency trace has %d points, %s has %d", len(traces[0]), outputNode, len(traces[1]))
	}
	return &Snapshot{
		Frequencies: response.Frequencies(traces[0]),
		Output:      traces[1],
		Stats:       stats,
	}, nil
}
