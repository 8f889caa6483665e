// Package response turns simulated complex traces into the real-valued
// vectors the optimizer compares against a target.
package response

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/utils"
)

// MatchMode selects which part of the response is fitted
type MatchMode int

const (
	Amplitude MatchMode = iota + 1
	Phase
	Both
)

func (m MatchMode) String() string {
	switch m {
	case Amplitude:
		return "amplitude"
	case Phase:
		return "phase"
	case Both:
		return "both"
	}
	return fmt.Sprintf("MatchMode(%d)", int(m))
}

// Valid reports whether m is one of the defined modes
func (m MatchMode) Valid() bool {
	return m >= Amplitude && m <= Both
}

// Width is the residual length for n frequency points
func (m MatchMode) Width(n int) int {
	if m == Both {
		return 2 * n
	}
	return n
}

// ParseMatchMode accepts a mode name or its numeric code 1-3
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amplitude", "magnitude", "1":
		return Amplitude, nil
	case "phase", "2":
		return Phase, nil
	case "both", "3":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown match mode %q (must be amplitude, phase or both)", s)
}

func (m *MatchMode) UnmarshalText(text []byte) error {
	parsed, err := ParseMatchMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m MatchMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Magnitude returns |z| for each sample
func Magnitude(trace []complex128) []float64 {
	out := make([]float64, len(trace))
	for i, z := range trace {
		out[i] = cmplx.Abs(z)
	}
	return out
}

// Frequencies returns the absolute values of an AC frequency trace
func Frequencies(trace []complex128) []float64 {
	return Magnitude(trace)
}

// UnwrappedPhase returns the phase in radians with jumps larger than pi
// removed by adding multiples of 2*pi
func UnwrappedPhase(trace []complex128) []float64 {
	phase := make([]float64, len(trace))
	for i, z := range trace {
		phase[i] = cmplx.Phase(z)
	}
	return Unwrap(phase)
}

// Unwrap removes 2*pi discontinuities from a phase sequence
func Unwrap(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}

	corrections := make([]float64, len(phase)-1)
	for i := range corrections {
		d := phase[i+1] - phase[i]
		dmod := math.Mod(d+math.Pi, 2*math.Pi)
		if dmod < 0 {
			dmod += 2 * math.Pi
		}
		dmod -= math.Pi
		// keep +pi steps as +pi rather than folding them to -pi
		if dmod == -math.Pi && d > 0 {
			dmod = math.Pi
		}
		if math.Abs(d) >= math.Pi {
			corrections[i] = dmod - d
		}
	}
	floats.CumSum(corrections, corrections)

	out[0] = phase[0]
	for i := 1; i < len(phase); i++ {
		out[i] = phase[i] + corrections[i-1]
	}
	return out
}

// Extract builds the response vector for mode: magnitudes, unwrapped phases
// or both concatenated
func Extract(trace []complex128, mode MatchMode) ([]float64, error) {
	switch mode {
	case Amplitude:
		return Magnitude(trace), nil
	case Phase:
		return UnwrappedPhase(trace), nil
	case Both:
		return append(Magnitude(trace), UnwrappedPhase(trace)...), nil
	}
	return nil, fmt.Errorf("unknown match mode %d", int(mode))
}

// RMS is the root-mean-square of a residual vector
func RMS(residuals []float64) float64 {
	return utils.RMS(residuals)
}
