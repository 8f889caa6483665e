package eseries

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// EdgePolicy selects where the bin edge between two neighbouring series
// values sits
type EdgePolicy int

const (
	// Arithmetic puts the edge at the arithmetic mean of the neighbours
	Arithmetic EdgePolicy = iota
	// Harmonic puts the edge at the harmonic mean of the neighbours
	Harmonic
	// Up rounds every value up to the next series value
	Up
	// Down rounds every value down to the previous series value
	Down
)

var policyNames = map[EdgePolicy]string{
	Arithmetic: "arithmetic",
	Harmonic:   "harmonic",
	Up:         "up",
	Down:       "down",
}

// Policies lists every edge policy
func Policies() []EdgePolicy {
	return []EdgePolicy{Arithmetic, Harmonic, Up, Down}
}

func (p EdgePolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("EdgePolicy(%d)", int(p))
}

// UnmarshalText lets config files name a policy directly
func (p *EdgePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseEdgePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText renders the policy name
func (p EdgePolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParseEdgePolicy resolves a policy name; "" selects Arithmetic
func ParseEdgePolicy(name string) (EdgePolicy, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return Arithmetic, nil
	}
	for p, n := range policyNames {
		if n == want {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown rounding edge policy: %s (must be arithmetic, harmonic, up, or down)", name)
}

// seriesValue returns mantissa m placed in decade d, i.e. m*10^(d-2) for a
// mantissa in [100, 1000). Division keeps negative decades correctly rounded.
func seriesValue(m float64, decade int) float64 {
	k := decade - 2
	if k >= 0 {
		return m * math.Pow10(k)
	}
	return m / math.Pow10(-k)
}

// Extend expands the per-decade table of s across decades lo..hi inclusive,
// where decade d covers [10^d, 10^(d+1)). The result is ascending.
func Extend(s Series, lo, hi int) []float64 {
	table := seriesTables[s]
	if len(table) == 0 || hi < lo {
		return nil
	}
	out := make([]float64, 0, len(table)*(hi-lo+1))
	for d := lo; d <= hi; d++ {
		for _, m := range table {
			out = append(out, seriesValue(m, d))
		}
	}
	return out
}

// DecadeRange returns the decades spanned by the finite positive values,
// widened by one decade on each side so both neighbours of any value exist.
func DecadeRange(values []float64) (lo, hi int, ok bool) {
	for _, v := range values {
		if !quantizable(v) {
			continue
		}
		d := int(math.Floor(math.Log10(v)))
		if !ok {
			lo, hi, ok = d, d, true
			continue
		}
		lo = min(lo, d)
		hi = max(hi, d)
	}
	if !ok {
		return 0, 0, false
	}
	return lo - 1, hi + 1, true
}

// Edges builds the bin edges between consecutive extended-series values
func Edges(extended []float64, policy EdgePolicy) []float64 {
	if len(extended) < 2 {
		return nil
	}
	edges := make([]float64, len(extended)-1)
	for i := range edges {
		a, b := extended[i], extended[i+1]
		switch policy {
		case Harmonic:
			edges[i] = 2 * a * b / (a + b)
		case Up:
			edges[i] = a
		case Down:
			edges[i] = b
		default:
			edges[i] = (a + b) / 2
		}
	}
	return edges
}

// Quantize maps every value to the nearest member of series s under policy.
// Non-finite and non-positive inputs map to NaN. All values share one
// extended series built over their combined decade range.
func Quantize(values []float64, s Series, policy EdgePolicy) ([]float64, error) {
	if !s.Valid() {
		return nil, &UnknownSeriesError{Name: s.String()}
	}
	if _, ok := policyNames[policy]; !ok {
		return nil, fmt.Errorf("unknown rounding edge policy: %s", policy)
	}

	out := make([]float64, len(values))
	lo, hi, ok := DecadeRange(values)
	if !ok {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, nil
	}

	extended := Extend(s, lo, hi)
	edges := Edges(extended, policy)

	for i, v := range values {
		if !quantizable(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = extended[bin(edges, v, policy)]
	}
	return out, nil
}

// QuantizeValue is the scalar form of Quantize
func QuantizeValue(v float64, s Series, policy EdgePolicy) (float64, error) {
	out, err := Quantize([]float64{v}, s, policy)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// bin returns the index of the extended-series value that v falls to. A
// value sitting exactly on an "up" edge is already a series member and
// stays in its own bin.
func bin(edges []float64, v float64, policy EdgePolicy) int {
	if policy == Up {
		return sort.Search(len(edges), func(i int) bool { return edges[i] >= v })
	}
	return sort.Search(len(edges), func(i int) bool { return edges[i] > v })
}

func quantizable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
