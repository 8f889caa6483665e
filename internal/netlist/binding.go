package netlist

import (
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/eseries"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/units"
)

// BindingSpec is a requested tunable instance as given by the user
type BindingSpec struct {
	Instance string
	Min      float64
	Max      float64
	Series   eseries.Series
}

// Binding ties a tunable instance to its netlist line
type Binding struct {
	Designator string
	Line       int
	Nominal    float64
	Min        float64
	Max        float64
	Series     eseries.Series
}

// BindError lists every requested instance that did not resolve to exactly
// one netlist line
type BindError struct {
	Requested int
	Resolved  int
	Problems  []string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%d instances requested, %d resolved in netlist: %s",
		e.Requested, e.Resolved, strings.Join(e.Problems, "; "))
}

// Bind resolves each spec to a netlist line and parses its nominal value.
// Every spec must resolve or the whole bind fails.
func Bind(n *Netlist, specs []BindingSpec) ([]Binding, error) {
	bindings := make([]Binding, 0, len(specs))
	seenLine := make(map[int]string, len(specs))
	var problems []string

	for _, spec := range specs {
		line, err := n.Locate(spec.Instance)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if other, dup := seenLine[line]; dup {
			problems = append(problems, fmt.Sprintf("%s and %s resolve to the same line %d", other, spec.Instance, line+1))
			continue
		}

		token, err := n.Value(line)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", spec.Instance, err))
			continue
		}
		nominal, err := units.ParseValue(token)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", spec.Instance, err))
			continue
		}
		if nominal <= 0 {
			problems = append(problems, fmt.Sprintf("%s: nominal value %g must be positive", spec.Instance, nominal))
			continue
		}

		seenLine[line] = spec.Instance
		bindings = append(bindings, Binding{
			Designator: n.lines[line].Designator(),
			Line:       line,
			Nominal:    nominal,
			Min:        spec.Min,
			Max:        spec.Max,
			Series:     spec.Series,
		})
	}

	if len(problems) > 0 || len(bindings) != len(specs) {
		return nil, &BindError{Requested: len(specs), Resolved: len(bindings), Problems: problems}
	}
	return bindings, nil
}
