// Package schematic writes quantized component values back into an LTspice
// schematic (.asc).
package schematic

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/eseries"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/textfile"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/units"
)

// valueField is the whitespace field of the record after an instance name
// that holds the displayed value ("SYMATTR Value 1k")
const valueField = 2

// Replacement is the optimized value for one instance and the series it is
// snapped to
type Replacement struct {
	Value  float64
	Series eseries.Series
}

// Change records one rewritten value
type Change struct {
	Instance  string
	Line      int
	Old       string
	New       string
	Quantized float64
}

// MissingInstancesError lists tuned instances the schematic never named
type MissingInstancesError struct {
	Instances []string
}

func (e *MissingInstancesError) Error() string {
	return fmt.Sprintf("instances not found in schematic: %s", strings.Join(e.Instances, ", "))
}

// Rewrite scans source record by record. "SYMATTR InstName <name>" for a
// tuned instance marks the next record, whose value field is replaced with
// the quantized value in 3-significant-digit exponential notation. All
// other records are copied unchanged.
func Rewrite(source string, values map[string]Replacement, policy eseries.EdgePolicy) (string, []Change, error) {
	lines := strings.Split(source, "\n")
	var changes []Change
	seen := make(map[string]bool, len(values))

	pending := ""
	for i, raw := range lines {
		line, cr := strings.CutSuffix(raw, "\r")
		fields := strings.Fields(line)

		if pending != "" {
			instance := pending
			pending = ""
			if len(fields) <= valueField {
				return "", nil, fmt.Errorf("line %d: record after %s has no value field", i+1, instance)
			}
			repl := values[instance]
			q, err := eseries.QuantizeValue(repl.Value, repl.Series, policy)
			if err != nil {
				return "", nil, fmt.Errorf("%s: %w", instance, err)
			}
			if math.IsNaN(q) {
				return "", nil, fmt.Errorf("%s: cannot quantize value %g", instance, repl.Value)
			}
			formatted := units.FormatShort(q)
			changes = append(changes, Change{
				Instance:  instance,
				Line:      i + 1,
				Old:       fields[valueField],
				New:       formatted,
				Quantized: q,
			})
			fields[valueField] = formatted
			line = strings.Join(fields, " ")
			if cr {
				line += "\r"
			}
			lines[i] = line
			continue
		}

		if len(fields) >= 3 && fields[0] == "SYMATTR" && fields[1] == "InstName" {
			if _, tuned := values[fields[2]]; tuned {
				pending = fields[2]
				seen[fields[2]] = true
			}
		}
	}
	if pending != "" {
		return "", nil, fmt.Errorf("schematic ends before the value record of %s", pending)
	}

	var missing []string
	for name := range values {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", nil, &MissingInstancesError{Instances: missing}
	}
	return strings.Join(lines, "\n"), changes, nil
}

// RewriteFile reads src, rewrites it and writes the result to dst in the
// same text encoding. src is never modified.
func RewriteFile(src, dst string, values map[string]Replacement, policy eseries.EdgePolicy) ([]Change, error) {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil, fmt.Errorf("refusing to overwrite source schematic %s", src)
	}
	doc, err := textfile.Read(src)
	if err != nil {
		return nil, err
	}
	out, changes, err := Rewrite(doc.Text, values, policy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	if err := textfile.Write(dst, out, doc.Encoding, doc.BOM); err != nil {
		return nil, err
	}
	return changes, nil
}

// OptimizedPath returns <stem>_opt.asc next to path
func OptimizedPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".asc"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_opt" + ext
}

// NetlistPath returns the netlist the simulator generates for a schematic
func NetlistPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".net"
}

// RawPath returns the result file the simulator writes for a netlist or
// schematic
func RawPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".raw"
}
