// Package rawfile reads LTspice .raw result files.
package rawfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/textfile"
)

var (
	ErrTraceNotFound = errors.New("trace not found")
	ErrMalformed     = errors.New("malformed raw file")
)

// Variable is one entry of the header's variable table
type Variable struct {
	Index int
	Name  string
	Kind  string
}

// File is a decoded raw file; every trace is held as complex values, real
// traces with a zero imaginary part
type File struct {
	Title     string
	Plotname  string
	Flags     []string
	Variables []Variable
	Points    int

	traces [][]complex128
}

// Open reads and decodes path
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw file %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes raw file bytes
func Parse(data []byte) (*File, error) {
	enc, bom := textfile.Detect(data)
	start := 0
	if bom {
		start = 2
		if enc == textfile.UTF8 {
			start = 3
		}
	}

	headerEnd, dataStart, binaryData, err := findDataSection(data[start:], enc)
	if err != nil {
		return nil, err
	}
	doc, err := textfile.Decode(data[start : start+headerEnd])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}

	f := &File{}
	if err := f.parseHeader(doc.Text); err != nil {
		return nil, err
	}

	body := data[start+dataStart:]
	if binaryData {
		err = f.readBinary(body)
	} else {
		var text *textfile.Document
		text, err = textfile.Decode(body)
		if err == nil {
			err = f.readValues(text.Text)
		}
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// findDataSection locates the "Binary:" or "Values:" marker line
func findDataSection(data []byte, enc textfile.Encoding) (headerEnd, dataStart int, binaryData bool, err error) {
	for _, marker := range []string{"Binary:\n", "Binary:\r\n", "Values:\n", "Values:\r\n"} {
		encoded, encErr := textfile.Encode(marker, enc, false)
		if encErr != nil {
			continue
		}
		if i := bytes.Index(data, encoded); i >= 0 {
			return i, i + len(encoded), strings.HasPrefix(marker, "Binary"), nil
		}
	}
	return 0, 0, false, fmt.Errorf("%w: no Binary: or Values: section", ErrMalformed)
}

func (f *File) parseHeader(header string) error {
	nvars := -1
	lines := strings.Split(strings.ReplaceAll(header, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		key, value, found := strings.Cut(lines[i], ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "title":
			f.Title = value
		case "plotname":
			f.Plotname = value
		case "flags":
			f.Flags = strings.Fields(strings.ToLower(value))
		case "no. variables":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: bad variable count %q", ErrMalformed, value)
			}
			nvars = n
		case "no. points":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: bad point count %q", ErrMalformed, value)
			}
			f.Points = n
		case "variables":
			if nvars < 0 {
				return fmt.Errorf("%w: variables listed before their count", ErrMalformed)
			}
			for j := 0; j < nvars; j++ {
				i++
				if i >= len(lines) {
					return fmt.Errorf("%w: expected %d variables, found %d", ErrMalformed, nvars, j)
				}
				fields := strings.Fields(lines[i])
				if len(fields) < 3 {
					return fmt.Errorf("%w: bad variable line %q", ErrMalformed, lines[i])
				}
				idx, err := strconv.Atoi(fields[0])
				if err != nil {
					return fmt.Errorf("%w: bad variable index %q", ErrMalformed, fields[0])
				}
				f.Variables = append(f.Variables, Variable{Index: idx, Name: fields[1], Kind: fields[2]})
			}
		}
	}

	if nvars <= 0 || len(f.Variables) != nvars {
		return fmt.Errorf("%w: expected %d variables, found %d", ErrMalformed, nvars, len(f.Variables))
	}
	if f.Points <= 0 {
		return fmt.Errorf("%w: no points", ErrMalformed)
	}
	return nil
}

func (f *File) hasFlag(flag string) bool {
	for _, fl := range f.Flags {
		if fl == flag {
			return true
		}
	}
	return false
}

// Complex reports whether the traces carry complex data (AC analysis)
func (f *File) Complex() bool {
	return f.hasFlag("complex")
}

func (f *File) allocTraces() {
	f.traces = make([][]complex128, len(f.Variables))
	for i := range f.traces {
		f.traces[i] = make([]complex128, f.Points)
	}
}

func (f *File) readBinary(body []byte) error {
	nvars := len(f.Variables)
	complexData := f.Complex()
	double := f.hasFlag("double")

	// widths[v] is the byte size of one sample of variable v
	widths := make([]int, nvars)
	for v := range widths {
		switch {
		case complexData:
			widths[v] = 16
		case v == 0 || double:
			widths[v] = 8
		default:
			widths[v] = 4
		}
	}
	stride := 0
	for _, w := range widths {
		stride += w
	}
	// compare by division so a corrupt point count cannot overflow
	if stride == 0 || f.Points > len(body)/stride {
		return fmt.Errorf("%w: binary section has %d bytes, too short for %d points of %d bytes",
			ErrMalformed, len(body), f.Points, stride)
	}

	f.allocTraces()
	le := binary.LittleEndian
	readSample := func(b []byte, width int) complex128 {
		switch width {
		case 16:
			re := math.Float64frombits(le.Uint64(b))
			im := math.Float64frombits(le.Uint64(b[8:]))
			return complex(re, im)
		case 8:
			return complex(math.Float64frombits(le.Uint64(b)), 0)
		default:
			return complex(float64(math.Float32frombits(le.Uint32(b))), 0)
		}
	}

	if f.hasFlag("fastaccess") {
		off := 0
		for v := 0; v < nvars; v++ {
			for p := 0; p < f.Points; p++ {
				f.traces[v][p] = readSample(body[off:], widths[v])
				off += widths[v]
			}
		}
		return nil
	}

	off := 0
	for p := 0; p < f.Points; p++ {
		for v := 0; v < nvars; v++ {
			f.traces[v][p] = readSample(body[off:], widths[v])
			off += widths[v]
		}
	}
	return nil
}

func (f *File) readValues(text string) error {
	fields := strings.Fields(text)
	nvars := len(f.Variables)
	if f.Points > len(fields)/(nvars+1) {
		return fmt.Errorf("%w: values section has %d fields, too few for %d points of %d variables",
			ErrMalformed, len(fields), f.Points, nvars)
	}

	f.allocTraces()
	k := 0
	for p := 0; p < f.Points; p++ {
		k++ // point index
		for v := 0; v < nvars; v++ {
			c, err := parseSample(fields[k])
			if err != nil {
				return fmt.Errorf("%w: point %d variable %d: %v", ErrMalformed, p, v, err)
			}
			f.traces[v][p] = c
			k++
		}
	}
	return nil
}

func parseSample(s string) (complex128, error) {
	re, im, isComplex := strings.Cut(s, ",")
	r, err := strconv.ParseFloat(re, 64)
	if err != nil {
		return 0, err
	}
	if !isComplex {
		return complex(r, 0), nil
	}
	i, err := strconv.ParseFloat(im, 64)
	if err != nil {
		return 0, err
	}
	return complex(r, i), nil
}

// TraceNames lists the variable names in file order
func (f *File) TraceNames() []string {
	names := make([]string, len(f.Variables))
	for i, v := range f.Variables {
		names[i] = v.Name
	}
	return names
}

// Trace returns a copy of the named trace. Names match case-insensitively
// and a bare node name "out" also matches "V(out)".
func (f *File) Trace(name string) ([]complex128, error) {
	idx := f.lookup(name)
	if idx < 0 && !strings.Contains(name, "(") {
		idx = f.lookup("V(" + name + ")")
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s (have %s)", ErrTraceNotFound, name, strings.Join(f.TraceNames(), ", "))
	}
	return append([]complex128(nil), f.traces[idx]...), nil
}

func (f *File) lookup(name string) int {
	for i, v := range f.Variables {
		if strings.EqualFold(v.Name, name) {
			return i
		}
	}
	return -1
}

// Reader adapts Open to the trace-source interface used by the objective
type Reader struct{}

// ReadTraces opens path and returns the named traces in order
func (Reader) ReadTraces(path string, names ...string) ([][]complex128, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	out := make([][]complex128, len(names))
	for i, name := range names {
		tr, err := f.Trace(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[i] = tr
	}
	return out, nil
}
