package rawfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/textfile"
)

func acHeader(points int, flags string) string {
	return fmt.Sprintf(`Title: * C:\work\filter.asc
Date: Mon Oct 19 10:00:00 2026
Plotname: AC Analysis
Flags: %s
No. Variables: 3
No. Points: %d
Offset:   0.0000000000000000e+000
Command: Linear Technology Corporation LTspice XVII
Variables:
	0	frequency	frequency
	1	V(out)	voltage
	2	I(R1)	device_current
`, flags, points)
}

func encodeComplex(t *testing.T, header string, enc textfile.Encoding, bom bool, samples [][3]complex128) []byte {
	t.Helper()
	head, err := textfile.Encode(header+"Binary:\n", enc, bom)
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	var buf bytes.Buffer
	buf.Write(head)
	for _, point := range samples {
		for _, c := range point {
			_ = binary.Write(&buf, binary.LittleEndian, real(c))
			_ = binary.Write(&buf, binary.LittleEndian, imag(c))
		}
	}
	return buf.Bytes()
}

var acSamples = [][3]complex128{
	{complex(10, 0), complex(0.99, -0.1), complex(1e-3, 0)},
	{complex(100, 0), complex(0.7, -0.7), complex(7e-4, 2e-4)},
	{complex(1000, 0), complex(0.01, -0.1), complex(1e-5, 1e-4)},
}

func TestParseBinaryComplexUTF16(t *testing.T) {
	for _, bom := range []bool{false, true} {
		data := encodeComplex(t, acHeader(3, "complex forward log"), textfile.UTF16LE, bom, acSamples)

		f, err := Parse(data)
		if err != nil {
			t.Fatalf("Parse() error: %v", err)
		}
		if !f.Complex() {
			t.Error("expected complex file")
		}
		if f.Plotname != "AC Analysis" || f.Points != 3 || len(f.Variables) != 3 {
			t.Fatalf("unexpected header: %+v", f)
		}

		freq, err := f.Trace("frequency")
		if err != nil {
			t.Fatalf("Trace(frequency) error: %v", err)
		}
		out, err := f.Trace("v(OUT)")
		if err != nil {
			t.Fatalf("Trace(v(OUT)) error: %v", err)
		}
		for p := range acSamples {
			if freq[p] != acSamples[p][0] {
				t.Errorf("frequency[%d] = %v, want %v", p, freq[p], acSamples[p][0])
			}
			if out[p] != acSamples[p][1] {
				t.Errorf("V(out)[%d] = %v, want %v", p, out[p], acSamples[p][1])
			}
		}
	}
}

func TestParseBinaryASCIIHeader(t *testing.T) {
	data := encodeComplex(t, acHeader(3, "complex forward log"), textfile.UTF8, false, acSamples)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	current, err := f.Trace("I(R1)")
	if err != nil {
		t.Fatalf("Trace() error: %v", err)
	}
	if current[1] != acSamples[1][2] {
		t.Errorf("I(R1)[1] = %v, want %v", current[1], acSamples[1][2])
	}
}

func TestParseBinaryFastAccess(t *testing.T) {
	head, _ := textfile.Encode(acHeader(3, "complex forward log fastaccess")+"Binary:\n", textfile.UTF8, false)
	var buf bytes.Buffer
	buf.Write(head)
	for v := 0; v < 3; v++ {
		for p := range acSamples {
			_ = binary.Write(&buf, binary.LittleEndian, real(acSamples[p][v]))
			_ = binary.Write(&buf, binary.LittleEndian, imag(acSamples[p][v]))
		}
	}

	f, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	out, _ := f.Trace("out")
	if out[2] != acSamples[2][1] {
		t.Errorf("V(out)[2] = %v, want %v", out[2], acSamples[2][1])
	}
}

func TestParseBinaryReal(t *testing.T) {
	header := `Title: * tran
Plotname: Transient Analysis
Flags: real forward
No. Variables: 2
No. Points: 2
Variables:
	0	time	time
	1	V(out)	voltage
Binary:
`
	var buf bytes.Buffer
	buf.WriteString(header)
	_ = binary.Write(&buf, binary.LittleEndian, 0.0)
	_ = binary.Write(&buf, binary.LittleEndian, float32(1.5))
	_ = binary.Write(&buf, binary.LittleEndian, 1e-3)
	_ = binary.Write(&buf, binary.LittleEndian, float32(-0.25))

	f, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if f.Complex() {
		t.Error("expected real file")
	}
	tm, _ := f.Trace("time")
	out, _ := f.Trace("V(out)")
	if real(tm[1]) != 1e-3 || real(out[0]) != 1.5 || real(out[1]) != -0.25 {
		t.Errorf("unexpected samples time=%v out=%v", tm, out)
	}
}

func TestParseValues(t *testing.T) {
	text := `Title: * ascii
Plotname: AC Analysis
Flags: complex forward log
No. Variables: 2
No. Points: 2
Variables:
	0	frequency	frequency
	1	V(out)	voltage
Values:
0	1.000000000000000e+001,0.000000000000000e+000
	9.900000000000000e-001,-1.000000000000000e-001
1	1.000000000000000e+002,0.000000000000000e+000
	7.000000000000000e-001,-7.000000000000000e-001
`
	f, err := Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	out, _ := f.Trace("V(out)")
	if out[1] != complex(0.7, -0.7) {
		t.Errorf("V(out)[1] = %v", out[1])
	}
}

func TestTraceNotFound(t *testing.T) {
	data := encodeComplex(t, acHeader(3, "complex"), textfile.UTF8, false, acSamples)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	_, err = f.Trace("V(in)")
	if !errors.Is(err, ErrTraceNotFound) {
		t.Fatalf("expected ErrTraceNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "V(out)") {
		t.Errorf("error should list available traces: %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"no data section", []byte(acHeader(3, "complex"))},
		{"truncated binary", encodeComplex(t, acHeader(5, "complex"), textfile.UTF8, false, acSamples)},
		{"missing variables", []byte("Title: x\nNo. Points: 1\nBinary:\n")},
		{"point count overflows binary size", encodeComplex(t, acHeader(1<<60, "complex"), textfile.UTF8, false, acSamples[:1])},
		{"point count overflows values size", []byte(acHeader(1<<62, "complex") + "Values:\n0\t1,0\t1,0\t1,0\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestReaderReadTraces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.raw")
	if err := os.WriteFile(path, encodeComplex(t, acHeader(3, "complex forward log"), textfile.UTF16LE, false, acSamples), 0o644); err != nil {
		t.Fatal(err)
	}

	traces, err := Reader{}.ReadTraces(path, "frequency", "V(out)")
	if err != nil {
		t.Fatalf("ReadTraces() error: %v", err)
	}
	if len(traces) != 2 || len(traces[0]) != 3 {
		t.Fatalf("unexpected trace shape: %d traces", len(traces))
	}
	if math.Abs(real(traces[0][2])-1000) > 0 {
		t.Errorf("frequency[2] = %v", traces[0][2])
	}

	if _, err := (Reader{}).ReadTraces(path, "V(missing)"); !errors.Is(err, ErrTraceNotFound) {
		t.Errorf("expected ErrTraceNotFound, got %v", err)
	}
}
