package textfile

import (
	"path/filepath"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Encoding
		bom      bool
	}{
		{"utf-8 plain", []byte("R1 1 0 1k\n"), UTF8, false},
		{"utf-8 bom", []byte("\xEF\xBB\xBFR1"), UTF8, true},
		{"utf-16le bom", []byte{0xFF, 0xFE, 'R', 0, '1', 0}, UTF16LE, true},
		{"utf-16le no bom", []byte{'R', 0, '1', 0}, UTF16LE, false},
		{"utf-16be bom", []byte{0xFE, 0xFF, 0, 'R', 0, '1'}, UTF16BE, true},
		{"windows-1252 micro", []byte("C1 1 0 1\xB5\n"), Windows1252, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, bom := Detect(tt.data)
			if enc != tt.expected || bom != tt.bom {
				t.Errorf("Detect() = %s/%v, want %s/%v", enc, bom, tt.expected, tt.bom)
			}
		})
	}
}

func TestDecodeWindows1252Micro(t *testing.T) {
	doc, err := Decode([]byte("C1 1 0 1\xB5\n"))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if doc.Text != "C1 1 0 1µ\n" {
		t.Errorf("expected micro sign to decode, got %q", doc.Text)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	text := "Version 4\nSYMATTR InstName C1\nSYMATTR Value 1µ\n"

	for _, enc := range []Encoding{UTF8, UTF16LE, UTF16BE, Windows1252} {
		for _, bom := range []bool{false, true} {
			if enc == Windows1252 && bom {
				continue
			}
			path := filepath.Join(dir, string(enc)+".asc")
			if err := Write(path, text, enc, bom); err != nil {
				t.Fatalf("Write(%s) error: %v", enc, err)
			}
			doc, err := Read(path)
			if err != nil {
				t.Fatalf("Read(%s) error: %v", enc, err)
			}
			if doc.Text != text {
				t.Errorf("%s bom=%v: got %q", enc, bom, doc.Text)
			}
			if doc.Encoding != enc {
				t.Errorf("%s bom=%v: detected %s", enc, bom, doc.Encoding)
			}
		}
	}
}
