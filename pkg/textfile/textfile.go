// Package textfile reads and writes the text files the simulator produces,
// which may be UTF-8, UTF-16 or Windows-1252 depending on its version.
package textfile

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding identifies how a file was stored on disk
type Encoding string

const (
	UTF8        Encoding = "utf-8"
	UTF16LE     Encoding = "utf-16le"
	UTF16BE     Encoding = "utf-16be"
	Windows1252 Encoding = "windows-1252"
)

// Document is decoded file content plus the encoding it was read with
type Document struct {
	Text     string
	Encoding Encoding
	BOM      bool
}

// Read loads and decodes a text file
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return doc, nil
}

// Decode detects the encoding of data and converts it to a Go string
func Decode(data []byte) (*Document, error) {
	enc, bom := Detect(data)
	if bom {
		data = data[bomLen(enc):]
	}
	text, err := decoderFor(enc).Bytes(data)
	if err != nil {
		return nil, err
	}
	return &Document{Text: string(text), Encoding: enc, BOM: bom}, nil
}

// Detect guesses the encoding from a BOM, the NUL-byte pattern of UTF-16, or
// UTF-8 validity.
func Detect(data []byte) (Encoding, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return UTF16LE, true
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return UTF16BE, true
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8, true
	}
	if len(data) >= 2 {
		if data[0] != 0 && data[1] == 0 {
			return UTF16LE, false
		}
		if data[0] == 0 && data[1] != 0 {
			return UTF16BE, false
		}
	}
	if !utf8.Valid(data) {
		return Windows1252, false
	}
	return UTF8, false
}

// Write encodes text and writes it to path
func Write(path, text string, enc Encoding, bom bool) error {
	data, err := Encode(text, enc, bom)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Encode converts text into the given encoding
func Encode(text string, enc Encoding, bom bool) ([]byte, error) {
	var out []byte
	if bom {
		out = append(out, bomBytes(enc)...)
	}
	data, err := encoderFor(enc).Bytes([]byte(text))
	if err != nil {
		return nil, err
	}
	return append(out, data...), nil
}

func codecFor(enc Encoding) encoding.Encoding {
	switch enc {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case Windows1252:
		return charmap.Windows1252
	default:
		return encoding.Nop
	}
}

func decoderFor(enc Encoding) *encoding.Decoder {
	return codecFor(enc).NewDecoder()
}

func encoderFor(enc Encoding) *encoding.Encoder {
	return codecFor(enc).NewEncoder()
}

func bomBytes(enc Encoding) []byte {
	switch enc {
	case UTF16LE:
		return []byte{0xFF, 0xFE}
	case UTF16BE:
		return []byte{0xFE, 0xFF}
	case UTF8:
		return []byte{0xEF, 0xBB, 0xBF}
	}
	return nil
}

func bomLen(enc Encoding) int {
	return len(bomBytes(enc))
}
