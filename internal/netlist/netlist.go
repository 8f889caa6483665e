// Package netlist holds the tokenized simulator netlist that is rewritten
// before every simulation.
package netlist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/textfile"
)

// ValueToken is the token index of the value field on two-terminal elements
const ValueToken = 3

var (
	ErrDesignatorNotFound  = errors.New("designator not found")
	ErrDesignatorAmbiguous = errors.New("designator matches more than one line")
	ErrLineOutOfRange      = errors.New("line index out of range")
	ErrNoValueToken        = errors.New("line has no value token")
)

// Line is one netlist record split on whitespace; token 0 is the designator
type Line []string

// Designator returns token 0, or "" for blank lines
func (l Line) Designator() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// IsElement reports whether the line describes a circuit element rather than
// a comment, directive or continuation.
func (l Line) IsElement() bool {
	d := l.Designator()
	if d == "" {
		return false
	}
	switch d[0] {
	case '.', '*', ';', '+':
		return false
	}
	return true
}

// Netlist is the ordered list of lines
type Netlist struct {
	lines    []Line
	encoding textfile.Encoding
	bom      bool
}

// Parse splits netlist text into lines of tokens
func Parse(text string) *Netlist {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	raw := strings.Split(text, "\n")

	lines := make([]Line, len(raw))
	for i, r := range raw {
		lines[i] = strings.Fields(r)
	}
	return &Netlist{lines: lines, encoding: textfile.UTF8}
}

// Load reads a netlist file, remembering its encoding for Save
func Load(path string) (*Netlist, error) {
	doc, err := textfile.Read(path)
	if err != nil {
		return nil, err
	}
	nl := Parse(doc.Text)
	nl.encoding = doc.Encoding
	nl.bom = doc.BOM
	return nl, nil
}

// Save writes the serialized netlist in the encoding it was loaded with
func (n *Netlist) Save(path string) error {
	return textfile.Write(path, n.Serialize(), n.encoding, n.bom)
}

// Len returns the number of lines
func (n *Netlist) Len() int {
	return len(n.lines)
}

// Line returns a copy of the tokens on line i
func (n *Netlist) Line(i int) (Line, error) {
	if i < 0 || i >= len(n.lines) {
		return nil, fmt.Errorf("%w: %d", ErrLineOutOfRange, i)
	}
	return append(Line(nil), n.lines[i]...), nil
}

// Locate finds the single element line whose designator contains the
// substring. A designator that is also a prefix of another one (R1 and R10)
// is ambiguous.
func (n *Netlist) Locate(designator string) (int, error) {
	if designator == "" {
		return -1, fmt.Errorf("%w: empty designator", ErrDesignatorNotFound)
	}

	var matches []int
	for i, line := range n.lines {
		if line.IsElement() && strings.Contains(line.Designator(), designator) {
			matches = append(matches, i)
		}
	}

	switch len(matches) {
	case 0:
		return -1, fmt.Errorf("%w: %s", ErrDesignatorNotFound, designator)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for k, i := range matches {
			names[k] = n.lines[i].Designator()
		}
		return -1, fmt.Errorf("%w: %s matches %s", ErrDesignatorAmbiguous, designator, strings.Join(names, ", "))
	}
}

// Value returns the value token of line i
func (n *Netlist) Value(i int) (string, error) {
	if i < 0 || i >= len(n.lines) {
		return "", fmt.Errorf("%w: %d", ErrLineOutOfRange, i)
	}
	if len(n.lines[i]) <= ValueToken {
		return "", fmt.Errorf("%w: line %d", ErrNoValueToken, i+1)
	}
	return n.lines[i][ValueToken], nil
}

// SetValue replaces the value token of line i; nothing else changes
func (n *Netlist) SetValue(i int, token string) error {
	if i < 0 || i >= len(n.lines) {
		return fmt.Errorf("%w: %d", ErrLineOutOfRange, i)
	}
	if len(n.lines[i]) <= ValueToken {
		return fmt.Errorf("%w: line %d", ErrNoValueToken, i+1)
	}
	n.lines[i][ValueToken] = token
	return nil
}

// Serialize joins each line's tokens with single spaces, one line per record
func (n *Netlist) Serialize() string {
	var b strings.Builder
	for _, line := range n.lines {
		b.WriteString(strings.Join(line, " "))
		b.WriteByte('\n')
	}
	return b.String()
}
