// Package units converts SPICE component value tokens to and from float64.
package units

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	plainNumber   = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	numeralPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)`)
)

// unitMagnitudes are checked, lower-cased, before the bare magnitude letters
var unitMagnitudes = map[string]string{
	"pf": "e-12",
	"ph": "e-12",
	"nf": "e-9",
	"nh": "e-9",
	"uf": "e-6",
	"uh": "e-6",
	"mf": "e-3",
	"mh": "e-3",
}

var magnitudes = map[byte]string{
	'k': "e3",
	'p': "e-12",
	'n': "e-9",
	'u': "e-6",
	'm': "e-3",
}

// unitWords may follow a bare magnitude letter ("4.7kohm", "10mV")
var unitWords = map[string]bool{
	"":    true,
	"f":   true,
	"h":   true,
	"ohm": true,
	"v":   true,
	"a":   true,
	"hz":  true,
	"s":   true,
}

// ParseError reports a value token that could not be decoded
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid component value %q: %s", e.Token, e.Reason)
}

// ParseValue decodes an engineering-notation value token such as "4.7k",
// "100n", "2.2pF" or "1µ". Upper-case M and G are mega and giga; lower-case
// m is milli.
func ParseValue(token string) (float64, error) {
	s := strings.TrimSpace(token)
	s = strings.ReplaceAll(s, "µ", "u")
	s = strings.ReplaceAll(s, "μ", "u")
	if s == "" {
		return 0, &ParseError{Token: token, Reason: "empty"}
	}

	if plainNumber.MatchString(s) {
		return parseFloat(token, s)
	}

	numeral := numeralPrefix.FindString(s)
	if numeral == "" {
		return 0, &ParseError{Token: token, Reason: "no leading numeral"}
	}
	suffix := s[len(numeral):]

	exp, ok := exponentFor(suffix)
	if !ok {
		return 0, &ParseError{Token: token, Reason: fmt.Sprintf("unknown suffix %q", suffix)}
	}
	return parseFloat(token, numeral+exp)
}

// exponentFor maps a magnitude/unit suffix to exponent text
func exponentFor(suffix string) (string, bool) {
	// case-sensitive collisions first
	switch {
	case strings.HasPrefix(strings.ToLower(suffix), "meg"):
		return "e6", unitWords[strings.ToLower(suffix[3:])]
	case suffix[0] == 'M':
		return "e6", unitWords[strings.ToLower(suffix[1:])]
	case suffix[0] == 'G':
		return "e9", unitWords[strings.ToLower(suffix[1:])]
	}

	lower := strings.ToLower(suffix)
	if exp, ok := unitMagnitudes[lower]; ok {
		return exp, true
	}
	exp, ok := magnitudes[lower[0]]
	if !ok {
		return "", false
	}
	return exp, unitWords[lower[1:]]
}

func parseFloat(token, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Token: token, Reason: err.Error()}
	}
	return v, nil
}

// FormatValue renders v for the netlist: exponential notation with twelve
// digits after the decimal point and no unit suffix.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'e', 12, 64)
}

// FormatShort renders v with three digits after the decimal point, the form
// written into rewritten schematics.
func FormatShort(v float64) string {
	return strconv.FormatFloat(v, 'e', 3, 64)
}
