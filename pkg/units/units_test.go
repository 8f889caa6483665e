package units

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		token    string
		expected float64
	}{
		{"1000", 1000},
		{"1.5", 1.5},
		{"-2.5e-3", -2.5e-3},
		{"4.7k", 4.7e3},
		{"4.7K", 4.7e3},
		{"10kohm", 10e3},
		{"100n", 100e-9},
		{"100nF", 100e-9},
		{"2.2pF", 2.2e-12},
		{"3.3pH", 3.3e-12},
		{"10nH", 10e-9},
		{"1u", 1e-6},
		{"1µ", 1e-6},
		{"4.7µF", 4.7e-6},
		{"22uH", 22e-6},
		{"1m", 1e-3},
		{"5mH", 5e-3},
		{"1mF", 1e-3},
		{"2M", 2e6},
		{"1Meg", 1e6},
		{"1meg", 1e6},
		{"3G", 3e9},
		{".5k", 500},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseValue(tt.token)
			require.NoError(t, err)
			assert.InEpsilon(t, tt.expected, got, 1e-12)
		})
	}
}

func TestParseValueErrors(t *testing.T) {
	for _, token := range []string{"", "abc", "1x", "1e3k", "1kq", "k1", "1F"} {
		t.Run(token, func(t *testing.T) {
			_, err := ParseValue(token)
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "expected *ParseError, got %T", err)
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1.000000000000e+03", FormatValue(1000))
	assert.Equal(t, "1.530e+03", FormatShort(1530))
	assert.Equal(t, "2.200e-12", FormatShort(2.2e-12))
}

func TestRoundTrip(t *testing.T) {
	for _, token := range []string{"4.7k", "100n", "2.2pF", "1u", "1.234567890123M", "0.1"} {
		first, err := ParseValue(token)
		require.NoError(t, err)

		second, err := ParseValue(FormatValue(first))
		require.NoError(t, err)

		if math.Abs(first-second) > 1e-12*math.Abs(first) {
			t.Errorf("%s: round trip drifted %g -> %g", token, first, second)
		}
	}
}
