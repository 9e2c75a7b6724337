package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	cases := map[string]int64{
		"6.00":   600,
		"24":     2400,
		"7.5":    750,
		"0.01":   1,
		".99":    99,
		"-1.25":  -125,
		"12.340": 1234,
	}
	for in, want := range cases {
		got, err := ParseCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseCentsRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1.234", "1e3", "-", "."} {
		_, err := ParseCents(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "24.00", FormatCents(2400))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-3.10", FormatCents(-310))
}

func TestFromFloat(t *testing.T) {
	got, err := FromFloat(7.5)
	require.NoError(t, err)
	assert.Equal(t, int64(750), got)

	got, err = FromFloat(0.1 + 0.2)
	require.NoError(t, err)
	assert.Equal(t, int64(30), got)
}
