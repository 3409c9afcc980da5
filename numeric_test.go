package indiserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSexagesimalPlainFloat(t *testing.T) {
	v, err := ParseSexagesimal("12.5")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v, 1e-9)
}

func TestParseSexagesimalColonSeparated(t *testing.T) {
	v, err := ParseSexagesimal("12:30:00")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v, 1e-9)
}

func TestParseSexagesimalNegative(t *testing.T) {
	v, err := ParseSexagesimal("-12:30")
	require.NoError(t, err)
	assert.InDelta(t, -12.5, v, 1e-9)
}

func TestParseSexagesimalSpaceSeparated(t *testing.T) {
	v, err := ParseSexagesimal("1 30 30")
	require.NoError(t, err)
	assert.InDelta(t, 1.508333, v, 1e-5)
}

func TestParseSexagesimalInvalid(t *testing.T) {
	_, err := ParseSexagesimal("not-a-number")
	assert.Error(t, err)
}

func TestFormatNumberClassic(t *testing.T) {
	s, err := FormatNumber(3.14159, "%5.2f")
	require.NoError(t, err)
	assert.Equal(t, " 3.14", s)
}

func TestFormatNumberSexagesimalMinutesSeconds(t *testing.T) {
	s, err := FormatNumber(12.5, "%6.6m")
	require.NoError(t, err)
	assert.Equal(t, "12:30:00", s)
}

func TestFormatNumberSexagesimalMinutesOnly(t *testing.T) {
	s, err := FormatNumber(12.5, "%5.3m")
	require.NoError(t, err)
	assert.Equal(t, "12:30", s)
}

func TestFormatNumberRoundTrip(t *testing.T) {
	s, err := FormatNumber(-12.5, "%6.6m")
	require.NoError(t, err)
	v, err := ParseSexagesimal(s)
	require.NoError(t, err)
	assert.InDelta(t, -12.5, v, 1e-6)
}
