package vcontrold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnit(t *testing.T) {
	for u := UnitNone; u < unitCount; u++ {
		got, err := ParseUnit(u.String())
		require.NoError(t, err)
		assert.Equal(t, u, got)
	}

	tests := map[string]Unit{
		"":            UnitNone,
		"Temperature": UnitCelsius,
		" switch ":    UnitBool,
		"datetime":    UnitTimestamp,
		"error":       UnitFault,
		"TIMETABLE":   UnitTimer,
		"Celsius":     UnitCelsius,
	}
	for in, want := range tests {
		got, err := ParseUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseUnit("kelvin")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestUnit_Text(t *testing.T) {
	b, err := UnitPercent.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "percent", string(b))

	var u Unit
	require.NoError(t, u.UnmarshalText([]byte("switch")))
	assert.Equal(t, UnitBool, u)

	_, err = Unit(77).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownUnit)
	assert.Equal(t, "unit(77)", Unit(77).String())
	assert.False(t, Unit(77).Valid())
}

func TestUnit_Label(t *testing.T) {
	assert.Equal(t, "°C", UnitCelsius.Label(false))
	assert.Equal(t, "°F", UnitCelsius.Label(true))
	assert.Equal(t, "h", UnitHours.Label(false))
	assert.Equal(t, "slope", UnitSlope.Label(false))
	assert.Empty(t, UnitRaw.Label(false))
}

func TestUnit_Numeric(t *testing.T) {
	assert.True(t, UnitCelsius.Numeric())
	assert.True(t, UnitPower.Numeric())
	assert.False(t, UnitBool.Numeric())
	assert.False(t, UnitTimer.Numeric())
}
