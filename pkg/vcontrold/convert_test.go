package vcontrold

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(tokens ...string) *Response {
	return &Response{Status: StatusOK, Tokens: tokens}
}

func TestConvert_Celsius(t *testing.T) {
	for _, c := range []float64{-40, 0, 20.5, 100} {
		resp := ok(strconv.FormatFloat(c, 'f', 1, 64))

		v, err := NewConverter(ConvertOptions{UseFahrenheit: true}).Convert(resp, UnitCelsius)
		require.NoError(t, err)
		assert.Equal(t, Round(c*9/5+32, 1), v, "C=%v", c)

		v, err = NewConverter(ConvertOptions{}).Convert(resp, UnitCelsius)
		require.NoError(t, err)
		assert.Equal(t, c, v, "C=%v", c)
	}
}

func TestCelsiusToFahrenheit(t *testing.T) {
	assert.Equal(t, -40.0, CelsiusToFahrenheit(-40))
	assert.Equal(t, 32.0, CelsiusToFahrenheit(0))
	assert.Equal(t, 68.9, CelsiusToFahrenheit(20.5))
	assert.Equal(t, 212.0, CelsiusToFahrenheit(100))
	assert.Equal(t, 45.1, CelsiusToFahrenheit(7.3))
}

func TestConvert_CelsiusWithSuffix(t *testing.T) {
	v, err := NewConverter(ConvertOptions{}).Convert(ok("55.100000", "Grad", "Celsius"), UnitCelsius)
	require.NoError(t, err)
	assert.Equal(t, 55.1, v)
}

func TestConvert_CelsiusNotNumeric(t *testing.T) {
	_, err := NewConverter(ConvertOptions{}).Convert(ok("warm"), UnitCelsius)
	assert.ErrorIs(t, err, ErrConversion)
}

func TestConvert_Bool(t *testing.T) {
	conv := NewConverter(ConvertOptions{SwitchAsBool: true})

	tests := []struct {
		in   string
		want bool
	}{
		{"0", false},
		{"1", true},
		{"2", true},
		{"-1", true},
		{"0.0", false},
		{"on", true},
		{"off", false},
	}
	for _, tt := range tests {
		v, err := conv.Convert(ok(tt.in), UnitBool)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, v, tt.in)
	}
}

func TestConvert_BoolPassthrough(t *testing.T) {
	conv := NewConverter(ConvertOptions{SwitchAsBool: false})

	for _, in := range []string{"0", "1", "2", "-1"} {
		v, err := conv.Convert(ok(in), UnitBool)
		require.NoError(t, err)
		assert.Equal(t, ParseToken(in), v)
	}

	v, err := conv.Convert(ok("on"), UnitBool)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestConvert_BoolInvalid(t *testing.T) {
	_, err := NewConverter(ConvertOptions{SwitchAsBool: true}).Convert(ok("maybe"), UnitBool)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, UnitBool, convErr.Unit)
}

func TestConvert_NumericPassthrough(t *testing.T) {
	conv := NewConverter(ConvertOptions{})

	for _, u := range []Unit{UnitPercent, UnitHours, UnitMinutes, UnitNumber, UnitPower, UnitShift, UnitSlope} {
		v, err := conv.Convert(ok("12.5"), u)
		require.NoError(t, err, u.String())
		assert.Equal(t, 12.5, v, u.String())

		v, err = conv.Convert(ok("7"), u)
		require.NoError(t, err, u.String())
		assert.Equal(t, int64(7), v, u.String())
	}

	v, err := conv.Convert(ok("45%"), UnitPercent)
	require.NoError(t, err)
	assert.Equal(t, 45.0, v)

	_, err = conv.Convert(ok("n/a"), UnitHours)
	assert.ErrorIs(t, err, ErrConversion)
}

func TestConvert_NumberNotFinite(t *testing.T) {
	conv := NewConverter(ConvertOptions{})

	for _, in := range []string{"nan", "NaN", "inf", "-Inf", "+inf%"} {
		_, err := conv.Convert(ok(in), UnitPercent)
		var convErr *ConversionError
		require.ErrorAs(t, err, &convErr, in)
		assert.ErrorIs(t, err, errNotFinite, in)
	}
}

func TestConvert_Timestamp(t *testing.T) {
	conv := NewConverter(ConvertOptions{Location: time.UTC})

	v, err := conv.Convert(ok("2021-03-04T12:30:05+0100"), UnitTimestamp)
	require.NoError(t, err)
	want := time.Date(2021, 3, 4, 11, 30, 5, 0, time.UTC)
	assert.True(t, want.Equal(v.(time.Time)))

	v, err = conv.Convert(ok("Do,", "04.03.2021", "12:30:05"), UnitTimestamp)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 4, 12, 30, 5, 0, time.UTC), v)

	v, err = conv.Convert(ok("2021-03-04", "12:30"), UnitTimestamp)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 4, 12, 30, 0, 0, time.UTC), v)
}

func TestConvert_TimestampPartial(t *testing.T) {
	conv := NewConverter(ConvertOptions{Location: time.UTC})

	_, err := conv.Convert(ok("04.03.2021"), UnitTimestamp)
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, errMissingTime)

	_, err = conv.Convert(ok("12:30:05"), UnitTimestamp)
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, errMissingDate)
}

var timerTable = []string{
	"1:An:05:30  Aus:08:00",
	"2:An:16:00  Aus:22:30",
	"3:An:--     Aus:--",
	"4:An:--     Aus:--",
}

func TestConvert_Timer(t *testing.T) {
	v, err := NewConverter(DefaultConvertOptions()).Convert(ok(timerTable...), UnitTimer)
	require.NoError(t, err)

	entries := v.([]TimerEntry)
	require.Len(t, entries, 4)
	assert.Equal(t, TimerEntry{Slot: 1, On: "05:30", Off: "08:00"}, entries[0])
	assert.Equal(t, TimerEntry{Slot: 2, On: "16:00", Off: "22:30"}, entries[1])
	assert.True(t, entries[2].Unset())
	assert.True(t, entries[3].Unset())
}

func TestConvert_TimerExcludeUnset(t *testing.T) {
	opts := DefaultConvertOptions()
	opts.ExcludeTimers = true

	v, err := NewConverter(opts).Convert(ok(timerTable...), UnitTimer)
	require.NoError(t, err)

	entries := v.([]TimerEntry)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Slot)
	assert.Equal(t, 2, entries[1].Slot)
}

func TestConvert_TimerCustomUnsetMarker(t *testing.T) {
	opts := ConvertOptions{ExcludeTimers: true, UnsetMarkers: []string{"xx:xx"}}

	v, err := NewConverter(opts).Convert(ok("1:An:xx:xx Aus:xx:xx", "2:An:06:00 Aus:07:00"), UnitTimer)
	require.NoError(t, err)
	assert.Equal(t, []TimerEntry{{Slot: 2, On: "06:00", Off: "07:00"}}, v)
}

func TestConvert_TimerMalformed(t *testing.T) {
	_, err := NewConverter(DefaultConvertOptions()).Convert(ok("garbage"), UnitTimer)
	assert.ErrorIs(t, err, ErrConversion)
}

func TestConvert_Fault(t *testing.T) {
	conv := NewConverter(ConvertOptions{Location: time.UTC})

	v, err := conv.Convert(ok("2021-01-17T09:12:44+0000", "Kurzschluss", "Aussentemperatursensor"), UnitFault)
	require.NoError(t, err)

	f := v.(Fault)
	assert.Equal(t, "Kurzschluss Aussentemperatursensor", f.Message)
	assert.True(t, time.Date(2021, 1, 17, 9, 12, 44, 0, time.UTC).Equal(f.Time))

	_, err = conv.Convert(ok("2021-01-17T09:12:44+0000"), UnitFault)
	assert.ErrorIs(t, err, ErrConversion)
}

func TestConvert_TextAndRaw(t *testing.T) {
	conv := NewConverter(ConvertOptions{})

	v, err := conv.Convert(ok("H+WW", "FS"), UnitText)
	require.NoError(t, err)
	assert.Equal(t, "H+WW FS", v)

	v, err = conv.Convert(ok("17"), UnitRaw)
	require.NoError(t, err)
	assert.Equal(t, int64(17), v)

	v, err = conv.Convert(ok("a", "b"), UnitNone)
	require.NoError(t, err)
	assert.Equal(t, "a b", v)
}

func TestConvert_EmptyResponse(t *testing.T) {
	_, err := NewConverter(ConvertOptions{}).Convert(ok(), UnitCelsius)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestConvert_UnknownUnit(t *testing.T) {
	_, err := NewConverter(ConvertOptions{}).Convert(ok("1"), Unit(200))
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestConverter_Label(t *testing.T) {
	plain := NewConverter(ConvertOptions{})
	assert.Empty(t, plain.Label(UnitCelsius))

	annotated := NewConverter(ConvertOptions{AnnotateUnits: true})
	assert.Equal(t, "°C", annotated.Label(UnitCelsius))
	assert.Equal(t, "%", annotated.Label(UnitPercent))
	assert.Empty(t, annotated.Label(UnitNone))

	fahrenheit := NewConverter(ConvertOptions{AnnotateUnits: true, UseFahrenheit: true})
	assert.Equal(t, "°F", fahrenheit.Label(UnitCelsius))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 20.6, Round(20.56, 1))
	assert.Equal(t, -3.4, Round(-3.44, 1))
	assert.Equal(t, 12.34, Round(12.3449, 2))
	assert.Equal(t, 21.0, Round(20.96, 1))
}
