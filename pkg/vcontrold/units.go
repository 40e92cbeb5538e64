package vcontrold

import (
	"fmt"
	"strings"
)

// Unit is the semantic kind of an item's value. The set is closed: every
// conversion switch over Unit handles each constant below.
type Unit uint8

const (
	UnitNone Unit = iota
	UnitRaw
	UnitCelsius
	UnitPercent
	UnitHours
	UnitMinutes
	UnitBool
	UnitTimestamp
	UnitTimer
	UnitNumber
	UnitPower
	UnitShift
	UnitSlope
	UnitText
	UnitFault

	unitCount
)

var unitNames = [unitCount]string{
	UnitNone:      "none",
	UnitRaw:       "raw",
	UnitCelsius:   "celsius",
	UnitPercent:   "percent",
	UnitHours:     "hours",
	UnitMinutes:   "minutes",
	UnitBool:      "bool",
	UnitTimestamp: "timestamp",
	UnitTimer:     "timer",
	UnitNumber:    "number",
	UnitPower:     "power",
	UnitShift:     "shift",
	UnitSlope:     "slope",
	UnitText:      "text",
	UnitFault:     "fault",
}

// unitAliases maps the names used by existing vcontrold catalog files.
var unitAliases = map[string]Unit{
	"":            UnitNone,
	"temperature": UnitCelsius,
	"switch":      UnitBool,
	"time":        UnitTimestamp,
	"datetime":    UnitTimestamp,
	"error":       UnitFault,
	"timetable":   UnitTimer,
}

func (u Unit) String() string {
	if u < unitCount {
		return unitNames[u]
	}
	return fmt.Sprintf("unit(%d)", uint8(u))
}

// Valid reports whether u is one of the declared unit kinds.
func (u Unit) Valid() bool { return u < unitCount }

// ParseUnit resolves a unit name, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range unitNames {
		if n == name {
			return Unit(i), nil
		}
	}
	if u, ok := unitAliases[name]; ok {
		return u, nil
	}
	return UnitNone, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, uint8(u))
	}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(b []byte) error {
	parsed, err := ParseUnit(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Label is the display suffix for values of this unit. fahrenheit selects
// the temperature scale.
func (u Unit) Label(fahrenheit bool) string {
	switch u {
	case UnitCelsius:
		if fahrenheit {
			return "°F"
		}
		return "°C"
	case UnitPercent:
		return "%"
	case UnitHours:
		return "h"
	case UnitMinutes:
		return "min"
	case UnitPower:
		return "W"
	case UnitBool:
		return "bool"
	case UnitTimestamp:
		return "datetime"
	case UnitTimer:
		return "timetable"
	case UnitShift, UnitSlope, UnitNumber, UnitText, UnitFault:
		return u.String()
	case UnitNone, UnitRaw:
		return ""
	}
	return ""
}

// Numeric reports whether the unit converts to a number.
func (u Unit) Numeric() bool {
	switch u {
	case UnitCelsius, UnitPercent, UnitHours, UnitMinutes, UnitNumber, UnitPower, UnitShift, UnitSlope:
		return true
	}
	return false
}
