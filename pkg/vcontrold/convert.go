package vcontrold

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ConvertOptions control how decoded replies become application values.
type ConvertOptions struct {
	// SwitchAsBool maps bool items to true/false. When false the raw
	// number is passed through.
	SwitchAsBool bool
	// UseFahrenheit converts temperatures to degrees Fahrenheit.
	UseFahrenheit bool
	// ExcludeTimers drops timer slots that carry no switching time.
	ExcludeTimers bool
	// AnnotateUnits attaches a unit label to converted values.
	AnnotateUnits bool
	// UnsetMarkers mark an empty on/off time in timer tables.
	UnsetMarkers []string
	// Location is used for timestamps without a zone offset.
	Location *time.Location
}

// DefaultConvertOptions mirror the daemon's usual conventions.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		SwitchAsBool: true,
		UnsetMarkers: []string{"--", "--:--"},
		Location:     time.Local,
	}
}

// TimerEntry is one switching slot of a weekday timer table.
type TimerEntry struct {
	Day  string `json:"day,omitempty" yaml:"day,omitempty"`
	Slot int    `json:"slot" yaml:"slot"`
	On   string `json:"on,omitempty" yaml:"on,omitempty"`
	Off  string `json:"off,omitempty" yaml:"off,omitempty"`
}

// Unset reports whether the slot has neither an on nor an off time.
func (e TimerEntry) Unset() bool { return e.On == "" && e.Off == "" }

// Fault is an entry of the controller's error history.
type Fault struct {
	Time    time.Time `json:"time" yaml:"time"`
	Message string    `json:"message" yaml:"message"`
}

// Converter turns decoded responses into typed values.
type Converter struct {
	opts ConvertOptions
}

// NewConverter returns a converter using opts.
func NewConverter(opts ConvertOptions) *Converter {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Converter{opts: opts}
}

// Options returns the converter's options.
func (c *Converter) Options() ConvertOptions { return c.opts }

// Label returns the unit label for u, or "" when annotation is disabled.
func (c *Converter) Label(u Unit) string {
	if !c.opts.AnnotateUnits {
		return ""
	}
	return u.Label(c.opts.UseFahrenheit)
}

// Convert maps a successful response onto the Go value for unit:
//
//	UnitBool                 bool (or int64/float64 when SwitchAsBool is off)
//	numeric units            float64 or int64
//	UnitTimestamp            time.Time
//	UnitTimer                []TimerEntry
//	UnitFault                Fault
//	UnitText                 string
//	UnitNone, UnitRaw        first token parsed, or the joined tokens
func (c *Converter) Convert(resp *Response, unit Unit) (any, error) {
	if resp == nil || len(resp.Tokens) == 0 {
		return nil, ErrEmptyResponse
	}

	switch unit {
	case UnitBool:
		return c.convertBool(resp)
	case UnitCelsius:
		return c.convertCelsius(resp)
	case UnitPercent, UnitHours, UnitMinutes, UnitNumber, UnitPower, UnitShift, UnitSlope:
		return convertNumber(resp, unit)
	case UnitTimestamp:
		return c.convertTimestamp(resp.Tokens, unit)
	case UnitTimer:
		return c.convertTimer(resp.Tokens)
	case UnitFault:
		return c.convertFault(resp.Tokens)
	case UnitText:
		return resp.Text(), nil
	case UnitNone, UnitRaw:
		if len(resp.Tokens) == 1 {
			return resp.Value(), nil
		}
		return resp.Text(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, unit)
}

func (c *Converter) convertBool(resp *Response) (any, error) {
	v := resp.Value()
	n, ok := toFloat(v)
	if !ok {
		switch strings.ToLower(resp.Tokens[0]) {
		case "on", "an", "true":
			n, ok = 1, true
		case "off", "aus", "false":
			n, ok = 0, true
		}
	}
	if !ok {
		return nil, &ConversionError{Unit: UnitBool, Input: resp.Text()}
	}
	if !c.opts.SwitchAsBool {
		if _, isStr := v.(string); isStr {
			return int64(n), nil
		}
		return v, nil
	}
	return n != 0, nil
}

func (c *Converter) convertCelsius(resp *Response) (any, error) {
	n, ok := toFloat(resp.Value())
	if !ok {
		return nil, &ConversionError{Unit: UnitCelsius, Input: resp.Text()}
	}
	if c.opts.UseFahrenheit {
		return CelsiusToFahrenheit(n), nil
	}
	return n, nil
}

// CelsiusToFahrenheit converts and rounds to one decimal place.
func CelsiusToFahrenheit(c float64) float64 {
	return Round(c*9/5+32, 1)
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func convertNumber(resp *Response, unit Unit) (any, error) {
	switch v := resp.Value().(type) {
	case int64, float64:
		return v, nil
	case string:
		// Some firmwares print a trailing unit glued to the value ("45%").
		trimmed := strings.TrimRight(v, "%hWK")
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			break
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &ConversionError{Unit: unit, Input: resp.Text(), Err: errNotFinite}
		}
		return f, nil
	}
	return nil, &ConversionError{Unit: unit, Input: resp.Text()}
}

var (
	dateLayouts = []string{"2006-01-02", "02.01.2006", "2006/01/02"}
	timeLayouts = []string{"15:04:05", "15:04"}
	zoneLayouts = []string{"2006-01-02T15:04:05-0700", time.RFC3339, "2006-01-02T15:04:05"}

	errMissingDate = errors.New("missing date component")
	errMissingTime = errors.New("missing time component")
	errNotFinite   = errors.New("not a finite number")
)

// convertTimestamp composes a time from the date and time components the
// daemon prints. A single combined token is accepted as well.
func (c *Converter) convertTimestamp(tokens []string, unit Unit) (time.Time, error) {
	input := strings.Join(tokens, " ")

	for _, tok := range tokens {
		for _, layout := range zoneLayouts {
			if t, err := time.ParseInLocation(layout, tok, c.opts.Location); err == nil {
				return t, nil
			}
		}
	}

	var (
		date    time.Time
		clock   time.Time
		hasDate bool
		hasTime bool
	)
	for _, tok := range tokens {
		// Weekday prefixes like "Mo," are ignored.
		tok = strings.TrimSuffix(tok, ",")
		if !hasDate {
			if d, ok := parseFirst(dateLayouts, tok); ok {
				date, hasDate = d, true
				continue
			}
		}
		if !hasTime {
			if t, ok := parseFirst(timeLayouts, tok); ok {
				clock, hasTime = t, true
			}
		}
	}

	switch {
	case !hasDate:
		return time.Time{}, &ConversionError{Unit: unit, Input: input, Err: errMissingDate}
	case !hasTime:
		return time.Time{}, &ConversionError{Unit: unit, Input: input, Err: errMissingTime}
	}

	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, c.opts.Location), nil
}

func parseFirst(layouts []string, s string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// convertTimer parses lines of the form "1:An:05:00  Aus:22:00".
func (c *Converter) convertTimer(lines []string) ([]TimerEntry, error) {
	entries := make([]TimerEntry, 0, len(lines))
	for _, line := range lines {
		e, err := c.parseTimerLine(line)
		if err != nil {
			return nil, err
		}
		if c.opts.ExcludeTimers && e.Unset() {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Converter) parseTimerLine(line string) (TimerEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return TimerEntry{}, &ConversionError{Unit: UnitTimer, Input: line, Err: errors.New("expected on and off fields")}
	}

	// "1:An:05:00" -> slot "1", rest "An:05:00"
	slotStr, onField, ok := strings.Cut(fields[0], ":")
	if !ok {
		return TimerEntry{}, &ConversionError{Unit: UnitTimer, Input: line, Err: errors.New("missing slot index")}
	}
	slot, err := strconv.Atoi(slotStr)
	if err != nil {
		return TimerEntry{}, &ConversionError{Unit: UnitTimer, Input: line, Err: err}
	}

	return TimerEntry{
		Slot: slot,
		On:   c.timerValue(onField),
		Off:  c.timerValue(fields[1]),
	}, nil
}

// timerValue strips the "An:"/"Aus:" label and blanks unset markers.
func (c *Converter) timerValue(field string) string {
	if _, v, ok := strings.Cut(field, ":"); ok {
		field = v
	}
	for _, m := range c.opts.UnsetMarkers {
		if field == m {
			return ""
		}
	}
	return field
}

// convertFault parses "2021-03-04T12:30:00+0100 Message text".
func (c *Converter) convertFault(tokens []string) (Fault, error) {
	if len(tokens) < 2 {
		return Fault{}, &ConversionError{Unit: UnitFault, Input: strings.Join(tokens, " "), Err: errors.New("expected timestamp and message")}
	}
	t, err := c.convertTimestamp(tokens[:1], UnitFault)
	if err != nil {
		return Fault{}, err
	}
	return Fault{Time: t, Message: strings.Join(tokens[1:], " ")}, nil
}
