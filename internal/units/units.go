// Package units converts physical quantities between the writer's base units
// and the units declared by output formats.
//
// Base units are millimeter for length, radian for angle and tesla for
// magnetic field. Values held by the geometry registry are always in base
// units; converting on export keeps the exporter independent of whatever unit
// a configuration file was written in.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownUnit is returned when a unit symbol is not registered.
var ErrUnknownUnit = fmt.Errorf("unknown unit")

// factors maps a unit symbol to its magnitude in base units.
var factors = map[string]float64{
	// length (base: mm)
	"nm": 1e-6,
	"um": 1e-3,
	"mm": 1.0,
	"cm": 10.0,
	"m":  1e3,
	"km": 1e6,

	// angle (base: rad)
	"rad":  1.0,
	"mrad": 1e-3,
	"deg":  math.Pi / 180.0,

	// magnetic field (base: T)
	"T":  1.0,
	"mT": 1e-3,
	"G":  1e-4,
	"kG": 1e-1,
}

// Get returns the magnitude of one unit in base units.
func Get(unit string) (float64, error) {
	f, ok := factors[unit]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return f, nil
}

// Convert expresses a base-unit value in the given unit.
// Convert(25.4, "cm") == 2.54 for a length stored as 25.4 mm.
func Convert(value float64, unit string) (float64, error) {
	f, err := Get(unit)
	if err != nil {
		return 0, err
	}
	return value / f, nil
}

// MustConvert is Convert for unit symbols known at compile time.
func MustConvert(value float64, unit string) float64 {
	v, err := Convert(value, unit)
	if err != nil {
		panic(err)
	}
	return v
}

// Parse reads a quantity with a trailing unit symbol ("18.4um", "0.5deg",
// "3.8T") and returns its value in base units. A bare number is taken to be
// in the fallback unit.
func Parse(s string, fallback string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	// The longest numeric prefix is the value, so exponent forms like
	// "1e3mm" keep their exponent out of the unit symbol.
	var value float64
	split := 0
	for i := len(s); i >= 1; i-- {
		if v, err := strconv.ParseFloat(s[:i], 64); err == nil {
			value, split = v, i
			break
		}
	}
	if split == 0 {
		return 0, fmt.Errorf("parse quantity %q: no numeric value", s)
	}
	unitPart := strings.TrimSpace(s[split:])

	if unitPart == "" {
		unitPart = fallback
	}
	f, err := Get(unitPart)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return value * f, nil
}
