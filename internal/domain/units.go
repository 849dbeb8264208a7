package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LengthUnit is a linear unit used for tolerances, segment lengths, and the
// working projection's coordinates.
type LengthUnit string

const (
	Miles         LengthUnit = "miles"
	Kilometers    LengthUnit = "kilometers"
	Meters        LengthUnit = "meters"
	Feet          LengthUnit = "feet"
	Yards         LengthUnit = "yards"
	NauticalMiles LengthUnit = "nautical_miles"
)

// DefaultSnapDistance is the conflation tolerance, in the chosen unit, used
// when no distance is supplied.
const DefaultSnapDistance = 0.25

// metersPer holds the size of one unit in meters. Miles are US survey miles.
var metersPer = map[LengthUnit]float64{
	Miles:         1609.347218694437,
	Kilometers:    1000,
	Meters:        1,
	Feet:          0.3048,
	Yards:         0.9144,
	NauticalMiles: 1852,
}

var unitAliases = map[string]LengthUnit{
	"miles": Miles, "mile": Miles, "mi": Miles, "miles_us": Miles, "us_miles": Miles,
	"kilometers": Kilometers, "kilometer": Kilometers, "kilometres": Kilometers, "km": Kilometers,
	"meters": Meters, "meter": Meters, "metres": Meters, "m": Meters,
	"feet": Feet, "foot": Feet, "ft": Feet,
	"yards": Yards, "yard": Yards, "yd": Yards,
	"nautical_miles": NauticalMiles, "nautical_mile": NauticalMiles, "nmi": NauticalMiles,
}

// ParseLengthUnit resolves a unit token case-insensitively. An empty token
// yields US miles.
func ParseLengthUnit(s string) (LengthUnit, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return Miles, nil
	}
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	u, ok := unitAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
	return u, nil
}

// Meters returns the size of one unit in meters.
func (u LengthUnit) Meters() float64 {
	return metersPer[u]
}

// Convert expresses v, measured in u, in the target unit.
func (u LengthUnit) Convert(v float64, target LengthUnit) float64 {
	if u == target {
		return v
	}
	return v * u.Meters() / target.Meters()
}

// LengthFieldName returns the name of the segment length field for the unit:
// "Length_mi" for miles, otherwise "Length_" plus the unit's first two letters.
func LengthFieldName(u LengthUnit) string {
	if u == Miles {
		return "Length_mi"
	}
	return "Length_" + string(u)[:2]
}

// Distance is a tolerance value paired with its unit.
type Distance struct {
	Value float64
	Unit  LengthUnit
}

// ParseDistance builds a Distance from a numeric string and unit token. An
// empty value yields DefaultSnapDistance in the given unit.
func ParseDistance(value, unit string) (Distance, error) {
	u, err := ParseLengthUnit(unit)
	if err != nil {
		return Distance{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Distance{Value: DefaultSnapDistance, Unit: u}, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return Distance{}, fmt.Errorf("%w: %q", ErrInvalidDistance, value)
	}
	return Distance{Value: v, Unit: u}, nil
}

// In expresses the distance in the target unit.
func (d Distance) In(target LengthUnit) float64 {
	return d.Unit.Convert(d.Value, target)
}

func (d Distance) String() string {
	return strconv.FormatFloat(d.Value, 'g', -1, 64) + " " + string(d.Unit)
}
