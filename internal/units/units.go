// Package units provides shared constants and conversion for flow units.
package units

import "strings"

// Unit constants
const (
	LPM = "lpm" // litres per minute
	LPS = "lps" // litres per second
	M3H = "m3h" // cubic metres per hour
	GPM = "gpm" // US gallons per minute
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{LPM, LPS, M3H, GPM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// FlowFactor is the multiplier taking L/min to the target units.
func FlowFactor(targetUnits string) float64 {
	switch targetUnits {
	case LPS:
		return 1.0 / 60.0
	case M3H:
		return 0.06 // 1 L/min = 60 L/h = 0.06 m3/h
	case GPM:
		return 0.264172
	default:
		return 1 // default to L/min if unknown unit
	}
}

// ConvertFlow converts a flow from litres per minute to the target units.
// The sensor and the database work in L/min.
func ConvertFlow(flowLPM float64, targetUnits string) float64 {
	return flowLPM * FlowFactor(targetUnits)
}

// ConvertCoefficients rescales a fitted Q = a*f + b from L/min to the
// target units. Both terms scale by the same factor.
func ConvertCoefficients(a, b float64, targetUnits string) (float64, float64) {
	k := FlowFactor(targetUnits)
	return a * k, b * k
}

// Label returns a display label such as "L/min" for the units.
func Label(unit string) string {
	switch unit {
	case LPS:
		return "L/s"
	case M3H:
		return "m³/h"
	case GPM:
		return "gal/min"
	default:
		return "L/min"
	}
}
