package units

import (
	"math"
	"testing"
)

func TestConvertFlow(t *testing.T) {
	tests := []struct {
		name     string
		flowLPM  float64
		units    string
		expected float64
	}{
		{"60 L/min to L/s", 60.0, LPS, 1.0},
		{"100 L/min to m3/h", 100.0, M3H, 6.0},
		{"10 L/min to gpm", 10.0, GPM, 2.64172},
		{"10 L/min to lpm", 10.0, LPM, 10.0},
		{"unknown units default to lpm", 10.0, "unknown", 10.0},
		{"0 L/min to gpm", 0.0, GPM, 0.0},
		{"negative flow keeps sign", -30.0, LPS, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertFlow(tt.flowLPM, tt.units)
			if math.Abs(result-tt.expected) > 1e-6 {
				t.Errorf("ConvertFlow(%f, %s) = %f, want %f", tt.flowLPM, tt.units, result, tt.expected)
			}
		})
	}
}

func TestConvertCoefficients(t *testing.T) {
	a, b := ConvertCoefficients(0.21, -0.6, LPS)
	if math.Abs(a-0.0035) > 1e-9 || math.Abs(b+0.01) > 1e-9 {
		t.Errorf("ConvertCoefficients = (%f, %f), want (0.0035, -0.01)", a, b)
	}

	// The converted line agrees with converting the prediction.
	f := 42.0
	a, b = ConvertCoefficients(0.21, -0.6, M3H)
	if got, want := a*f+b, ConvertFlow(0.21*f-0.6, M3H); math.Abs(got-want) > 1e-9 {
		t.Errorf("converted line = %f, want %f", got, want)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid lpm", LPM, true},
		{"valid lps", LPS, true},
		{"valid m3h", M3H, true},
		{"valid gpm", GPM, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "LPM", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "lpm, lps, m3h, gpm" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}

func TestLabel(t *testing.T) {
	tests := map[string]string{LPM: "L/min", LPS: "L/s", M3H: "m³/h", GPM: "gal/min", "": "L/min"}
	for unit, want := range tests {
		if got := Label(unit); got != want {
			t.Errorf("Label(%q) = %q, want %q", unit, got, want)
		}
	}
}
