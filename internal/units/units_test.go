package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedCMS float64
		units    string
		expected float64
	}{
		{"1000 cm/s to mph", 1000, MPH, 22.3694},
		{"1000 cm/s to kmph", 1000, KMPH, 36.0},
		{"1000 cm/s to kph", 1000, KPH, 36.0},
		{"1000 cm/s to mps", 1000, MPS, 10.0},
		{"cms is unchanged", 1000, CMS, 1000},
		{"unknown units default to cms", 1000, "unknown", 1000},
		{"0 cm/s to mph", 0, MPH, 0},
		{"walking pace 140 cm/s to mph", 140, MPH, 3.13172},
		{"radar top speed 1270 cm/s to kph", 1270, KPH, 45.72},
		{"negative speeds keep their sign", -250, MPS, -2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertSpeed(tt.speedCMS, tt.units)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.speedCMS, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid cms", CMS, true},
		{"valid mps", MPS, true},
		{"valid mph", MPH, true},
		{"valid kmph", KMPH, true},
		{"valid kph", KPH, true},
		{"invalid unit", "furlongs", false},
		{"empty string", "", false},
		{"case sensitive", "MPH", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestValidUnitsString(t *testing.T) {
	expected := "cms, mps, mph, kmph, kph"
	if got := ValidUnitsString(); got != expected {
		t.Errorf("ValidUnitsString() = %s, want %s", got, expected)
	}
}
