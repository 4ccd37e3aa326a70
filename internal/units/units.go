// Package units provides the speed units the API can report in.
package units

import "strings"

// Unit constants
const (
	CMS  = "cms"
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{CMS, MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ValidUnitsString returns the valid units for error messages.
func ValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed from centimetres per second, the radar's
// own unit, to targetUnits. Unknown units are left as cm/s.
func ConvertSpeed(speedCMS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedCMS / 100
	case MPH:
		return speedCMS * 0.022369362920544
	case KMPH, KPH:
		return speedCMS * 0.036
	default:
		return speedCMS
	}
}
