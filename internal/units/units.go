// Package units provides shared constants and conversions for tracking units.
//
// Lengths are in millimetres, momenta in GeV/c and magnetic field in tesla,
// matching the conventions of the helix parametrisation.
package units

import "strings"

// Momentum unit constants
const (
	GeV = "gev"
	MeV = "mev"
	KeV = "kev"
)

// Field unit constants
const (
	Tesla     = "t"
	KiloGauss = "kg"
)

// FieldConversion converts R[mm]·B[T] into a transverse momentum in GeV/c.
const FieldConversion = 2.99792458e-4

// ValidMomentumUnits contains all valid momentum unit values
var ValidMomentumUnits = []string{GeV, MeV, KeV}

// IsValidMomentum checks if the given unit is a known momentum unit
func IsValidMomentum(unit string) bool {
	for _, u := range ValidMomentumUnits {
		if strings.EqualFold(unit, u) {
			return true
		}
	}
	return false
}

// GetValidMomentumUnitsString returns a comma-separated string of valid units for error messages
func GetValidMomentumUnitsString() string {
	return strings.Join(ValidMomentumUnits, ", ")
}

// ConvertMomentum converts a momentum in GeV/c to the target units.
// Unknown units are returned unchanged.
func ConvertMomentum(pGeV float64, targetUnits string) float64 {
	switch strings.ToLower(targetUnits) {
	case MeV:
		return pGeV * 1e3
	case KeV:
		return pGeV * 1e6
	default:
		return pGeV
	}
}

// FieldToTesla converts a field value given in the named unit to tesla.
func FieldToTesla(b float64, unit string) float64 {
	if strings.ToLower(unit) == KiloGauss {
		return b * 0.1
	}
	return b
}

// TransverseMomentum returns pT in GeV/c for a radius of curvature in mm
// and a field in tesla. The sign of the radius is dropped.
func TransverseMomentum(radius, bfield float64) float64 {
	if radius < 0 {
		radius = -radius
	}
	return FieldConversion * bfield * radius
}

// RadiusOfCurvature is the inverse of TransverseMomentum.
func RadiusOfCurvature(pt, bfield float64) float64 {
	return pt / (FieldConversion * bfield)
}
