package units

import "math"

// TwoPi is 2π.
const TwoPi = 2. * math.Pi

// WrapPhi returns phi shifted into [0, 2π) by at most one turn.
func WrapPhi(phi float64) float64 {
	if phi < 0. {
		phi += TwoPi
	}
	if phi >= TwoPi {
		phi -= TwoPi
	}
	return phi
}

// WrapDeltaPhi returns dphi shifted into (-π, π] by at most one turn.
func WrapDeltaPhi(dphi float64) float64 {
	if dphi > math.Pi {
		dphi -= TwoPi
	}
	if dphi <= -math.Pi {
		dphi += TwoPi
	}
	return dphi
}
