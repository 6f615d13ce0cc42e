package helicaltrack

import "errors"

// Construction and invariant errors. Recoverable fit outcomes are reported
// through FitStatus instead.
var (
	ErrStripBounds        = errors.New("helicaltrack: strip bounds are not symmetric about the strip centre")
	ErrAxialBounds        = errors.New("helicaltrack: axial strip zmin exceeds zmax")
	ErrNotParallel        = errors.New("helicaltrack: stereo sensor planes are not parallel")
	ErrOppositeNormals    = errors.New("helicaltrack: stereo sensor normals point in opposite directions")
	ErrCollinearStrips    = errors.New("helicaltrack: stereo strips are collinear")
	ErrNaNDirection       = errors.New("helicaltrack: track direction has a NaN component")
	ErrTooFewStripHits    = errors.New("helicaltrack: too few strip hits for a z-segment fit")
	ErrUnsupported        = errors.New("helicaltrack: unsupported plane orientation")
	ErrNHChisqSet         = errors.New("helicaltrack: non-holonomic chi-square already set")
	ErrNotCross           = errors.New("helicaltrack: hit is not a stereo cross")
	ErrNotInPathMap       = errors.New("helicaltrack: hit has no path length in the fit")
	ErrCorrectionRejected = errors.New("helicaltrack: direction correction inflates the hit uncertainty")
	ErrInputLength        = errors.New("helicaltrack: input arrays differ in length")
)
