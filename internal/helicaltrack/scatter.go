package helicaltrack

// MultipleScatter holds the position uncertainty a hit picks up from
// multiple scattering upstream of it, in the bend plane and along z.
type MultipleScatter struct {
	DRPhi float64
	DZ    float64
}

// ScatterMap associates hits with their multiple-scattering errors. Hits
// missing from the map are treated as unscattered.
type ScatterMap map[*Hit]MultipleScatter

// PathMap associates hits with their signed arc length from the point of
// closest approach.
type PathMap map[*Hit]float64
