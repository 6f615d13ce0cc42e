// Package helicaltrack fits a five-parameter helix to hits in a layered
// tracking detector immersed in a solenoidal field.
//
// A fit is split into a circle fit in the bend (x-y) plane and a fit of z
// against arc length s. Pixels and stereo crosses constrain z directly and
// are line-fitted; axial strips only bound z and are combined with a
// z-segment fit when fewer than two pixel-like hits are present.
//
// Helix parameters follow the L3 convention: DCA is positive when the
// origin lies to the left of the direction of travel, curvature is
// positive for clockwise motion seen from +z, and slope is dz/ds.
//
// Stereo crosses are the only hits whose position depends on the track.
// Their corrected position is held as an immutable Correction snapshot that
// is replaced, never modified, when a new helix direction is applied. A
// cross is not safe for concurrent correction; callers fitting in parallel
// must not share crosses between goroutines.
package helicaltrack
