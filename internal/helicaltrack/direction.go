package helicaltrack

import (
	"fmt"

	"github.com/banshee-data/helicaltrack/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// TrackDirection is a unit track direction together with its 3x5
// derivative with respect to the helix parameters. Rows are the cartesian
// components; columns follow the parameter indices.
type TrackDirection struct {
	dir   r3.Vec
	deriv *mat.Dense
}

// NewTrackDirection validates dir and pairs it with its derivatives.
func NewTrackDirection(dir r3.Vec, deriv mat.Matrix) (TrackDirection, error) {
	if geom.HasNaN(dir) {
		return TrackDirection{}, fmt.Errorf("%w: %v", ErrNaNDirection, dir)
	}
	r, c := deriv.Dims()
	if r != 3 || c != NParams {
		return TrackDirection{}, fmt.Errorf("helicaltrack: direction derivative is %dx%d, want 3x%d", r, c, NParams)
	}
	return TrackDirection{dir: dir, deriv: mat.DenseCopyOf(deriv)}, nil
}

// Direction returns the unit direction.
func (t TrackDirection) Direction() r3.Vec { return t.dir }

// Derivatives returns the derivative matrix. It must not be modified.
func (t TrackDirection) Derivatives() mat.Matrix { return t.deriv }
