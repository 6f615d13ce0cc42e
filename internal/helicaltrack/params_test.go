package helicaltrack

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParamsIndexOrder(t *testing.T) {
	t.Parallel()
	p := Params{DCA: 1, Phi0: 2, Curvature: 3, Z0: 4, Slope: 5}
	assert.Equal(t, [NParams]float64{1, 2, 3, 4, 5}, p.Vector())
	for i := 0; i < NParams; i++ {
		assert.Equal(t, float64(i+1), p.At(i))
	}
	if diff := cmp.Diff(p, ParamsFromVector(p.Vector())); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParamsAtPanicsOutOfRange(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { Params{}.At(NParams) })
	assert.Panics(t, func() { Params{}.At(-1) })
}
