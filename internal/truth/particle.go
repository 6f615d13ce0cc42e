// Package truth carries simulated-particle references through hit
// construction and computes the ideal helix a particle would follow.
package truth

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Particle is a generator-level particle that hits may be attributed to.
// Hits hold *Particle values and compare them by identity.
type Particle struct {
	ID        int64
	PDG       int32
	GenStatus int32
	Charge    float64
	Momentum  r3.Vec
	Origin    r3.Vec
}

// PT returns the transverse momentum.
func (p *Particle) PT() float64 {
	return math.Hypot(p.Momentum.X, p.Momentum.Y)
}

func (p *Particle) String() string {
	return fmt.Sprintf("Particle{id=%d pdg=%d q=%g p=(%g, %g, %g)}",
		p.ID, p.PDG, p.Charge, p.Momentum.X, p.Momentum.Y, p.Momentum.Z)
}

// Intersect returns the particles present in both lists, in the order they
// appear in a.
func Intersect(a, b []*Particle) []*Particle {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	in := make(map[*Particle]struct{}, len(b))
	for _, p := range b {
		in[p] = struct{}{}
	}
	var out []*Particle
	for _, p := range a {
		if _, ok := in[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AppendUnique appends p to list unless it is already present.
func AppendUnique(list []*Particle, p *Particle) []*Particle {
	for _, q := range list {
		if q == p {
			return list
		}
	}
	return append(list, p)
}
