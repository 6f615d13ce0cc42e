// Package geom holds the small amount of vector and matrix plumbing shared by
// the fitting packages. Vectors are gonum r3.Vec values and covariances are
// mat.SymDense matrices.
package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Slice returns v as a freshly allocated []float64{x, y, z}.
func Slice(v r3.Vec) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// VecDense returns v as a 3-element column vector.
func VecDense(v r3.Vec) *mat.VecDense {
	return mat.NewVecDense(3, Slice(v))
}

// HasNaN reports whether any component of v is NaN.
func HasNaN(v r3.Vec) bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z)
}

// Sym3 builds a 3x3 symmetric matrix from its lower triangle packed in
// row order (xx, xy, yy, xz, yz, zz).
func Sym3(c00, c01, c11, c02, c12, c22 float64) *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		c00, c01, c02,
		c01, c11, c12,
		c02, c12, c22,
	})
}

// SymFromPacked builds an n x n symmetric matrix from a lower-triangular
// row-packed slice of length n(n+1)/2.
func SymFromPacked(n int, packed []float64) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			s.SetSym(i, j, packed[k])
			k++
		}
	}
	return s
}

// Packed returns the lower triangle of s packed in row order.
func Packed(s mat.Symmetric) []float64 {
	n := s.SymmetricDim()
	out := make([]float64, 0, n*(n+1)/2)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out = append(out, s.At(i, j))
		}
	}
	return out
}

// Outer returns the symmetric outer product alpha·a·aᵀ.
func Outer(alpha float64, a r3.Vec) *mat.SymDense {
	s := mat.NewSymDense(3, nil)
	s.SymRankOne(s, alpha, VecDense(a))
	return s
}

// SymOuterPair returns alpha·(a·bᵀ + b·aᵀ), which is symmetric by construction.
func SymOuterPair(alpha float64, a, b r3.Vec) *mat.SymDense {
	s := mat.NewSymDense(3, nil)
	s.RankTwo(s, alpha, VecDense(a), VecDense(b))
	return s
}

// Sum adds the given symmetric matrices, which must share a dimension.
func Sum(terms ...mat.Symmetric) *mat.SymDense {
	if len(terms) == 0 {
		return nil
	}
	out := mat.NewSymDense(terms[0].SymmetricDim(), nil)
	for _, t := range terms {
		out.AddSym(out, t)
	}
	return out
}

// Sandwich returns a·s·aᵀ, symmetrised to remove rounding asymmetry.
func Sandwich(a mat.Matrix, s mat.Symmetric) *mat.SymDense {
	var tmp, full mat.Dense
	tmp.Mul(a, s)
	full.Mul(&tmp, a.T())
	n, _ := full.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out.SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
		}
	}
	return out
}

// RowTimes returns the row vector vᵀ·m for a 3-vector v and a 3 x n matrix m.
func RowTimes(v r3.Vec, m mat.Matrix) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(1, c, nil)
	out.Mul(mat.NewDense(1, 3, Slice(v)), m)
	return out
}

// Quadratic returns rᵀ·s·r for a 1 x n row vector r.
func Quadratic(r mat.Matrix, s mat.Symmetric) float64 {
	q := Sandwich(r, s)
	return q.At(0, 0)
}

// CloneSym returns a copy of s, or nil if s is nil.
func CloneSym(s mat.Symmetric) *mat.SymDense {
	if s == nil {
		return nil
	}
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.CopySym(s)
	return out
}
