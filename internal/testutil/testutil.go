// Package testutil provides shared test helpers and geometry fixtures.
//
// The generators here build ideal points on circles and helices using the
// same sign conventions as the fitter (positive curvature bends clockwise
// seen from +z), without depending on the fitter itself.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertNear fails the test if got differs from want by more than tol.
func AssertNear(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %g, want %g ± %g", name, got, want, tol)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// HelixPoint returns the point at arc length s on the helix with the given
// parameters.
func HelixPoint(dca, phi0, curvature, z0, slope, s float64) r3.Vec {
	r := 1 / curvature
	xc := (r - dca) * math.Sin(phi0)
	yc := -(r - dca) * math.Cos(phi0)
	phi := phi0 - s/r
	return r3.Vec{
		X: xc - r*math.Sin(phi),
		Y: yc + r*math.Cos(phi),
		Z: z0 + s*slope,
	}
}

// HelixPoints samples HelixPoint at each arc length in s.
func HelixPoints(dca, phi0, curvature, z0, slope float64, s ...float64) []r3.Vec {
	out := make([]r3.Vec, len(s))
	for i, si := range s {
		out[i] = HelixPoint(dca, phi0, curvature, z0, slope, si)
	}
	return out
}

// CirclePoints returns points at the given azimuths on a circle of radius
// r about (xc, yc), at z = 0.
func CirclePoints(xc, yc, r float64, phi ...float64) []r3.Vec {
	out := make([]r3.Vec, len(phi))
	for i, p := range phi {
		out[i] = r3.Vec{X: xc + r*math.Cos(p), Y: yc + r*math.Sin(p)}
	}
	return out
}
