package hitio

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/lcio"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/geom"
	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
)

// DefaultPixelResolution is used for tracker hits stored without a
// covariance, in mm for both rφ and z.
const DefaultPixelResolution = 5e-3

// maxTruthAngle is the largest opening angle between a track and a
// particle for the particle to be taken as the track's truth.
const maxTruthAngle = 0.01

// LCIOOptions selects what ReadLCIO pulls out of a file.
type LCIOOptions struct {
	// Tracks names the track collection whose hits are refit.
	Tracks string
	// Particles names the MC particle collection, or "" for none.
	Particles string
	// Resolver maps cell IDs to detector elements. It may be nil.
	Resolver detector.Resolver
}

// LCIOTrack is one reconstructed track from an LCIO file.
type LCIOTrack struct {
	Event  int32
	Record EventRecord
	// Reference is the track state stored in the file.
	Reference helicaltrack.Params
	// Truth is the closest generator particle in direction, if any.
	Truth *ParticleRecord
}

// ReadLCIO reads every track of opts.Tracks from the file at path, turning
// its tracker hits into pixel records.
func ReadLCIO(path string, opts LCIOOptions) ([]LCIOTrack, error) {
	r, err := lcio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lcio file: %w", err)
	}
	defer r.Close()

	var out []LCIOTrack
	for r.Next() {
		evt := r.Event()
		if !evt.Has(opts.Tracks) {
			continue
		}
		tracks, ok := evt.Get(opts.Tracks).(*lcio.TrackContainer)
		if !ok {
			return nil, fmt.Errorf("collection %q is not a track collection", opts.Tracks)
		}

		var particles []ParticleRecord
		if opts.Particles != "" && evt.Has(opts.Particles) {
			mcps, ok := evt.Get(opts.Particles).(*lcio.McParticleContainer)
			if !ok {
				return nil, fmt.Errorf("collection %q is not an MC particle collection", opts.Particles)
			}
			particles = chargedFinalState(mcps)
		}

		for i := range tracks.Tracks {
			trk := &tracks.Tracks[i]
			t := LCIOTrack{
				Event: evt.EventNumber,
				Reference: helicaltrack.Params{
					DCA:       trk.D0(),
					Phi0:      trk.Phi(),
					Curvature: trk.Omega(),
					Z0:        trk.Z0(),
					Slope:     trk.TanL(),
				},
			}
			t.Record.ID = fmt.Sprintf("%d/%d", evt.EventNumber, i)
			for _, h := range trk.Hits {
				t.Record.Pixels = append(t.Record.Pixels, pixelFromLCIO(h, opts.Resolver))
			}
			if p := matchTruth(t.Reference, particles); p != nil {
				t.Truth = p
				t.Record.Particles = []ParticleRecord{*p}
			}
			out = append(out, t)
		}
	}
	if err := r.Err(); err != nil {
		return out, fmt.Errorf("failed reading lcio file: %w", err)
	}
	return out, nil
}

func pixelFromLCIO(h *lcio.TrackerHit, res detector.Resolver) PixelRecord {
	rec := PixelRecord{
		Pos: Vec3{float64(h.Pos[0]), float64(h.Pos[1]), float64(h.Pos[2])},
	}
	zero := true
	for i := range rec.Cov {
		rec.Cov[i] = float64(h.Cov[i])
		if rec.Cov[i] != 0 {
			zero = false
		}
	}
	if zero {
		cov := helicaltrack.PixelCovariance(rec.Pos[0], rec.Pos[1], DefaultPixelResolution, DefaultPixelResolution*DefaultPixelResolution)
		copy(rec.Cov[:], geom.Packed(cov))
	}
	if res != nil {
		if el, err := res.Resolve(detector.CellID(h.CellID0, h.CellID1)); err == nil {
			rec.Element = Element{Detector: el.Detector, Layer: el.Layer, Flag: el.Flag}
		}
	}
	return rec
}

func chargedFinalState(mcps *lcio.McParticleContainer) []ParticleRecord {
	var out []ParticleRecord
	for i := range mcps.Particles {
		p := &mcps.Particles[i]
		if p.GenStatus != 1 || p.Charge == 0 {
			continue
		}
		out = append(out, ParticleRecord{
			ID:        int64(i),
			PDG:       p.PDG,
			GenStatus: p.GenStatus,
			Charge:    float64(p.Charge),
			Momentum:  Vec3{p.P[0], p.P[1], p.P[2]},
			Origin:    Vec3{p.Vertex[0], p.Vertex[1], p.Vertex[2]},
		})
	}
	return out
}

// matchTruth returns the particle whose momentum direction is closest to
// the track direction at the point of closest approach.
func matchTruth(ref helicaltrack.Params, particles []ParticleRecord) *ParticleRecord {
	lambda := math.Atan(ref.Slope)
	dir := [3]float64{
		math.Cos(ref.Phi0) * math.Cos(lambda),
		math.Sin(ref.Phi0) * math.Cos(lambda),
		math.Sin(lambda),
	}
	best, bestAngle := -1, maxTruthAngle
	for i, p := range particles {
		n := math.Sqrt(p.Momentum[0]*p.Momentum[0] + p.Momentum[1]*p.Momentum[1] + p.Momentum[2]*p.Momentum[2])
		if n == 0 {
			continue
		}
		cos := (dir[0]*p.Momentum[0] + dir[1]*p.Momentum[1] + dir[2]*p.Momentum[2]) / n
		angle := math.Acos(math.Min(1, math.Max(-1, cos)))
		if angle < bestAngle {
			best, bestAngle = i, angle
		}
	}
	if best < 0 {
		return nil
	}
	p := particles[best]
	return &p
}
