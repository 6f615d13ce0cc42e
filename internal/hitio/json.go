// Package hitio reads and writes the hit collections fed to the fitter.
//
// Hit sets are stored as JSON documents, one event per track candidate.
// Pixels and axial strips become hits directly; strips are kept separate
// so the caller can pair them into stereo crosses. Truth particles are
// referenced by ID from the hits and strips of the same event.
package hitio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/geom"
	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/truth"
)

// FormatVersion is written to every hit-set file.
const FormatVersion = 1

const maxFileSize = 64 * 1024 * 1024

// ErrUnknownParticle is returned when a hit refers to a truth ID the event
// does not define.
var ErrUnknownParticle = errors.New("hitio: unknown truth particle")

// Vec3 is an (x, y, z) triple.
type Vec3 [3]float64

func (v Vec3) r3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// VecOf converts an r3.Vec.
func VecOf(v r3.Vec) Vec3 { return Vec3{v.X, v.Y, v.Z} }

// Element names the layer a measurement was recorded on.
type Element struct {
	Detector string                    `json:"detector,omitempty"`
	Layer    int                       `json:"layer"`
	Flag     detector.BarrelEndcapFlag `json:"flag"`
}

func (e Element) info() helicaltrack.HitInfo {
	return helicaltrack.HitInfo{Detector: e.Detector, Layer: e.Layer, Flag: e.Flag}
}

// PixelRecord is a 3D point measurement. Cov is the packed lower triangle
// (xx, xy, yy, xz, yz, zz).
type PixelRecord struct {
	Element
	Pos   Vec3       `json:"pos"`
	Cov   [6]float64 `json:"cov"`
	Truth []int64    `json:"truth,omitempty"`
}

// AxialRecord is a barrel strip measuring the bend plane, bounded in z.
type AxialRecord struct {
	Element
	Pos   Vec3       `json:"pos"`
	Cov   [6]float64 `json:"cov"`
	ZMin  float64    `json:"zmin"`
	ZMax  float64    `json:"zmax"`
	Truth []int64    `json:"truth,omitempty"`
}

// StripRecord is a one-dimensional measurement on a planar sensor.
type StripRecord struct {
	Element
	Origin Vec3    `json:"origin"`
	U      Vec3    `json:"u"`
	V      Vec3    `json:"v"`
	UMeas  float64 `json:"umeas"`
	DU     float64 `json:"du"`
	VMin   float64 `json:"vmin"`
	VMax   float64 `json:"vmax"`
	Truth  []int64 `json:"truth,omitempty"`
}

// ParticleRecord is a generator particle hits may be attributed to.
type ParticleRecord struct {
	ID        int64   `json:"id"`
	PDG       int32   `json:"pdg"`
	GenStatus int32   `json:"gen_status"`
	Charge    float64 `json:"charge"`
	Momentum  Vec3    `json:"momentum"`
	Origin    Vec3    `json:"origin"`
}

// EventRecord is one track candidate.
type EventRecord struct {
	ID        string           `json:"id"`
	Pixels    []PixelRecord    `json:"pixels,omitempty"`
	Axials    []AxialRecord    `json:"axials,omitempty"`
	Strips    []StripRecord    `json:"strips,omitempty"`
	Particles []ParticleRecord `json:"particles,omitempty"`
}

// HitSetFile is the top-level document.
type HitSetFile struct {
	Version int           `json:"version"`
	Events  []EventRecord `json:"events"`
}

// Event is a decoded EventRecord.
type Event struct {
	ID        string
	Hits      []*helicaltrack.Hit
	Strips    []*helicaltrack.Strip
	Particles []*truth.Particle
}

// Decode builds hits, strips and particles from the record.
func (rec EventRecord) Decode() (*Event, error) {
	ev := &Event{ID: rec.ID}
	byID := make(map[int64]*truth.Particle, len(rec.Particles))
	for _, p := range rec.Particles {
		tp := &truth.Particle{
			ID:        p.ID,
			PDG:       p.PDG,
			GenStatus: p.GenStatus,
			Charge:    p.Charge,
			Momentum:  p.Momentum.r3(),
			Origin:    p.Origin.r3(),
		}
		byID[p.ID] = tp
		ev.Particles = append(ev.Particles, tp)
	}
	lookup := func(ids []int64, add func(*truth.Particle)) error {
		for _, id := range ids {
			p, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownParticle, id)
			}
			add(p)
		}
		return nil
	}

	for i, px := range rec.Pixels {
		cov := geom.Sym3(px.Cov[0], px.Cov[1], px.Cov[2], px.Cov[3], px.Cov[4], px.Cov[5])
		h := helicaltrack.NewPixelHit(px.Pos.r3(), cov, px.info())
		if err := lookup(px.Truth, h.AddTruth); err != nil {
			return nil, fmt.Errorf("event %s pixel %d: %w", rec.ID, i, err)
		}
		ev.Hits = append(ev.Hits, h)
	}
	for i, ax := range rec.Axials {
		cov := geom.Sym3(ax.Cov[0], ax.Cov[1], ax.Cov[2], ax.Cov[3], ax.Cov[4], ax.Cov[5])
		h, err := helicaltrack.NewAxialStripHit(ax.Pos.r3(), cov, ax.info(), ax.ZMin, ax.ZMax)
		if err != nil {
			return nil, fmt.Errorf("event %s axial %d: %w", rec.ID, i, err)
		}
		if err := lookup(ax.Truth, h.AddTruth); err != nil {
			return nil, fmt.Errorf("event %s axial %d: %w", rec.ID, i, err)
		}
		ev.Hits = append(ev.Hits, h)
	}
	for i, sr := range rec.Strips {
		s, err := helicaltrack.NewStrip(sr.Origin.r3(), sr.U.r3(), sr.V.r3(), sr.UMeas, sr.DU, sr.VMin, sr.VMax, sr.info())
		if err != nil {
			return nil, fmt.Errorf("event %s strip %d: %w", rec.ID, i, err)
		}
		if err := lookup(sr.Truth, s.AddTruth); err != nil {
			return nil, fmt.Errorf("event %s strip %d: %w", rec.ID, i, err)
		}
		ev.Strips = append(ev.Strips, s)
	}
	return ev, nil
}

// ReadHitSets decodes a hit-set document.
func ReadHitSets(r io.Reader) (*HitSetFile, error) {
	var f HitSetFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse hit sets: %w", err)
	}
	if f.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported hit-set version %d (want %d)", f.Version, FormatVersion)
	}
	return &f, nil
}

// LoadHitSets reads a hit-set document from a .json file.
func LoadHitSets(path string) (*HitSetFile, error) {
	cleanPath := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(cleanPath)); ext != ".json" {
		return nil, fmt.Errorf("hit-set file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat hit-set file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("hit-set file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHitSets(f)
}

// WriteHitSets encodes events as an indented hit-set document.
func WriteHitSets(w io.Writer, events []EventRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(HitSetFile{Version: FormatVersion, Events: events})
}

// PixelRecordOf captures a pixel or axial hit's corrected position and
// covariance as a pixel record.
func PixelRecordOf(h *helicaltrack.Hit) PixelRecord {
	var cov [6]float64
	copy(cov[:], geom.Packed(h.CorrectedCovariance()))
	return PixelRecord{
		Element: Element{Detector: h.Detector(), Layer: h.Layer(), Flag: h.BarrelEndcapFlag()},
		Pos:     VecOf(h.CorrectedPosition()),
		Cov:     cov,
	}
}
