package scattering

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cylinder is a barrel layer of material centred on the z axis.
type Cylinder struct {
	Radius     float64 `json:"radius"`
	ZMin       float64 `json:"zmin"`
	ZMax       float64 `json:"zmax"`
	RadLengths float64 `json:"radiation_lengths"`
}

// Disk is an endcap layer of material perpendicular to the z axis.
type Disk struct {
	Z          float64 `json:"z"`
	RMin       float64 `json:"rmin"`
	RMax       float64 `json:"rmax"`
	RadLengths float64 `json:"radiation_lengths"`
}

// XPlane is a rectangular plane of material at fixed x.
type XPlane struct {
	X          float64 `json:"x"`
	YMin       float64 `json:"ymin"`
	YMax       float64 `json:"ymax"`
	ZMin       float64 `json:"zmin"`
	ZMax       float64 `json:"zmax"`
	RadLengths float64 `json:"radiation_lengths"`
}

// Material describes the scattering material of a tracker. RMax and ZMax
// bound the tracking volume; nothing beyond them is considered.
type Material struct {
	Cylinders []Cylinder `json:"cylinders,omitempty"`
	Disks     []Disk     `json:"disks,omitempty"`
	XPlanes   []XPlane   `json:"xplanes,omitempty"`
	RMax      float64    `json:"rmax"`
	ZMax      float64    `json:"zmax"`
}

// Validate checks that every layer has a sensible extent and thickness.
func (m *Material) Validate() error {
	if m.RMax <= 0 || m.ZMax <= 0 {
		return fmt.Errorf("tracking volume must be positive, got rmax=%g zmax=%g", m.RMax, m.ZMax)
	}
	for i, c := range m.Cylinders {
		if c.Radius <= 0 || c.ZMin >= c.ZMax || c.RadLengths < 0 {
			return fmt.Errorf("cylinder %d: invalid geometry %+v", i, c)
		}
	}
	for i, d := range m.Disks {
		if d.RMin < 0 || d.RMin >= d.RMax || d.RadLengths < 0 {
			return fmt.Errorf("disk %d: invalid geometry %+v", i, d)
		}
	}
	for i, p := range m.XPlanes {
		if p.YMin >= p.YMax || p.ZMin >= p.ZMax || p.RadLengths < 0 {
			return fmt.Errorf("xplane %d: invalid geometry %+v", i, p)
		}
	}
	return nil
}

// LoadMaterial reads a material description from a JSON file.
func LoadMaterial(path string) (*Material, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("material file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read material file: %w", err)
	}
	var m Material
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse material JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid material: %w", err)
	}
	return &m, nil
}
