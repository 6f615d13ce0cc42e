package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical fit defaults file.
const DefaultConfigPath = "config/fit.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// FitConfig holds the tuning of hit preparation and helix fitting. Every
// field is optional; the Get* methods fall back to the built-in defaults so
// partial configs are safe.
type FitConfig struct {
	// Fitter params
	FitTolerance *float64 `json:"fit_tolerance,omitempty" yaml:"fit_tolerance,omitempty"`
	ReferenceX   *float64 `json:"reference_x,omitempty" yaml:"reference_x,omitempty"`
	ReferenceY   *float64 `json:"reference_y,omitempty" yaml:"reference_y,omitempty"`

	// Stereo params
	StereoTolerance *float64 `json:"stereo_tolerance,omitempty" yaml:"stereo_tolerance,omitempty"`
	MaxSeparation   *float64 `json:"max_separation,omitempty" yaml:"max_separation,omitempty"`
	EpsParallel     *float64 `json:"eps_parallel,omitempty" yaml:"eps_parallel,omitempty"`
	EpsStereoAngle  *float64 `json:"eps_stereo_angle,omitempty" yaml:"eps_stereo_angle,omitempty"`

	// Field and material
	BField       *float64 `json:"bfield,omitempty" yaml:"bfield,omitempty"` // tesla
	MaterialScan *bool    `json:"material_scan,omitempty" yaml:"material_scan,omitempty"`
	MaterialFile *string  `json:"material_file,omitempty" yaml:"material_file,omitempty"`

	// Batch params
	Workers *int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFitConfig returns a FitConfig with all fields set to nil.
func EmptyFitConfig() *FitConfig {
	return &FitConfig{}
}

// DefaultFitConfig returns a FitConfig with every field set to its default.
func DefaultFitConfig() *FitConfig {
	return &FitConfig{
		FitTolerance:    ptrFloat64(3),
		ReferenceX:      ptrFloat64(0),
		ReferenceY:      ptrFloat64(0),
		StereoTolerance: ptrFloat64(2),
		MaxSeparation:   ptrFloat64(10),
		EpsParallel:     ptrFloat64(1e-2),
		EpsStereoAngle:  ptrFloat64(1e-2),
		BField:          ptrFloat64(5),
		MaterialScan:    ptrBool(false),
		Workers:         ptrInt(4),
	}
}

// LoadFitConfig loads a FitConfig from a .json, .yaml or .yml file no
// larger than 1MB.
func LoadFitConfig(path string) (*FitConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFitConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *FitConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/fit/circle/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFitConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FitConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"fit_tolerance", c.FitTolerance},
		{"stereo_tolerance", c.StereoTolerance},
		{"max_separation", c.MaxSeparation},
		{"eps_parallel", c.EpsParallel},
		{"eps_stereo_angle", c.EpsStereoAngle},
	}
	for _, p := range positive {
		if p.v != nil && !(*p.v > 0) {
			return fmt.Errorf("%s must be positive, got %g", p.name, *p.v)
		}
	}
	if c.EpsStereoAngle != nil && *c.EpsStereoAngle >= 1 {
		return fmt.Errorf("eps_stereo_angle must be below 1, got %g", *c.EpsStereoAngle)
	}
	if c.BField != nil && *c.BField == 0 {
		return fmt.Errorf("bfield must be non-zero")
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.GetMaterialScan() && (c.MaterialFile == nil || *c.MaterialFile == "") {
		return fmt.Errorf("material_scan requires material_file")
	}
	return nil
}

// GetFitTolerance returns the fit_tolerance value or the default.
func (c *FitConfig) GetFitTolerance() float64 {
	if c.FitTolerance == nil {
		return 3
	}
	return *c.FitTolerance
}

// GetReferencePoint returns the bend-plane reference point, the origin by
// default.
func (c *FitConfig) GetReferencePoint() (x, y float64) {
	if c.ReferenceX != nil {
		x = *c.ReferenceX
	}
	if c.ReferenceY != nil {
		y = *c.ReferenceY
	}
	return x, y
}

// GetStereoTolerance returns the stereo_tolerance value or the default.
func (c *FitConfig) GetStereoTolerance() float64 {
	if c.StereoTolerance == nil {
		return 2
	}
	return *c.StereoTolerance
}

// GetMaxSeparation returns the max_separation value or the default.
func (c *FitConfig) GetMaxSeparation() float64 {
	if c.MaxSeparation == nil {
		return 10
	}
	return *c.MaxSeparation
}

// GetEpsParallel returns the eps_parallel value or the default.
func (c *FitConfig) GetEpsParallel() float64 {
	if c.EpsParallel == nil {
		return 1e-2
	}
	return *c.EpsParallel
}

// GetEpsStereoAngle returns the eps_stereo_angle value or the default.
func (c *FitConfig) GetEpsStereoAngle() float64 {
	if c.EpsStereoAngle == nil {
		return 1e-2
	}
	return *c.EpsStereoAngle
}

// GetBField returns the field in tesla or the default of 5.
func (c *FitConfig) GetBField() float64 {
	if c.BField == nil {
		return 5
	}
	return *c.BField
}

// GetMaterialScan reports whether scattering errors are estimated from the
// material file.
func (c *FitConfig) GetMaterialScan() bool {
	if c.MaterialScan == nil {
		return false
	}
	return *c.MaterialScan
}

// GetMaterialFile returns the material description path, or "".
func (c *FitConfig) GetMaterialFile() string {
	if c.MaterialFile == nil {
		return ""
	}
	return *c.MaterialFile
}

// GetWorkers returns the workers value or the default.
func (c *FitConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}
