// Package config provides configuration loading and management for brainextract.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Volume metadata that the .npy input does not carry
	Volume struct {
		// Resolution is the voxel size along x, y and z in mm
		Resolution []float64 `yaml:"resolution"`

		// Origin is the physical position of voxel (0,0,0) in mm
		Origin []float64 `yaml:"origin"`

		// Orientation is one of axial, coronal, sagittal or unknown
		Orientation string `yaml:"orientation"`
	} `yaml:"volume"`

	// Extraction parameters
	Extraction struct {
		// JustEllipse stops after the initial ellipsoid, skipping evolution
		JustEllipse bool `yaml:"justEllipse"`

		// Iterations is the number of second phase evolution steps
		Iterations int `yaml:"iterations"`

		// Depth is the number of samples along the inward normal
		Depth int `yaml:"depth"`

		// ImageInfluence scales the image-driven term of the second phase
		ImageInfluence float64 `yaml:"imageInfluence"`

		// Stiffness scales the curvature-driven term of the second phase
		Stiffness float64 `yaml:"stiffness"`

		// BrainSelection is subtracted from the normalized intensity ratio
		BrainSelection float64 `yaml:"brainSelection"`

		// SecondStageErosion erodes bright rims and re-fits the surface
		SecondStageErosion bool `yaml:"secondStageErosion"`

		// AboveMedian scales the median intensity into the erosion threshold
		AboveMedian float64 `yaml:"aboveMedian"`

		// UseSphere skips the ellipsoid fit
		UseSphere bool `yaml:"useSphere"`

		// CenterPoint optionally fixes the sphere center in voxel coordinates
		CenterPoint []float64 `yaml:"centerPoint,omitempty"`

		// Subdivision is the number of octahedron subdivisions
		Subdivision int `yaml:"subdivision"`

		// ReductionFactors shrink the fitted ellipsoid axes
		ReductionFactors []float64 `yaml:"reductionFactors"`

		// Dilation is the surface dilation radius in voxels (0 disables)
		Dilation int `yaml:"dilation"`

		// ExtractToMask leaves the image untouched and only produces a mask
		ExtractToMask bool `yaml:"extractToMask"`
	} `yaml:"extraction"`

	// Output parameters
	Output struct {
		// MaskFile receives the mask as a uint8 .npy array
		MaskFile string `yaml:"maskFile"`

		// SnapshotFile receives a zstd-compressed mask snapshot
		SnapshotFile string `yaml:"snapshotFile"`

		// VolumeFile receives the masked volume as a float64 .npy array
		VolumeFile string `yaml:"volumeFile"`

		// MeshFile receives the final surface as binary STL
		MeshFile string `yaml:"meshFile"`

		// SlicesDir receives mask overlay slices when non-empty
		SlicesDir string `yaml:"slicesDir"`

		// IntermediaryDir receives a mask snapshot of every stage when non-empty
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose enables the progress bar
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of panic, fatal, error, warn, info, debug
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Volume.Resolution = []float64{1, 1, 1}
	cfg.Volume.Origin = []float64{0, 0, 0}
	cfg.Volume.Orientation = "axial"

	cfg.Extraction.Iterations = 1500
	cfg.Extraction.Depth = 7
	cfg.Extraction.ImageInfluence = 0.08
	cfg.Extraction.Stiffness = 0.15
	cfg.Extraction.BrainSelection = 0.5
	cfg.Extraction.AboveMedian = 1.5
	cfg.Extraction.Subdivision = 5
	cfg.Extraction.ReductionFactors = []float64{0.6, 0.4, 0.6}

	cfg.Output.MaskFile = "mask.npy"
	cfg.Output.Verbose = true

	cfg.Logging.Level = "info"

	return cfg
}

// Validate checks the configuration for values the extractor cannot use
func (cfg *Config) Validate() error {
	if len(cfg.Volume.Resolution) != 3 {
		return fmt.Errorf("volume.resolution must have 3 values, got %d", len(cfg.Volume.Resolution))
	}
	for i, r := range cfg.Volume.Resolution {
		if !(r > 0) {
			return fmt.Errorf("volume.resolution[%d] must be positive, got %g", i, r)
		}
	}
	if len(cfg.Volume.Origin) != 0 && len(cfg.Volume.Origin) != 3 {
		return fmt.Errorf("volume.origin must have 3 values, got %d", len(cfg.Volume.Origin))
	}
	if cfg.Extraction.Iterations < 0 {
		return fmt.Errorf("extraction.iterations must not be negative")
	}
	if cfg.Extraction.Depth < 1 {
		return fmt.Errorf("extraction.depth must be at least 1")
	}
	if cfg.Extraction.Subdivision < 1 {
		return fmt.Errorf("extraction.subdivision must be at least 1")
	}
	if len(cfg.Extraction.ReductionFactors) != 3 {
		return fmt.Errorf("extraction.reductionFactors must have 3 values")
	}
	if len(cfg.Extraction.CenterPoint) != 0 && len(cfg.Extraction.CenterPoint) != 3 {
		return fmt.Errorf("extraction.centerPoint must have 3 values")
	}
	if cfg.Extraction.Dilation < 0 {
		return fmt.Errorf("extraction.dilation must not be negative")
	}
	if !ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of %s", cfg.Logging.Level, strings.Join(availableLevels, ", "))
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
