// Package config provides experiment configuration loading and management
// for leemiv. It handles loading configuration from YAML files and provides
// default values.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"leemiv/pkg/energy"
	"leemiv/pkg/loader"
	"leemiv/pkg/smoothing"
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the experiment configuration loaded from YAML
type Config struct {
	// Experiment describes where the frames live and how to decode them
	Experiment struct {
		// Type is the experiment kind: LEEM curves come from single
		// pixels, LEED curves are summed over a box around each spot
		Type string `yaml:"type"`

		// DataFormat is "raw" for detector .dat files or "image" for
		// PNG, JPEG and TIFF frames
		DataFormat string `yaml:"dataFormat"`

		// Path is the directory holding the frame files
		Path string `yaml:"path"`

		// Ext is the frame file extension, e.g. ".dat" or ".tif"
		Ext string `yaml:"ext"`

		// Width and Height are the frame dimensions in pixels, required
		// for raw data
		Width  int `yaml:"width"`
		Height int `yaml:"height"`

		// Bits is the raw sample depth, 8 or 16
		Bits int `yaml:"bits"`

		// ByteOrder is L for little-endian or B for big-endian raw samples
		ByteOrder string `yaml:"byteOrder"`
	} `yaml:"experiment"`

	// Energy describes the electron energy of each frame in eV
	Energy struct {
		// Start, Stop and Step describe an inclusive sweep
		Start float64 `yaml:"start"`
		Stop  float64 `yaml:"stop"`
		Step  float64 `yaml:"step"`

		// Values lists the energies explicitly and overrides the sweep
		Values []float64 `yaml:"values,omitempty"`
	} `yaml:"energy"`

	// Smoothing parameters for the live preview
	Smoothing struct {
		// Algorithm is one of flat, hanning, hamming, blackman, bartlett or savgol
		Algorithm string `yaml:"algorithm"`

		// Window is the filter length in samples
		Window int `yaml:"window"`

		// Order is the Savitzky-Golay polynomial degree
		Order int `yaml:"order"`

		// Edge is one of truncate, shrink, mirror or clamp
		Edge string `yaml:"edge"`
	} `yaml:"smoothing"`

	// Interaction parameters for the explorer
	Interaction struct {
		// IntervalMs is the preview frame interval in milliseconds
		IntervalMs int `yaml:"intervalMs"`

		// PreviewCacheSize bounds the smoothed curve cache; negative disables it
		PreviewCacheSize int `yaml:"previewCacheSize"`

		// BoxRadius is the half-width in pixels of the LEED integration
		// box; ignored for LEEM
		BoxRadius int `yaml:"boxRadius"`
	} `yaml:"interaction"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many frames are decoded in parallel
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Experiment.Type = "LEEM"
	cfg.Experiment.DataFormat = "raw"
	cfg.Experiment.Path = "data"
	cfg.Experiment.Ext = ".dat"
	cfg.Experiment.Width = 600
	cfg.Experiment.Height = 592
	cfg.Experiment.Bits = 16
	cfg.Experiment.ByteOrder = "L"

	cfg.Energy.Start = 20.0
	cfg.Energy.Stop = 150.0
	cfg.Energy.Step = 0.5

	def := smoothing.DefaultConfig()
	cfg.Smoothing.Algorithm = "flat"
	cfg.Smoothing.Window = def.Window
	cfg.Smoothing.Order = def.Order
	cfg.Smoothing.Edge = def.Edge.String()

	cfg.Interaction.IntervalMs = 16
	cfg.Interaction.PreviewCacheSize = 4096
	cfg.Interaction.BoxRadius = 20

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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

	// A relative data path is relative to the config file
	if cfg.Experiment.Path != "" && !filepath.IsAbs(cfg.Experiment.Path) {
		cfg.Experiment.Path = filepath.Join(filepath.Dir(configPath), cfg.Experiment.Path)
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

// Validate reports the first unusable setting
func (c *Config) Validate() error {
	if !c.IsLEEM() && !c.IsLEED() {
		return fmt.Errorf("%w: unsupported experiment type %q (must be LEEM or LEED)", ErrInvalidConfig, c.Experiment.Type)
	}
	if c.IsLEED() && c.Interaction.BoxRadius < 0 {
		return fmt.Errorf("%w: interaction.boxRadius must not be negative, got %d", ErrInvalidConfig, c.Interaction.BoxRadius)
	}
	if _, err := c.LoaderParams(nil); err != nil {
		return err
	}
	if _, err := c.Axis(); err != nil {
		return fmt.Errorf("%w: energy: %w", ErrInvalidConfig, err)
	}
	if _, err := c.SmoothingConfig(); err != nil {
		return fmt.Errorf("%w: smoothing: %w", ErrInvalidConfig, err)
	}
	if c.Interaction.IntervalMs <= 0 {
		return fmt.Errorf("%w: interaction.intervalMs must be positive, got %d", ErrInvalidConfig, c.Interaction.IntervalMs)
	}
	if c.Processing.NumCores < 0 {
		return fmt.Errorf("%w: processing.numCores must not be negative, got %d", ErrInvalidConfig, c.Processing.NumCores)
	}
	return nil
}

// IsLEEM reports whether the experiment type is LEEM
func (c *Config) IsLEEM() bool { return strings.EqualFold(c.Experiment.Type, "LEEM") }

// IsLEED reports whether the experiment type is LEED
func (c *Config) IsLEED() bool { return strings.EqualFold(c.Experiment.Type, "LEED") }

// BoxRadius returns the integration box radius for extracted curves: the
// configured radius for LEED and 0, a single pixel, for LEEM
func (c *Config) BoxRadius() int {
	if c.IsLEED() {
		return c.Interaction.BoxRadius
	}
	return 0
}

// Axis returns the energy axis described by the energy section
func (c *Config) Axis() (energy.Axis, error) {
	if len(c.Energy.Values) > 0 {
		return energy.New(c.Energy.Values)
	}
	return energy.FromRange(c.Energy.Start, c.Energy.Stop, c.Energy.Step)
}

// SmoothingConfig returns the preview filter described by the smoothing section
func (c *Config) SmoothingConfig() (smoothing.Config, error) {
	alg, err := smoothing.ParseAlgorithm(c.Smoothing.Algorithm)
	if err != nil {
		return smoothing.Config{}, err
	}
	edge := smoothing.EdgeTruncate
	if c.Smoothing.Edge != "" {
		if edge, err = smoothing.ParseEdgePolicy(c.Smoothing.Edge); err != nil {
			return smoothing.Config{}, err
		}
	}

	sc := smoothing.Config{
		Algorithm: alg,
		Window:    c.Smoothing.Window,
		Order:     c.Smoothing.Order,
		Edge:      edge,
	}
	if err := sc.Validate(); err != nil {
		return smoothing.Config{}, err
	}
	return sc, nil
}

// Interval returns the preview frame interval
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Interaction.IntervalMs) * time.Millisecond
}

// LoaderParams converts the experiment and processing sections to loader
// parameters. The logger is attached only when output is verbose.
func (c *Config) LoaderParams(logger *log.Logger) (*loader.Params, error) {
	format, err := loader.ParseFormat(c.Experiment.DataFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: experiment.dataFormat: %w", ErrInvalidConfig, err)
	}
	if c.Experiment.Path == "" {
		return nil, fmt.Errorf("%w: experiment.path is empty", ErrInvalidConfig)
	}

	p := &loader.Params{
		Dir:      c.Experiment.Path,
		Format:   format,
		Ext:      c.Experiment.Ext,
		NumCores: c.Processing.NumCores,
	}
	if c.Output.Verbose {
		p.Logger = logger
	}

	if format == loader.Raw {
		if c.Experiment.Width <= 0 || c.Experiment.Height <= 0 {
			return nil, fmt.Errorf("%w: raw data needs experiment.width and experiment.height", ErrInvalidConfig)
		}
		if c.Experiment.Bits != 8 && c.Experiment.Bits != 16 {
			return nil, fmt.Errorf("%w: experiment.bits must be 8 or 16, got %d", ErrInvalidConfig, c.Experiment.Bits)
		}
		order, err := loader.ParseByteOrder(c.Experiment.ByteOrder)
		if err != nil {
			return nil, fmt.Errorf("%w: experiment.byteOrder: %w", ErrInvalidConfig, err)
		}
		p.Width, p.Height = c.Experiment.Width, c.Experiment.Height
		p.Bits = c.Experiment.Bits
		p.ByteOrder = order
	}
	return p, nil
}
