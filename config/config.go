// Package config loads the YAML configuration for a recognizer process:
// model file paths plus the decoder core, endpoint and feature-extraction
// tuning, in one file instead of a long flag list.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ieee0824/lattice-decoder/decoder"
	"github.com/ieee0824/lattice-decoder/endpointer"
	"github.com/ieee0824/lattice-decoder/feature"
)

// Config holds everything needed to build a transcript.Recognizer.
type Config struct {
	AcousticModelPath string `yaml:"acoustic_model_path"`
	LanguageModelPath string `yaml:"language_model_path"`
	DictionaryPath    string `yaml:"dictionary_path"`
	DNNPath           string `yaml:"dnn_path"`

	LMWeight   float64 `yaml:"lm_weight"`
	OOVLogProb float64 `yaml:"oov_log_prob"`
	UseVTLN    bool    `yaml:"use_vtln"`

	Feature  FeatureConfig  `yaml:"feature"`
	Decoder  DecoderConfig  `yaml:"decoder"`
	Endpoint EndpointConfig `yaml:"endpoint"`

	LogLevel string `yaml:"log_level"`
}

// FeatureConfig mirrors the MFCC extraction parameters a caller most often
// wants to override; anything left zero keeps feature.DefaultConfig's value
// (applied in Default, not by yaml zero-value fallback).
type FeatureConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	NumCepstra    int     `yaml:"num_cepstra"`
	UseDelta      bool    `yaml:"use_delta"`
	UseDeltaDelta bool    `yaml:"use_delta_delta"`
	UseCMN        bool    `yaml:"use_cmn"`
	Alpha         float64 `yaml:"alpha"`
}

// DecoderConfig mirrors decoder.Config's tuning knobs.
type DecoderConfig struct {
	Beam          float64 `yaml:"beam"`
	MaxActive     int     `yaml:"max_active"`
	MinActive     int     `yaml:"min_active"`
	LatticeBeam   float64 `yaml:"lattice_beam"`
	PruneInterval int     `yaml:"prune_interval"`
}

// EndpointConfig mirrors endpointer.Config's tuning knobs.
type EndpointConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	Rule1MinTrailingSilence float64 `yaml:"rule1_min_trailing_silence_sec"`
	Rule2MinTrailingSilence float64 `yaml:"rule2_min_trailing_silence_sec"`
	Rule3MinUtteranceLength float64 `yaml:"rule3_min_utterance_length_frames"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "lattice-decoder")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values, taken from
// decoder.DefaultConfig, endpointer.DefaultConfig and
// feature.DefaultConfig.
func Default() *Config {
	dc := decoder.DefaultConfig()
	ec := endpointer.DefaultConfig()
	fc := feature.DefaultConfig()
	return &Config{
		LMWeight: 1.0,
		Feature: FeatureConfig{
			SampleRate:    fc.SampleRate,
			NumCepstra:    fc.NumCepstra,
			UseDelta:      fc.UseDelta,
			UseDeltaDelta: fc.UseDeltaDelta,
			UseCMN:        fc.UseCMN,
			Alpha:         fc.Alpha,
		},
		Decoder: DecoderConfig{
			Beam:          dc.Beam,
			MaxActive:     dc.MaxActive,
			MinActive:     dc.MinActive,
			LatticeBeam:   dc.LatticeBeam,
			PruneInterval: dc.PruneInterval,
		},
		Endpoint: EndpointConfig{
			Enabled:                 ec.Enabled,
			Rule1MinTrailingSilence: ec.Rule1MinTrailingSilence,
			Rule2MinTrailingSilence: ec.Rule2MinTrailingSilence,
			Rule3MinUtteranceLength: ec.Rule3MinUtteranceLength,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file over Default's values. Tilde
// (~) in any path field is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.AcousticModelPath = expandTilde(cfg.AcousticModelPath)
	cfg.LanguageModelPath = expandTilde(cfg.LanguageModelPath)
	cfg.DictionaryPath = expandTilde(cfg.DictionaryPath)
	cfg.DNNPath = expandTilde(cfg.DNNPath)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.AcousticModelPath == "" {
		return fmt.Errorf("acoustic_model_path must not be empty")
	}
	if c.DictionaryPath == "" {
		return fmt.Errorf("dictionary_path must not be empty")
	}
	if c.Decoder.Beam <= 0 {
		return fmt.Errorf("decoder.beam must be > 0")
	}
	if c.Decoder.LatticeBeam <= 0 {
		return fmt.Errorf("decoder.lattice_beam must be > 0")
	}
	if c.Decoder.MaxActive <= 0 {
		return fmt.Errorf("decoder.max_active must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}

// ToDecoderConfig builds a decoder.Config from c, keeping every field
// decoder.DefaultConfig sets that the YAML schema doesn't expose.
func (c *Config) ToDecoderConfig() decoder.Config {
	cfg := decoder.DefaultConfig()
	cfg.Beam = c.Decoder.Beam
	cfg.MaxActive = c.Decoder.MaxActive
	cfg.MinActive = c.Decoder.MinActive
	cfg.LatticeBeam = c.Decoder.LatticeBeam
	cfg.PruneInterval = c.Decoder.PruneInterval
	return cfg
}

// ToEndpointConfig builds an endpointer.Config from c.
func (c *Config) ToEndpointConfig() endpointer.Config {
	cfg := endpointer.DefaultConfig()
	cfg.Enabled = c.Endpoint.Enabled
	cfg.Rule1MinTrailingSilence = c.Endpoint.Rule1MinTrailingSilence
	cfg.Rule2MinTrailingSilence = c.Endpoint.Rule2MinTrailingSilence
	cfg.Rule3MinUtteranceLength = c.Endpoint.Rule3MinUtteranceLength
	return cfg
}

// ToFeatureConfig builds a feature.Config from c, keeping every field
// feature.DefaultConfig sets that the YAML schema doesn't expose.
func (c *Config) ToFeatureConfig() feature.Config {
	cfg := feature.DefaultConfig()
	cfg.SampleRate = c.Feature.SampleRate
	cfg.NumCepstra = c.Feature.NumCepstra
	cfg.UseDelta = c.Feature.UseDelta
	cfg.UseDeltaDelta = c.Feature.UseDeltaDelta
	cfg.UseCMN = c.Feature.UseCMN
	cfg.Alpha = c.Feature.Alpha
	return cfg
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
