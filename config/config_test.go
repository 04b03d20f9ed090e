package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LMWeight != 1.0 {
		t.Errorf("LMWeight = %v, want 1.0", cfg.LMWeight)
	}
	if cfg.Decoder.Beam <= 0 {
		t.Errorf("Decoder.Beam = %v, want > 0", cfg.Decoder.Beam)
	}
	if cfg.Endpoint.Enabled != true {
		t.Errorf("Endpoint.Enabled = %v, want true", cfg.Endpoint.Enabled)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
acoustic_model_path: /tmp/am.bin
language_model_path: /tmp/lm.arpa
dictionary_path: /tmp/dict.txt
lm_weight: 2.5
decoder:
  beam: 20
  max_active: 500
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AcousticModelPath != "/tmp/am.bin" {
		t.Errorf("AcousticModelPath = %q, want /tmp/am.bin", cfg.AcousticModelPath)
	}
	if cfg.LMWeight != 2.5 {
		t.Errorf("LMWeight = %v, want 2.5", cfg.LMWeight)
	}
	if cfg.Decoder.Beam != 20 {
		t.Errorf("Decoder.Beam = %v, want 20", cfg.Decoder.Beam)
	}
	if cfg.Decoder.MaxActive != 500 {
		t.Errorf("Decoder.MaxActive = %d, want 500", cfg.Decoder.MaxActive)
	}
	// Fields not overridden by the YAML should keep Default's values.
	if cfg.Decoder.LatticeBeam != Default().Decoder.LatticeBeam {
		t.Errorf("Decoder.LatticeBeam = %v, want default %v", cfg.Decoder.LatticeBeam, Default().Decoder.LatticeBeam)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
acoustic_model_path: ~/models/am.bin
dictionary_path: /tmp/dict.txt
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := filepath.Join(home, "models/am.bin")
	if cfg.AcousticModelPath != want {
		t.Errorf("AcousticModelPath = %q, want %q", cfg.AcousticModelPath, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid with dict+am", func(c *Config) {
			c.AcousticModelPath = "am.bin"
			c.DictionaryPath = "dict.txt"
		}, false},
		{"missing acoustic model", func(c *Config) {
			c.DictionaryPath = "dict.txt"
		}, true},
		{"missing dictionary", func(c *Config) {
			c.AcousticModelPath = "am.bin"
		}, true},
		{"zero beam", func(c *Config) {
			c.AcousticModelPath, c.DictionaryPath = "am.bin", "dict.txt"
			c.Decoder.Beam = 0
		}, true},
		{"invalid log level", func(c *Config) {
			c.AcousticModelPath, c.DictionaryPath = "am.bin", "dict.txt"
			c.LogLevel = "invalid"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToDecoderConfigKeepsUnexposedDefaults(t *testing.T) {
	cfg := Default()
	dc := cfg.ToDecoderConfig()
	if dc.BeamDelta == 0 {
		t.Errorf("ToDecoderConfig() lost BeamDelta default, got 0")
	}
	if dc.HashRatio == 0 {
		t.Errorf("ToDecoderConfig() lost HashRatio default, got 0")
	}
}
