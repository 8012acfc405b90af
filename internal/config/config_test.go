package config

import (
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Safety != "medium" || cfg.Execution.MaxRetries != 2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestSaveAndReload(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Safety = "high"
	cfg.Execution.Workers = 8
	cfg.Facts.Path = "graph/facts.yaml"
	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Safety != "high" {
		t.Errorf("safety = %q", loaded.Safety)
	}
	if loaded.Execution.Workers != 8 {
		t.Errorf("workers = %d", loaded.Execution.Workers)
	}
	if loaded.Facts.Path != "graph/facts.yaml" {
		t.Errorf("facts path = %q", loaded.Facts.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad safety", func(c *Config) { c.Safety = "paranoid" }},
		{"negative retries", func(c *Config) { c.Execution.MaxRetries = -1 }},
		{"zero timeout", func(c *Config) { c.Execution.CollabTimeoutMs = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
