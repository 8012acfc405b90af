package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete engine configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	// Safety is the default safety level for new plans: low, medium or high
	Safety string `json:"safety" mapstructure:"safety"`

	Facts         FactsConfig         `json:"facts" mapstructure:"facts"`
	Collaborators CollaboratorsConfig `json:"collaborators" mapstructure:"collaborators"`
	Execution     ExecutionConfig     `json:"execution" mapstructure:"execution"`
	Classifier    ClassifierConfig    `json:"classifier" mapstructure:"classifier"`
	Logging       LoggingConfig       `json:"logging" mapstructure:"logging"`
}

// CollaboratorsConfig names the external commands implementing the rewrite
// and verification contracts. Empty commands fall back to built-in stubs
// that permit planning but not execution.
type CollaboratorsConfig struct {
	Rewriter []string `json:"rewriter" mapstructure:"rewriter"`
	Verifier []string `json:"verifier" mapstructure:"verifier"`
}

// FactsConfig locates the parsing collaborator's component/edge report
type FactsConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ExecutionConfig tunes the orchestrator
type ExecutionConfig struct {
	MaxRetries      int `json:"maxRetries" mapstructure:"maxRetries"`
	CollabTimeoutMs int `json:"collabTimeoutMs" mapstructure:"collabTimeoutMs"`
	Workers         int `json:"workers" mapstructure:"workers"`
}

// ClassifierConfig tunes the risk classifier
type ClassifierConfig struct {
	CacheSize int `json:"cacheSize" mapstructure:"cacheSize"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Safety:   "medium",
		Facts: FactsConfig{
			Path: "facts.yaml",
		},
		Execution: ExecutionConfig{
			MaxRetries:      2,
			CollabTimeoutMs: 60000,
			Workers:         4,
		},
		Classifier: ClassifierConfig{
			CacheSize: 4096,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .remig/config.json, falling back to
// defaults when no config file exists
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".remig"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to .remig/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".remig")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Safety {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid safety level %q (want low, medium or high)", c.Safety)
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.maxRetries must not be negative")
	}
	if c.Execution.CollabTimeoutMs <= 0 {
		return fmt.Errorf("execution.collabTimeoutMs must be positive")
	}
	if c.Execution.Workers < 0 {
		return fmt.Errorf("execution.workers must not be negative")
	}
	switch c.Logging.Format {
	case "json", "human":
	default:
		return fmt.Errorf("invalid logging format %q (want json or human)", c.Logging.Format)
	}
	return nil
}
