package headless

import (
	"fmt"
	"time"
)

// Config represents the configuration for a headless run
type Config struct {
	// Job is the name used in logs and artifacts; defaults to the root container name
	Job string `yaml:"job" json:"job"`

	// Timeout stops the run if the task has not completed; zero means no limit
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// WaitForChildren keeps the run going after the root completes until
	// every child container has completed or failed
	WaitForChildren bool `yaml:"wait_for_children" json:"wait_for_children"`

	// Artifacts configuration
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Individual format flags
	JSON     bool `yaml:"json" json:"json"`
	Markdown bool `yaml:"markdown" json:"markdown"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts require an output directory")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Timeout: 5 * time.Minute,
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: ".harvest/artifacts",
			JSON:      true,
			Markdown:  true,
		},
		Logging: LoggingConfig{Verbosity: "normal"},
	}
}
