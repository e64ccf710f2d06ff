package container

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default values for container configuration
const (
	DefaultRefreshInterval   = 5 * time.Second
	DefaultDebounce          = 500 * time.Millisecond
	DefaultMaxRefreshRetries = 3
	DefaultChildConcurrency  = 4
	DefaultAffordanceBudget  = 3
)

// Config describes one container: its identity, how it refreshes and when
// its task is done.
type Config struct {
	// ID is a stable identifier; generated when empty
	ID string `yaml:"id" json:"id"`

	// Name is a human-readable label
	Name string `yaml:"name" json:"name"`

	// Locator is opaque to the container and interpreted by the driver
	Locator string `yaml:"locator" json:"locator"`

	RefreshInterval        time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	Debounce               time.Duration `yaml:"debounce" json:"debounce"`
	EnableAutoRefresh      bool          `yaml:"enable_auto_refresh" json:"enable_auto_refresh"`
	EnableMutationObserver bool          `yaml:"enable_mutation_observer" json:"enable_mutation_observer"`

	// MaxRefreshRetries bounds retries inside a refresher (see Retry)
	MaxRefreshRetries int `yaml:"max_refresh_retries" json:"max_refresh_retries"`

	// RefreshTimeout bounds a single pass; zero means no limit
	RefreshTimeout time.Duration `yaml:"refresh_timeout" json:"refresh_timeout"`

	// ChildTypes are the type tags passed to Driver.DiscoverChildren
	ChildTypes []string `yaml:"child_types" json:"child_types"`

	// ChildConcurrency bounds concurrent child initialization
	ChildConcurrency int `yaml:"child_concurrency" json:"child_concurrency"`

	// DiscoverAffordances probes the region for actionable controls after each pass
	DiscoverAffordances bool `yaml:"discover_affordances" json:"discover_affordances"`

	// AffordanceBudget is the MaxAttempts given to discovered operations
	AffordanceBudget int `yaml:"affordance_budget" json:"affordance_budget"`

	// HistorySize is the capacity of the consumed-trigger ring
	HistorySize int `yaml:"history_size" json:"history_size"`

	// Task is the optional completion criterion
	Task *TaskCriterion `yaml:"task" json:"task"`
}

// DefaultConfig returns a configuration with auto refresh and mutation
// observation enabled.
func DefaultConfig(name, locator string) Config {
	return Config{
		Name:                   name,
		Locator:                locator,
		RefreshInterval:        DefaultRefreshInterval,
		Debounce:               DefaultDebounce,
		EnableAutoRefresh:      true,
		EnableMutationObserver: true,
		MaxRefreshRetries:      DefaultMaxRefreshRetries,
		ChildConcurrency:       DefaultChildConcurrency,
		AffordanceBudget:       DefaultAffordanceBudget,
		HistorySize:            DefaultHistorySize,
	}
}

// withDefaults fills zero values that have a sensible default.
func (c Config) withDefaults() Config {
	if c.ID == "" {
		name := c.Name
		if name == "" {
			name = "container"
		}
		c.ID = fmt.Sprintf("%s-%s", name, uuid.New().String()[:8])
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.ChildConcurrency <= 0 {
		c.ChildConcurrency = DefaultChildConcurrency
	}
	if c.AffordanceBudget <= 0 {
		c.AffordanceBudget = DefaultAffordanceBudget
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// Validate checks the configuration and returns a ConfigurationError on the
// first problem found.
func (c Config) Validate() error {
	if c.Locator == "" {
		return configErrorf("locator", "must not be empty")
	}
	if c.EnableAutoRefresh && c.RefreshInterval <= 0 {
		return configErrorf("refresh_interval", "must be positive when auto refresh is enabled, got %v", c.RefreshInterval)
	}
	if c.Debounce < 0 {
		return configErrorf("debounce", "must not be negative, got %v", c.Debounce)
	}
	if c.MaxRefreshRetries < 0 {
		return configErrorf("max_refresh_retries", "must not be negative, got %d", c.MaxRefreshRetries)
	}
	if c.RefreshTimeout < 0 {
		return configErrorf("refresh_timeout", "must not be negative, got %v", c.RefreshTimeout)
	}
	for _, tag := range c.ChildTypes {
		if tag == "" {
			return configErrorf("child_types", "type tags must not be empty")
		}
	}
	if c.Task != nil {
		if err := c.Task.Validate(); err != nil {
			return err
		}
	}
	return nil
}
