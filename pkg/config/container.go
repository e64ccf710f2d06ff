package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/harvest/pkg/container"
)

// SectionIDContainer is the identifier for the container defaults section
const SectionIDContainer = "container"

// ContainerSection holds the defaults every container is created with.
// Job files override them per container.
type ContainerSection struct {
	RefreshInterval        time.Duration
	Debounce               time.Duration
	RefreshTimeout         time.Duration
	MaxRefreshRetries      int
	HistorySize            int
	ChildConcurrency       int
	AffordanceBudget       int
	EnableAutoRefresh      bool
	EnableMutationObserver bool
	DiscoverAffordances    bool
	mu                     sync.RWMutex
}

// NewContainerSection creates a section with the container package defaults.
func NewContainerSection() *ContainerSection {
	s := &ContainerSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *ContainerSection) ID() string {
	return SectionIDContainer
}

// Title returns the section title.
func (s *ContainerSection) Title() string {
	return "Container Defaults"
}

// Description returns the section description.
func (s *ContainerSection) Description() string {
	return "Default refresh cadence, debouncing, retries and discovery settings for new containers."
}

// Data returns the current configuration data.
func (s *ContainerSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"refresh_interval":         s.RefreshInterval.String(),
		"debounce":                 s.Debounce.String(),
		"refresh_timeout":          s.RefreshTimeout.String(),
		"max_refresh_retries":      s.MaxRefreshRetries,
		"history_size":             s.HistorySize,
		"child_concurrency":        s.ChildConcurrency,
		"affordance_budget":        s.AffordanceBudget,
		"enable_auto_refresh":      s.EnableAutoRefresh,
		"enable_mutation_observer": s.EnableMutationObserver,
		"discover_affordances":     s.DiscoverAffordances,
	}
}

// SetData updates the configuration from the provided data.
func (s *ContainerSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	durations := map[string]*time.Duration{
		"refresh_interval": &s.RefreshInterval,
		"debounce":         &s.Debounce,
		"refresh_timeout":  &s.RefreshTimeout,
	}
	ints := map[string]*int{
		"max_refresh_retries": &s.MaxRefreshRetries,
		"history_size":        &s.HistorySize,
		"child_concurrency":   &s.ChildConcurrency,
		"affordance_budget":   &s.AffordanceBudget,
	}
	bools := map[string]*bool{
		"enable_auto_refresh":      &s.EnableAutoRefresh,
		"enable_mutation_observer": &s.EnableMutationObserver,
		"discover_affordances":     &s.DiscoverAffordances,
	}

	for key, value := range data {
		var err error
		switch {
		case durations[key] != nil:
			*durations[key], err = toDuration(key, value)
		case ints[key] != nil:
			*ints[key], err = toInt(key, value)
		case bools[key] != nil:
			*bools[key], err = toBool(key, value)
		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the defaults by validating a container built from them.
func (s *ContainerSection) Validate() error {
	cfg := s.Defaults("validate", "#validate")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.HistorySize < 0 || cfg.ChildConcurrency < 0 || cfg.AffordanceBudget < 0 {
		return fmt.Errorf("history_size, child_concurrency and affordance_budget must not be negative")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ContainerSection) Reset() {
	d := container.DefaultConfig("", "")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefreshInterval = d.RefreshInterval
	s.Debounce = d.Debounce
	s.RefreshTimeout = d.RefreshTimeout
	s.MaxRefreshRetries = d.MaxRefreshRetries
	s.HistorySize = d.HistorySize
	s.ChildConcurrency = d.ChildConcurrency
	s.AffordanceBudget = d.AffordanceBudget
	s.EnableAutoRefresh = d.EnableAutoRefresh
	s.EnableMutationObserver = d.EnableMutationObserver
	s.DiscoverAffordances = d.DiscoverAffordances
}

// Defaults returns a container configuration for name and locator built
// from the section values.
func (s *ContainerSection) Defaults(name, locator string) container.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := container.DefaultConfig(name, locator)
	cfg.RefreshInterval = s.RefreshInterval
	cfg.Debounce = s.Debounce
	cfg.RefreshTimeout = s.RefreshTimeout
	cfg.MaxRefreshRetries = s.MaxRefreshRetries
	cfg.HistorySize = s.HistorySize
	cfg.ChildConcurrency = s.ChildConcurrency
	cfg.AffordanceBudget = s.AffordanceBudget
	cfg.EnableAutoRefresh = s.EnableAutoRefresh
	cfg.EnableMutationObserver = s.EnableMutationObserver
	cfg.DiscoverAffordances = s.DiscoverAffordances
	return cfg
}
