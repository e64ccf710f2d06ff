package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/harvest/pkg/browser"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	defaultBrowserHeadless = true
	defaultBrowserTimeout  = 30 * time.Second
	defaultActionTimeout   = 5 * time.Second
)

// BrowserSection configures the Playwright sessions and drivers.
type BrowserSection struct {
	Headless         bool
	ViewportWidth    int
	ViewportHeight   int
	Timeout          time.Duration
	ActionTimeout    time.Duration
	MaxSessions      int
	ScrollPixels     int
	MutationDebounce time.Duration
	mu               sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser Settings"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Configure the browser used to load pages: headless mode, viewport, timeouts and change detection."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"headless":          s.Headless,
		"viewport_width":    s.ViewportWidth,
		"viewport_height":   s.ViewportHeight,
		"timeout":           s.Timeout.String(),
		"action_timeout":    s.ActionTimeout.String(),
		"max_sessions":      s.MaxSessions,
		"scroll_pixels":     s.ScrollPixels,
		"mutation_debounce": s.MutationDebounce.String(),
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "headless":
			s.Headless, err = toBool(key, value)
		case "viewport_width":
			s.ViewportWidth, err = toInt(key, value)
		case "viewport_height":
			s.ViewportHeight, err = toInt(key, value)
		case "timeout":
			s.Timeout, err = toDuration(key, value)
		case "action_timeout":
			s.ActionTimeout, err = toDuration(key, value)
		case "max_sessions":
			s.MaxSessions, err = toInt(key, value)
		case "scroll_pixels":
			s.ScrollPixels, err = toInt(key, value)
		case "mutation_debounce":
			s.MutationDebounce, err = toDuration(key, value)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.Timeout <= 0 || s.ActionTimeout <= 0 {
		return fmt.Errorf("timeout and action_timeout must be positive")
	}
	if s.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", s.MaxSessions)
	}
	if s.MutationDebounce < 0 {
		return fmt.Errorf("mutation_debounce must not be negative, got %v", s.MutationDebounce)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Headless = defaultBrowserHeadless
	s.ViewportWidth = browser.DefaultViewportWidth
	s.ViewportHeight = browser.DefaultViewportHeight
	s.Timeout = defaultBrowserTimeout
	s.ActionTimeout = defaultActionTimeout
	s.MaxSessions = browser.DefaultMaxSessions
	s.ScrollPixels = browser.DefaultScrollPixels
	s.MutationDebounce = browser.DefaultMutationDebounce
}

// SessionOptions converts the settings to browser session options.
func (s *BrowserSection) SessionOptions() browser.SessionOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return browser.SessionOptions{
		Headless: s.Headless,
		Viewport: &browser.Viewport{Width: s.ViewportWidth, Height: s.ViewportHeight},
		Timeout:  float64(s.Timeout.Milliseconds()),
	}
}

// DriverOptions converts the settings to driver options. Child selectors
// and affordance patterns come from the job, not from here.
func (s *BrowserSection) DriverOptions() browser.DriverOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return browser.DriverOptions{
		ScrollPixels:     s.ScrollPixels,
		MutationDebounce: s.MutationDebounce,
		ActionTimeout:    float64(s.ActionTimeout.Milliseconds()),
	}
}
