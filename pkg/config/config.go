package config

import (
	"sync"

	"github.com/entrhq/harvest/pkg/browser"
	"github.com/entrhq/harvest/pkg/container"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates and initializes the global configuration manager.
// This should be called once at application startup. An empty path uses
// DefaultPath.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	if err := manager.RegisterSection(NewContainerSection()); err != nil {
		return err
	}
	if err := manager.RegisterSection(NewBrowserSection()); err != nil {
		return err
	}

	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}

	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetContainer returns the container defaults section from global config.
// Returns nil if config is not initialized.
func GetContainer() *ContainerSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDContainer)
	if !ok {
		return nil
	}
	s, _ := section.(*ContainerSection)
	return s
}

// GetBrowser returns the browser settings section from global config.
// Returns nil if config is not initialized.
func GetBrowser() *BrowserSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDBrowser)
	if !ok {
		return nil
	}
	s, _ := section.(*BrowserSection)
	return s
}

// GetContainerDefaults returns a container configuration from the global
// defaults, or container.DefaultConfig when config is not initialized.
func GetContainerDefaults(name, locator string) container.Config {
	if s := GetContainer(); s != nil {
		return s.Defaults(name, locator)
	}
	return container.DefaultConfig(name, locator)
}

// GetSessionOptions returns browser session options from global config, or
// headless defaults when config is not initialized.
func GetSessionOptions() browser.SessionOptions {
	if s := GetBrowser(); s != nil {
		return s.SessionOptions()
	}
	return NewBrowserSection().SessionOptions()
}

// GetDriverOptions returns browser driver options from global config.
func GetDriverOptions() browser.DriverOptions {
	if s := GetBrowser(); s != nil {
		return s.DriverOptions()
	}
	return NewBrowserSection().DriverOptions()
}
