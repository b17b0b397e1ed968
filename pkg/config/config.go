// Package config holds the sectioned JSON settings file used by the mnemo
// command. Library packages never read it; the command resolves plain
// values here and passes them down.
package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates the global manager over the file at configPath (empty
// means ~/.mnemo/config.json), registers the memory and oracle sections and
// loads them.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	if err := manager.RegisterSection(NewMemorySection()); err != nil {
		return err
	}
	if err := manager.RegisterSection(NewOracleSection()); err != nil {
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

// GetMemory returns the memory section, or nil before Initialize.
func GetMemory() *MemorySection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDMemory)
	if !ok {
		return nil
	}
	memory, _ := section.(*MemorySection)
	return memory
}

// GetOracle returns the oracle section, or nil before Initialize.
func GetOracle() *OracleSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDOracle)
	if !ok {
		return nil
	}
	o, _ := section.(*OracleSection)
	return o
}

// Memory returns the memory settings, or the defaults before Initialize.
func Memory() MemorySettings {
	if section := GetMemory(); section != nil {
		return section.Settings()
	}
	return DefaultMemorySettings()
}
