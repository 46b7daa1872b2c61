package config

import (
	"fmt"
	"os"
)

// Validate checks the configuration for contradictions. Directory
// existence is deliberately not checked here so help commands work
// outside a project.
func (c *Config) Validate() error {
	if c.UnitsDir == "" {
		return fmt.Errorf("units_dir is required")
	}
	if c.Store != nil && c.Store.Driver != "" {
		switch c.Store.Driver {
		case DriverSQLite, DriverPostgres:
		default:
			return fmt.Errorf("unknown store driver %q (expected %s or %s)",
				c.Store.Driver, DriverSQLite, DriverPostgres)
		}
		if c.Store.Driver == DriverPostgres && c.Store.Database == "" {
			return fmt.Errorf("store driver %s requires store.database", DriverPostgres)
		}
	}
	if c.Provider != nil && c.Provider.Name != "" {
		switch c.Provider.Name {
		case ProviderMock, ProviderAnthropic, ProviderOpenAI:
		default:
			return fmt.Errorf("unknown provider %q (expected %s, %s, or %s)",
				c.Provider.Name, ProviderMock, ProviderAnthropic, ProviderOpenAI)
		}
	}
	return nil
}

// ValidateDirectories checks that the units directory exists.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.UnitsDir); os.IsNotExist(err) {
		return fmt.Errorf("units directory does not exist: %s\nHint: Create the directory or use --units-dir to specify a different path", c.UnitsDir)
	}
	return nil
}
