// Package config loads CLI configuration from structon.yaml, the
// environment, and flags, in ascending precedence. The loaded Config
// is what commands consult for directories, the store, and the model
// provider.
package config

import "time"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Provider names.
const (
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Default configuration values.
const (
	DefaultUnitsDir   = "units"
	DefaultPluginsDir = "plugins"
	DefaultStateFile  = ".structon/state.db"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultServerAddr = "127.0.0.1:8600"
)

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver string `koanf:"driver"`
	// Path is the SQLite database file. Synced with Config.StatePath.
	Path string `koanf:"path"`

	// Postgres connection settings. ${VAR} references in the
	// credential fields expand from the environment at load time.
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	SSLMode  string            `koanf:"sslmode"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
}

// ProviderConfig configures the model provider behind the intel
// operations and the forge.
type ProviderConfig struct {
	Name  string `koanf:"name"`
	Model string `koanf:"model"`
	// APIKey overrides the provider's environment lookup. ${VAR}
	// references expand from the environment at load time.
	APIKey string `koanf:"api_key"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Config holds all CLI configuration options.
type Config struct {
	UnitsDir     string          `koanf:"units_dir"`
	PluginsDir   string          `koanf:"plugins_dir"`
	StatePath    string          `koanf:"state_path"`
	Verbose      bool            `koanf:"verbose"`
	OutputFormat string          `koanf:"output"`
	MaxDepth     int             `koanf:"max_depth"`
	NodeTimeout  time.Duration   `koanf:"node_timeout"`
	Store        *StoreConfig    `koanf:"store"`
	Provider     *ProviderConfig `koanf:"provider"`
	Server       *ServerConfig   `koanf:"server"`

	// ProjectRoot is the directory all relative paths resolve against.
	// Derived at load time, never read from the file.
	ProjectRoot string `koanf:"-"`
}

// GetStoreConfig returns the store config with defaults applied for
// any unset values. The SQLite path syncs from StatePath so the flat
// key and the nested block agree.
func (c *Config) GetStoreConfig() *StoreConfig {
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Path == "" {
		c.Store.Path = c.StatePath
	}
	return c.Store
}

// GetProviderConfig returns the provider config with defaults applied
// for any unset values.
func (c *Config) GetProviderConfig() *ProviderConfig {
	if c.Provider == nil {
		c.Provider = &ProviderConfig{}
	}
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderMock
	}
	return c.Provider
}

// GetServerConfig returns the server config with defaults applied for
// any unset values.
func (c *Config) GetServerConfig() *ServerConfig {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	return c.Server
}
