// Package commands implements the structon subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/internal/cli/config"
	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/engine"
	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/internal/plugin"
	"github.com/leapstack-labs/structon/internal/state"
)

// CommandContext bundles the services a command needs: configuration,
// logging, the open store, a ready engine, and the renderer.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *state.SQLStore
	Engine   *engine.Engine
	Plugins  []*plugin.Module
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open, migrated
// store, a registry populated with plugins, and an engine. The optFns
// adjust the engine config before construction, which is how the run
// command wires its event stream. Returns the context and a cleanup
// function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, optFns ...func(*engine.Config)) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	registry := atomic.DefaultRegistry()
	modules, err := installPlugins(cfg, logger, registry)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	engineCfg := engine.Config{
		Store:       store,
		Registry:    registry,
		Provider:    provider,
		Logger:      logger,
		MaxDepth:    cfg.MaxDepth,
		NodeTimeout: cfg.NodeTimeout,
	}
	for _, fn := range optFns {
		fn(&engineCfg)
	}
	eng := engine.New(engineCfg)

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		_ = store.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Store:    store,
		Engine:   eng,
		Plugins:  modules,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without a
// store or engine. Useful for commands that never touch the database.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration. It uses
// config.GetCurrentConfig() if available, otherwise falls back to
// environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	unitsDir := getEnvOrDefault("STRUCTON_UNITS_DIR", config.DefaultUnitsDir)
	pluginsDir := getEnvOrDefault("STRUCTON_PLUGINS_DIR", config.DefaultPluginsDir)
	statePath := getEnvOrDefault("STRUCTON_STATE_PATH", config.DefaultStateFile)
	verbose := os.Getenv("STRUCTON_VERBOSE") == "true"
	outputFormat := os.Getenv("STRUCTON_OUTPUT")

	return &config.Config{
		UnitsDir:     unitsDir,
		PluginsDir:   pluginsDir,
		StatePath:    statePath,
		Verbose:      verbose,
		OutputFormat: outputFormat,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// openStore opens and migrates the configured store backend.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLStore, error) {
	sc := cfg.GetStoreConfig()

	var store *state.SQLStore
	var err error
	switch sc.Driver {
	case config.DriverPostgres:
		store, err = state.OpenPostgres(state.PostgresConfig{
			Host:     sc.Host,
			Port:     sc.Port,
			Database: sc.Database,
			User:     sc.User,
			Password: sc.Password,
			SSLMode:  sc.SSLMode,
			Schema:   sc.Schema,
			Options:  sc.Options,
		}, logger)
	default:
		path := sc.Path
		if path == "" {
			path = config.DefaultStateFile
		}
		// Ensure the state directory exists
		if path != ":memory:" {
			if dir := filepath.Dir(path); dir != "." && dir != "" {
				if mkErr := os.MkdirAll(dir, 0750); mkErr != nil {
					return nil, fmt.Errorf("failed to create state directory: %w", mkErr)
				}
			}
		}
		store, err = state.OpenSQLite(path, logger)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// installPlugins loads Starlark plugins from the configured directory
// into the registry. A missing directory is not an error.
func installPlugins(cfg *config.Config, logger *slog.Logger, reg *atomic.Registry) ([]*plugin.Module, error) {
	if cfg.PluginsDir == "" {
		return nil, nil
	}
	return plugin.NewLoader(cfg.PluginsDir, logger).Install(reg)
}

// newProvider builds the configured model provider.
func newProvider(cfg *config.Config) (intel.Provider, error) {
	pc := cfg.GetProviderConfig()
	return intel.New(pc.Name, pc.Model, pc.APIKey)
}

// parseSetValues turns repeated --set key=value flags into an initial
// value map. Values that parse as JSON keep their parsed type, so
// --set retries=3 binds a number and --set name=alice a string.
func parseSetValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q (expected key=value)", pair)
		}
		values[key] = parseLiteral(raw)
	}
	return values, nil
}

func parseLiteral(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
