package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking.
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// findConfigFile finds the config file to use.
// Priority: explicit path > structon.yaml > structon.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("structon.yaml"); err == nil {
		return "structon.yaml"
	}
	if _, err := os.Stat("structon.yml"); err == nil {
		return "structon.yml"
	}
	return ""
}

// configExistsIn checks if a structon config file exists in the directory.
func configExistsIn(dir string) bool {
	for _, name := range []string{"structon.yaml", "structon.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRootUpward searches upward from startDir for a structon
// config file. Returns empty string if not found within
// maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root from CLI flags and the
// filesystem. Priority:
//  1. Infer from --units-dir (parent if it contains a config or is named "units")
//  2. Search upward from CWD for structon.yaml
//  3. Current working directory
func inferProjectRoot(flags *pflag.FlagSet) string {
	if flags != nil {
		if unitsDir, _ := flags.GetString("units-dir"); unitsDir != "" && flags.Changed("units-dir") {
			absUnits, err := filepath.Abs(unitsDir)
			if err == nil {
				parent := filepath.Dir(absUnits)

				// If the parent has a config file, it's the project root
				if configExistsIn(parent) {
					return parent
				}

				// If the folder is named "units", assume the parent is the root
				if filepath.Base(absUnits) == "units" {
					return parent
				}
			}
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRootUpward(cwd); root != "" {
			return root
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for a fresh load
	k = koanf.New(".")

	// Infer the project root from flags before loading config. This
	// enables the anchor pattern where --units-dir testdata/units
	// implies the project root is testdata/
	projectRoot := inferProjectRoot(flags)

	// Track paths that were explicitly provided as flags (relative to
	// CWD at parse time). They are absolutized here to prevent
	// double-resolution when the project root was inferred from them.
	var flagUnitsDir, flagPluginsDir, flagStatePath string
	if flags != nil {
		if flags.Changed("units-dir") {
			if v, _ := flags.GetString("units-dir"); v != "" {
				flagUnitsDir, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("plugins-dir") {
			if v, _ := flags.GetString("plugins-dir"); v != "" {
				flagPluginsDir, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("state") {
			if v, _ := flags.GetString("state"); v != "" {
				// The state path can be :memory: or a file path
				if v != ":memory:" {
					flagStatePath, _ = filepath.Abs(v)
				} else {
					flagStatePath = v
				}
			}
		}
	}

	// An explicit config file anchors the project root at its
	// directory, unless a more specific hint was given via flags.
	if cfgFile != "" && projectRoot == inferProjectRoot(nil) {
		if absPath, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(absPath)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"units_dir":   DefaultUnitsDir,
		"plugins_dir": DefaultPluginsDir,
		"state_path":  DefaultStateFile,
		"verbose":     false,
		"output":      DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load the config file. Search in the project root if
	// no explicit config file was provided.
	if cfgFile == "" {
		for _, name := range []string{"structon.yaml", "structon.yml"} {
			candidate := filepath.Join(projectRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (STRUCTON_ prefix).
	// Transform: STRUCTON_UNITS_DIR -> units_dir, and a double
	// underscore descends into nested blocks:
	// STRUCTON_PROVIDER__MODEL -> provider.model
	if err := k.Load(env.Provider("STRUCTON_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "STRUCTON_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// Explicit mappings where the flag name and the config key
			// diverge: --state is short for state_path, and the flat
			// --provider/--model flags address the nested block.
			switch key {
			case "state":
				return "state_path", posflag.FlagVal(flags, f)
			case "provider":
				return "provider.name", posflag.FlagVal(flags, f)
			case "model":
				return "provider.model", posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into the Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Set the project root and resolve relative paths against it.
	cfg.ProjectRoot = projectRoot

	// Paths explicitly provided via flags keep their pre-computed
	// absolute form; paths from the config file or defaults resolve
	// relative to the project root.
	if flagUnitsDir != "" {
		cfg.UnitsDir = flagUnitsDir
	} else {
		cfg.UnitsDir = resolvePathRelativeTo(cfg.UnitsDir, projectRoot)
	}
	if flagPluginsDir != "" {
		cfg.PluginsDir = flagPluginsDir
	} else {
		cfg.PluginsDir = resolvePathRelativeTo(cfg.PluginsDir, projectRoot)
	}
	if flagStatePath != "" {
		cfg.StatePath = flagStatePath
	} else if cfg.StatePath != ":memory:" {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}

	// Sync the nested store block with the flat state path and expand
	// environment references in credentials.
	store := cfg.GetStoreConfig()
	if store.Path != cfg.StatePath && store.Path != "" && store.Path != ":memory:" {
		store.Path = resolvePathRelativeTo(store.Path, projectRoot)
	}
	if store.Path == "" {
		store.Path = cfg.StatePath
	}
	expandStoreEnvVars(store)

	provider := cfg.GetProviderConfig()
	provider.APIKey = expandEnvVars(provider.APIKey)

	cfg.GetServerConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return a discard logger as a safe fallback
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// expandStoreEnvVars expands environment variables in sensitive store
// fields.
func expandStoreEnvVars(s *StoreConfig) {
	if s == nil {
		return
	}
	s.Password = expandEnvVars(s.Password)
	s.User = expandEnvVars(s.User)
	s.Host = expandEnvVars(s.Host)
	s.Database = expandEnvVars(s.Database)
}

// expandEnvVars expands ${VAR} patterns in a string with environment
// variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep the original if not found
	})
}
