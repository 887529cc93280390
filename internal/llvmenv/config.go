package llvmenv

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "llvmenv"

// Config carries the directory layout every component works against.
// It is resolved once at startup and threaded into constructors; nothing
// reads these locations from the environment mid-operation.
type Config struct {
	ConfigDir string // entry.yaml and the global .llvmenv marker
	CacheDir  string // checked-out sources and downloaded archives
	DataDir   string // one prefix per completed build
	Quiet     bool   // suppress progress and informational output
}

// LoadConfig resolves the XDG user directories and applies LLVMENV_* env
// overrides on top.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	confBase, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine config directory: %w", err)
	}
	cfg.ConfigDir = filepath.Join(confBase, appName)

	cacheBase, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine cache directory: %w", err)
	}
	cfg.CacheDir = filepath.Join(cacheBase, appName)

	dataBase := os.Getenv("XDG_DATA_HOME")
	if dataBase == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine data directory: %w", err)
		}
		dataBase = filepath.Join(home, ".local", "share")
	}
	cfg.DataDir = filepath.Join(dataBase, appName)

	mergeEnvOverrides(cfg)

	Debug = os.Getenv("LLVMENV_DEBUG") == "1"

	return cfg, nil
}

// Merge LLVMENV_* env overrides
func mergeEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLVMENV_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if v := os.Getenv("LLVMENV_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("LLVMENV_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

// EnsureDirs creates the managed directories when missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.ConfigDir, c.CacheDir, c.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// EntryFile is the user entry catalog inside the config dir.
func (c *Config) EntryFile() string {
	return filepath.Join(c.ConfigDir, "entry.yaml")
}

// CacheStore holds downloaded archive files, keyed by URL hash.
func (c *Config) CacheStore() string {
	return filepath.Join(c.CacheDir, "_cache")
}
