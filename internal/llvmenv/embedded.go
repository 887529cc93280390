package llvmenv

import (
	"embed"
	"fmt"
	"os"
)

//go:embed assets/entry.yaml assets/llvmenv.zsh
var embeddedAssets embed.FS

// InitConfig writes the default entry catalog into the config dir. An
// existing catalog is never overwritten.
func InitConfig(cfg *Config) error {
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	entryFile := cfg.EntryFile()
	if _, err := os.Stat(entryFile); err == nil {
		return fmt.Errorf("setting already exists: %s", entryFile)
	}
	data, err := embeddedAssets.ReadFile("assets/entry.yaml")
	if err != nil {
		return fmt.Errorf("failed to read embedded entry.yaml: %w", err)
	}
	if err := os.WriteFile(entryFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", entryFile, err)
	}
	cPrintf(colInfo, "Create default entry setting: %s\n", entryFile)
	return nil
}

// ZshScript returns the shell-integration hook printed by `llvmenv zsh`.
func ZshScript() (string, error) {
	data, err := embeddedAssets.ReadFile("assets/llvmenv.zsh")
	if err != nil {
		return "", fmt.Errorf("failed to read embedded llvmenv.zsh: %w", err)
	}
	return string(data), nil
}
