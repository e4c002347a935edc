// Package config loads coxswain settings from TOML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the full settings surface.
type Config struct {
	// SSHCommand is the transport binary spawned for each hop.
	SSHCommand string `toml:"ssh_command"`

	// Listen is the serve-mode HTTP address.
	Listen string `toml:"listen"`

	// Autopoll enables the remote process-info loop.
	Autopoll bool `toml:"autopoll"`

	// Verbose turns on remote helper tracing and dispatch logs.
	Verbose bool `toml:"verbose"`

	// InitialDirectory is the remote directory sessions start in.
	InitialDirectory string `toml:"initial_directory"`

	// InjectShellIntegration controls shell-integration injection for
	// eligible remote shells.
	InjectShellIntegration bool `toml:"inject_shell_integration"`

	// Vars are environment variables applied to the remote shell.
	Vars map[string]string `toml:"vars"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		SSHCommand:             "ssh",
		Listen:                 "127.0.0.1:8990",
		Autopoll:               true,
		InjectShellIntegration: true,
		Vars:                   map[string]string{},
	}
}

// DefaultPath is the conventional config location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "coxswain", "config.toml")
	}
	return ""
}

// Load reads the config at path, falling back to defaults when the
// file is absent. Environment variables COXSWAIN_SSH and
// COXSWAIN_LISTEN override the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("COXSWAIN_SSH"); v != "" {
		cfg.SSHCommand = v
	}
	if v := os.Getenv("COXSWAIN_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}
	return cfg, nil
}
