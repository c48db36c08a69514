// Package appconfig manages tunman's own application configuration: where
// the per-host conf.d directory lives, the status HTTP listener address and
// the security defaults applied to every Remote Shell Client connection.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SecurityConfig controls how every sshclient.Client in the process
// verifies remote host keys.
type SecurityConfig struct {
	HostKeyPolicy string `yaml:"host_key_policy"`
}

// HTTPConfig holds a listen address for the aggregate status surface
// (internal/statusui). The start command takes its listen address from its
// --listen/--port flags and does not read this value.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config holds application-level configuration, distinct from the
// per-host/per-forwarding YAML files under conf.d.
type Config struct {
	ConfDir  string         `yaml:"conf_dir"`
	HTTP     HTTPConfig     `yaml:"http"`
	Security SecurityConfig `yaml:"security"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{ListenAddr: "127.0.0.1:8822"},
		Security: SecurityConfig{HostKeyPolicy: "strict"},
	}
}

// ConfigDir returns tunman's application config directory.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/tunman.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tunman"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "tunman"), nil
}

// DefaultConfDir returns the default directory holding per-host YAML
// forwarding definitions (conf.d), used by the Configuration Loader (C9)
// when Config.ConfDir is left unset.
func DefaultConfDir() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "conf.d"), nil
}

// Load reads config.yaml from the config directory. If the file doesn't
// exist it is created with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = Default().HTTP.ListenAddr
	}
	if cfg.Security.HostKeyPolicy == "" {
		cfg.Security.HostKeyPolicy = Default().Security.HostKeyPolicy
	}
	if cfg.ConfDir == "" {
		confDir, err := DefaultConfDir()
		if err != nil {
			return Config{}, err
		}
		cfg.ConfDir = confDir
	}
	return cfg, nil
}

// Save writes cfg to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
