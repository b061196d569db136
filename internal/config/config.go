// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads Castellan's configuration with viper, layering
// defaults, the castellan.yaml config file, environment variables
// (CASTELLAN_*) and cobra flags, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration.
type Config struct {
	// RelayURL is the base URL of the WebSocket tunnel relay,
	// e.g. "wss://relay.example.com".
	RelayURL string `mapstructure:"relay_url" yaml:"relay_url"`
	// CustodyURL is the base URL of the custody network API.
	CustodyURL string `mapstructure:"custody_url" yaml:"custody_url"`
	// PolicyURL is the base URL of the policy store. Empty disables
	// policy lookups entirely.
	PolicyURL string `mapstructure:"policy_url" yaml:"policy_url"`
	// Signer configures how signature requests are built.
	Signer SignerConfig `mapstructure:"signer" yaml:"signer"`
	// Database selects the trust store backend.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	// Language selects the UI language ("en", "de").
	Language string `mapstructure:"language" yaml:"language"`
	// Debug enables debug logging.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// SignerConfig carries the credentials and request-shape settings for the
// custody signing adapter.
type SignerConfig struct {
	// PublicKey is the account's public key in authorized_keys format
	// ("ssh-ed25519 AAAA..."). The matching private key lives on the
	// custody network.
	PublicKey string `mapstructure:"public_key" yaml:"public_key"`
	// AuthorizerToken is the caller's access credential, base64-encoded.
	AuthorizerToken string `mapstructure:"authorizer_token" yaml:"authorizer_token"`
	// Pattern selects the request-shape variant: "challenge-static" or
	// "challenge-dynamic".
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	// Flow selects the authorization flow: "implicit" or "operator".
	Flow string `mapstructure:"flow" yaml:"flow"`
}

// DatabaseConfig selects and configures the trust store database.
type DatabaseConfig struct {
	// Type is one of "sqlite", "postgres", "mysql".
	Type string `mapstructure:"type" yaml:"type"`
	// DSN is the driver-specific connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// Defaults returns the default configuration values keyed the way viper
// expects them.
func Defaults() map[string]any {
	return map[string]any{
		"relay_url":               "ws://127.0.0.1:8089",
		"custody_url":             "",
		"policy_url":              "",
		"signer.public_key":       "",
		"signer.authorizer_token": "",
		"signer.pattern":          "challenge-static",
		"signer.flow":             "implicit",
		"database.type":           "sqlite",
		"database.dsn":            "./castellan.db",
		"language":                "en",
		"debug":                   false,
	}
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Castellan")
		default: // Linux, macOS, etc.
			configDir = "/etc/castellan"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "castellan")
	}

	return filepath.Join(configDir, "castellan.yaml"), nil
}

// Load resolves the configuration for the given command. Flag values bound
// on cmd take precedence over environment variables, which take precedence
// over the config file, which takes precedence over defaults.
func Load(cmd *cobra.Command, explicitFile string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("castellan")
	v.SetConfigType("yaml")

	// An explicit --config path has the highest file precedence.
	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	}

	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".") // castellan.yaml in the current dir

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; anything else is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("castellan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// EnsureFile writes the configuration to the user config path when no file
// exists there yet, so first runs leave a file the user can edit.
func EnsureFile(c *Config) error {
	path, err := getConfigPath(false)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return WriteFile(c, false)
}

// WriteFile persists the configuration as YAML to the standard location.
func WriteFile(c *Config, system bool) error {
	path, err := getConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600 since the DSN may contain credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}

	return nil
}
