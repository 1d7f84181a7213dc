// Package config loads and saves the launcher's YAML settings file.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the launcher settings file. The master-key salt and verifier
// are written back the first time a master passphrase is set; the master key
// itself is never stored.
type Config struct {
	// AccountsFile is where encrypted account records live.
	AccountsFile string `yaml:"accounts-file"`
	// UseSingularity selects the test server ("sisi") instead of
	// Tranquility.
	UseSingularity bool `yaml:"use-singularity"`
	// RequestTimeoutSeconds bounds each login request. Zero selects the
	// default.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds"`
	// SavePasswords enables encrypted credential storage behind a master
	// passphrase.
	SavePasswords bool `yaml:"save-passwords"`
	// MasterKeySalt is the base64 argon2 salt for passphrase derivation.
	MasterKeySalt string `yaml:"master-key-salt,omitempty"`
	// MasterKeyVerifier is the base64 fingerprint of the derived key, used
	// to reject mistyped passphrases.
	MasterKeyVerifier string `yaml:"master-key-verifier,omitempty"`
	// LoggingToFile mirrors console logs into a rotated file next to the
	// settings.
	LoggingToFile bool `yaml:"logging-to-file"`

	path string
}

// DefaultPath returns the per-user settings location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "isboxer-eve-launcher.yaml"
	}
	return filepath.Join(home, ".isboxer-eve-launcher", "config.yaml")
}

// Load reads the settings file, filling defaults for anything unset. A
// missing file yields defaults; the file is created on the first Save.
func Load(path string) (*Config, error) {
	cfg := &Config{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.path = path
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AccountsFile == "" {
		c.AccountsFile = filepath.Join(filepath.Dir(c.path), "accounts.json")
	}
	if c.RequestTimeoutSeconds < 0 {
		c.RequestTimeoutSeconds = 0
	}
}

// Save writes the settings back to the path they were loaded from.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err = os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Salt decodes the stored master-key salt, or nil when none is set.
func (c *Config) Salt() []byte {
	if c.MasterKeySalt == "" {
		return nil
	}
	salt, err := base64.StdEncoding.DecodeString(c.MasterKeySalt)
	if err != nil {
		return nil
	}
	return salt
}

// Verifier decodes the stored key verifier, or nil when none is set.
func (c *Config) Verifier() []byte {
	if c.MasterKeyVerifier == "" {
		return nil
	}
	v, err := base64.StdEncoding.DecodeString(c.MasterKeyVerifier)
	if err != nil {
		return nil
	}
	return v
}

// SetMasterKeyParams stores a fresh salt and verifier pair. Rotating these
// invalidates every stored ciphertext, which callers must re-encrypt or
// drop.
func (c *Config) SetMasterKeyParams(salt, verifier []byte) {
	c.MasterKeySalt = base64.StdEncoding.EncodeToString(salt)
	c.MasterKeyVerifier = base64.StdEncoding.EncodeToString(verifier)
}

// LogFile is the rotated log destination used when LoggingToFile is set.
func (c *Config) LogFile() string {
	return filepath.Join(filepath.Dir(c.path), "logs", "launcher.log")
}
