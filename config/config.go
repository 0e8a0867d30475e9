// Package config handles quotactl configuration.
//
// Settings come from three layers, later ones winning: built-in defaults,
// a key = value config file, and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Shape selects which digital currency shape a deployment settles.
type Shape string

const (
	// ShapeQuota binds currency to signed quota tokens.
	ShapeQuota Shape = "quota"
	// ShapeSelfMinted issues standalone currency records.
	ShapeSelfMinted Shape = "selfminted"
)

// Config holds runtime configuration.
type Config struct {
	DataDir string `conf:"datadir"`
	Shape   Shape  `conf:"shape"`

	Issuer IssuerConfig
	Issue  IssueConfig
	Log    LogConfig
}

// IssuerConfig locates the delivery system key. The key is derived from a
// BIP-39 mnemonic at m/44'/8889'/account'/0/index.
type IssuerConfig struct {
	MnemonicFile string `conf:"issuer.mnemonic"`
	Passphrase   string `conf:"issuer.passphrase"`
	Account      uint32 `conf:"issuer.account"`
	Index        uint32 `conf:"issuer.index"`
}

// IssueConfig holds defaults for the issue command.
type IssueConfig struct {
	Schedule  string `conf:"issue.schedule"` // e.g. "10x5,50x2,100x1"
	MaxTokens uint64 `conf:"issue.maxtokens"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingquota
//	macOS:   ~/Library/Application Support/Klingquota
//	Windows: %APPDATA%\Klingquota
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingquota"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingquota")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Klingquota")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingquota")
	default:
		return filepath.Join(home, ".klingquota")
	}
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "quota.conf")
}

// MnemonicPath returns the issuer mnemonic file, defaulting to
// <datadir>/issuer.mnemonic.
func (c *Config) MnemonicPath() string {
	if c.Issuer.MnemonicFile != "" {
		return c.Issuer.MnemonicFile
	}
	return filepath.Join(c.DataDir, "issuer.mnemonic")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// EnsureDataDirs creates the data directories and writes a default config
// file if none exists.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	path := cfg.ConfigFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return WriteDefaultConfig(path)
	}
	return nil
}
