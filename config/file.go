package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile reads a .conf file. Format: key = value, one per line, # for
// comments. A missing file yields no values.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		values[key] = value
	}
	return values, scanner.Err()
}

// ApplyFileConfig applies file values to cfg.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "datadir":
		cfg.DataDir = value
	case "shape":
		cfg.Shape = Shape(strings.ToLower(value))

	case "issuer.mnemonic":
		cfg.Issuer.MnemonicFile = value
	case "issuer.passphrase":
		cfg.Issuer.Passphrase = value
	case "issuer.account":
		n, err := strconv.ParseUint(value, 10, 31)
		if err != nil {
			return err
		}
		cfg.Issuer.Account = uint32(n)
	case "issuer.index":
		n, err := strconv.ParseUint(value, 10, 31)
		if err != nil {
			return err
		}
		cfg.Issuer.Index = uint32(n)

	case "issue.schedule":
		cfg.Issue.Schedule = value
	case "issue.maxtokens":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Issue.MaxTokens = n

	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored.
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a commented default config file.
func WriteDefaultConfig(path string) error {
	content := `# quotactl configuration

# Data directory (default: ~/.klingquota)
# datadir = ~/.klingquota

# Currency shape: quota or selfminted
shape = quota

# ============================================================================
# Issuer key
# ============================================================================

# File holding the issuer BIP-39 mnemonic (default: <datadir>/issuer.mnemonic)
# issuer.mnemonic =
# issuer.passphrase =
issuer.account = 0
issuer.index = 0

# ============================================================================
# Issue
# ============================================================================

# Default schedule as value x count pairs, ascending by value
issue.schedule = ` + DefaultSchedule + `

# Most tokens a single issue or conversion may mint
issue.maxtokens = ` + strconv.Itoa(DefaultMaxTokens) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0o600)
}
