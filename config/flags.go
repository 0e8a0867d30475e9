package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Version is the quotactl release.
const Version = "0.1.0"

// ErrHelp is returned by ParseFlags when help was requested.
var ErrHelp = flag.ErrHelp

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	DataDir string
	Config  string
	Shape   string

	Mnemonic   string
	Passphrase string
	Account    int
	Index      int
	MaxTokens  uint64

	LogLevel string
	LogFile  string
	LogJSON  bool

	// Command and its arguments.
	Args []string

	SetAccount   bool
	SetIndex     bool
	SetLogJSON   bool
	SetMaxTokens bool
}

// ParseFlags parses global flags from args (without the program name).
// Parsing stops at the first non-flag argument, the command.
func ParseFlags(args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("quotactl", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.Shape, "shape", "", "Currency shape: quota or selfminted")

	fs.StringVar(&f.Mnemonic, "mnemonic", "", "Issuer mnemonic file")
	fs.StringVar(&f.Passphrase, "passphrase", "", "Issuer mnemonic passphrase")
	fs.IntVar(&f.Account, "account", 0, "Issuer HD account")
	fs.IntVar(&f.Index, "index", 0, "Issuer HD address index")
	fs.Uint64Var(&f.MaxTokens, "max-tokens", 0, "Most tokens one issue or conversion may mint")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { PrintUsage(output) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.SetAccount = isFlagSet(fs, "account")
	f.SetIndex = isFlagSet(fs, "index")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.SetMaxTokens = isFlagSet(fs, "max-tokens")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to cfg.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Shape != "" {
		cfg.Shape = Shape(strings.ToLower(f.Shape))
	}

	if f.Mnemonic != "" {
		cfg.Issuer.MnemonicFile = f.Mnemonic
	}
	if f.Passphrase != "" {
		cfg.Issuer.Passphrase = f.Passphrase
	}
	if f.SetAccount && f.Account >= 0 {
		cfg.Issuer.Account = uint32(f.Account)
	}
	if f.SetIndex && f.Index >= 0 {
		cfg.Issuer.Index = uint32(f.Index)
	}

	if f.SetMaxTokens {
		cfg.Issue.MaxTokens = f.MaxTokens
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Load builds the configuration with the following precedence:
// 1. Default values
// 2. Config file
// 3. Command-line flags
//
// The data directory is not created; commands that write call
// EnsureDataDirs.
func Load(args []string, output io.Writer) (*Config, *Flags, error) {
	flags, err := ParseFlags(args, output)
	if err != nil {
		return nil, nil, err
	}

	cfg := Default()
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	values, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}

// IsHelp reports whether err came from a -help flag.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, `quotactl - quota token and digital currency authority

Usage:
  quotactl [options] <command> [arguments]

Commands:
  keygen                      Create an issuer mnemonic in the data directory
  issue [schedule]            Issue quota tokens, e.g. 10x5,50x2,100x1
  convert <schedule> <file>   Convert tokens (JSON array of signed tokens, hex)
  recycle <file>              Recycle tokens into a signed receipt
  decode <hex>                Decode any signed record and print it as JSON
  demo                        Run an issue, bind, pay and settle round trip

Options:
  --datadir       Data directory (default: ~/.klingquota)
  --config, -c    Config file path (default: <datadir>/quota.conf)
  --shape         Currency shape: quota (default) or selfminted
  --mnemonic      Issuer mnemonic file (default: <datadir>/issuer.mnemonic)
  --passphrase    Issuer mnemonic passphrase
  --account       Issuer HD account (default: 0)
  --index         Issuer HD address index (default: 0)
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Also write JSON logs to this file
  --log-json      Output logs as JSON
  --version       Show version information
`)
}
