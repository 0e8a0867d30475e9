// quotactl runs a quota delivery system from the command line: it issues,
// converts and recycles quota tokens and settles digital currency.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Klingon-tech/klingnet-quota/config"
	"github.com/Klingon-tech/klingnet-quota/internal/authority"
	"github.com/Klingon-tech/klingnet-quota/internal/log"
	"github.com/Klingon-tech/klingnet-quota/internal/wallet"
	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
)

var errNoCommand = errors.New("no command given")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if config.IsHelp(err) {
			os.Exit(0)
		}
		fatal("%v", err)
	}
}

// cli carries what every command needs.
type cli struct {
	cfg *config.Config
	out io.Writer
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, flags, err := config.Load(args, stderr)
	if err != nil {
		return err
	}
	if flags.Version {
		fmt.Fprintf(stdout, "quotactl version %s\n", config.Version)
		return nil
	}
	if flags.Help {
		config.PrintUsage(stdout)
		return nil
	}
	if len(flags.Args) == 0 {
		config.PrintUsage(stderr)
		return errNoCommand
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	c := &cli{cfg: cfg, out: stdout}
	cmd, cmdArgs := flags.Args[0], flags.Args[1:]
	log.CLI.Debug().Str("command", cmd).Strs("args", cmdArgs).Str("shape", string(cfg.Shape)).Msg("Running command")

	switch cmd {
	case "keygen":
		return c.cmdKeygen()
	case "issue":
		return c.cmdIssue(cmdArgs)
	case "convert":
		return c.cmdConvert(cmdArgs)
	case "recycle":
		return c.cmdRecycle(cmdArgs)
	case "decode":
		return c.cmdDecode(cmdArgs)
	case "demo":
		return c.cmdDemo()
	case "help":
		config.PrintUsage(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q (see quotactl --help)", cmd)
	}
}

// issuerKey derives the configured issuer key from the mnemonic file.
func (c *cli) issuerKey() (*crypto.PrivateKey, error) {
	path := c.cfg.MnemonicPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no issuer mnemonic at %s (run quotactl keygen)", path)
		}
		return nil, err
	}
	key, err := wallet.KeyFromMnemonic(string(bytes.TrimSpace(data)), c.cfg.Issuer.Passphrase, c.cfg.Issuer.Account, c.cfg.Issuer.Index)
	if err != nil {
		return nil, fmt.Errorf("issuer key from %s: %w", path, err)
	}
	return key, nil
}

func (c *cli) authority() (*authority.Authority, error) {
	key, err := c.issuerKey()
	if err != nil {
		return nil, err
	}
	return authority.New(key, authority.WithMaxTokens(c.cfg.Issue.MaxTokens))
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
