package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-quota/config"
	"github.com/Klingon-tech/klingnet-quota/internal/log"
	"github.com/Klingon-tech/klingnet-quota/internal/wallet"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
	"github.com/Klingon-tech/klingnet-quota/pkg/tx"
)

// record is a signed record as hex wire bytes plus its JSON mirror.
type record struct {
	Hex    string `json:"hex"`
	Record any    `json:"record"`
}

func newRecord[B envelope.Body](e *envelope.Envelope[B]) record {
	return record{Hex: hex.EncodeToString(e.Bytes()), Record: e}
}

func newRecords[B envelope.Body](es []*envelope.Envelope[B]) []record {
	out := make([]record, len(es))
	for i, e := range es {
		out[i] = newRecord(e)
	}
	return out
}

type keygenOutput struct {
	MnemonicFile string `json:"mnemonic_file"`
	Certificate  string `json:"certificate"`
}

func (c *cli) cmdKeygen() error {
	if err := config.EnsureDataDirs(c.cfg); err != nil {
		return fmt.Errorf("ensuring data dirs: %w", err)
	}
	path := c.cfg.MnemonicPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("issuer mnemonic %s already exists", path)
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(mnemonic+"\n"), 0o600); err != nil {
		return fmt.Errorf("write mnemonic: %w", err)
	}
	key, err := c.issuerKey()
	if err != nil {
		return err
	}
	log.CLI.Info().Str("file", path).Msg("Created issuer mnemonic")
	return c.printJSON(keygenOutput{MnemonicFile: path, Certificate: key.Certificate().String()})
}

type issueOutput struct {
	Request record   `json:"request"`
	Tokens  []record `json:"tokens"`
}

// cmdIssue issues the schedule given as argument, or the configured one.
func (c *cli) cmdIssue(args []string) error {
	raw := c.cfg.Issue.Schedule
	if len(args) > 0 {
		raw = args[0]
	}
	schedule, err := config.ParseSchedule(raw)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	a, err := c.authority()
	if err != nil {
		return err
	}
	issued, err := a.Issue(schedule)
	if err != nil {
		return err
	}
	return c.printJSON(issueOutput{Request: newRecord(issued.Request), Tokens: newRecords(issued.Tokens)})
}

func (c *cli) cmdConvert(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: quotactl convert <schedule> <tokens.json>")
	}
	schedule, err := config.ParseSchedule(args[0])
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	tokens, err := readTokens(args[1])
	if err != nil {
		return err
	}
	a, err := c.authority()
	if err != nil {
		return err
	}
	req, err := a.NewConvertRequest(tokens, schedule)
	if err != nil {
		return err
	}
	out, err := a.Convert(req)
	if err != nil {
		return err
	}
	return c.printJSON(issueOutput{Request: newRecord(req), Tokens: newRecords(out)})
}

func (c *cli) cmdRecycle(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: quotactl recycle <tokens.json>")
	}
	tokens, err := readTokens(args[0])
	if err != nil {
		return err
	}
	a, err := c.authority()
	if err != nil {
		return err
	}
	receipt, err := a.Recycle(tokens)
	if err != nil {
		return err
	}
	return c.printJSON(newRecord(receipt))
}

// readTokens loads signed tokens from a JSON file holding either the
// output of issue or convert, or an array of hex strings.
func readTokens(path string) ([]*quota.SignedToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var hexes []string
	var wrapped struct {
		Tokens []record `json:"tokens"`
	}
	if err := json.Unmarshal(data, &hexes); err != nil {
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("%s: expected issue output or a JSON array of hex tokens: %w", path, err)
		}
		for _, r := range wrapped.Tokens {
			hexes = append(hexes, r.Hex)
		}
	}

	tokens := make([]*quota.SignedToken, 0, len(hexes))
	for i, h := range hexes {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		t, err := quota.DecodeSignedToken(raw)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

type decodeOutput struct {
	Type     envelope.Tag `json:"type"`
	Verified bool         `json:"verified"`
	Error    string       `json:"verify_error,omitempty"`
	Record   any          `json:"record"`
}

func describe[B envelope.Body](e *envelope.Envelope[B], err error) (*decodeOutput, error) {
	if err != nil {
		return nil, err
	}
	out := &decodeOutput{Type: e.Tag, Verified: true, Record: e}
	if verr := e.VerifyHeader(); verr != nil {
		out.Verified = false
		out.Error = verr.Error()
	}
	return out, nil
}

// cmdDecode prints any signed record. Currency-bearing records are read
// in the configured shape.
func (c *cli) cmdDecode(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: quotactl decode <hex>")
	}
	raw, err := hex.DecodeString(strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("hex: %w", err)
	}
	var out *decodeOutput
	if c.cfg.Shape == config.ShapeSelfMinted {
		out, err = decodeRecord[*currency.SelfMinted](raw, currency.DecodeSelfMinted)
	} else {
		out, err = decodeRecord[*currency.QuotaBacked](raw, currency.DecodeQuotaBacked)
	}
	if err != nil {
		return err
	}
	return c.printJSON(out)
}

func decodeRecord[C currency.Unit](raw []byte, unit envelope.Decoder[C]) (*decodeOutput, error) {
	tag, err := envelope.PeekTag(raw)
	if err != nil {
		return nil, err
	}
	switch tag {
	case envelope.TagQuotaControlField:
		e, err := quota.DecodeSignedToken(raw)
		return describe(e, err)
	case envelope.TagIssueQuotaRequest:
		e, err := quota.DecodeSignedIssueRequest(raw)
		return describe(e, err)
	case envelope.TagConvertQuotaRequest:
		e, err := quota.DecodeSignedConvertRequest(raw)
		return describe(e, err)
	case envelope.TagQuotaRecycleReceipt:
		e, err := quota.DecodeSignedRecycleReceipt(raw)
		return describe(e, err)
	case envelope.TagDigitalCurrency:
		e, err := envelope.Decode(raw, tag, unit)
		return describe(e, err)
	case envelope.TagCurrencyConvertRequest:
		e, err := currency.DecodeSignedConvertRequest(raw)
		return describe(e, err)
	case envelope.TagTransaction:
		e, err := envelope.Decode(raw, tag, func(b []byte) (*tx.Transaction[C], error) {
			return tx.Decode(b, unit)
		})
		return describe(e, err)
	case envelope.TagTransfer:
		e, err := envelope.Decode(raw, tag, func(b []byte) (*tx.Transfer[C], error) {
			return tx.DecodeTransfer(b, unit)
		})
		return describe(e, err)
	default:
		return nil, fmt.Errorf("%w: %s", envelope.ErrBadTag, tag)
	}
}
