// Package authority runs the issuer side of the quota ledger: issuing and
// converting quota tokens, recycling them, binding them to wallets and
// settling currency transactions.
package authority

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-quota/internal/log"
	"github.com/Klingon-tech/klingnet-quota/internal/storage"
	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Authority errors.
var (
	ErrNilKey = errors.New("authority key is nil")
)

// DefaultMaxTokens caps the tokens one issue, conversion or exchange may
// mint unless WithMaxTokens says otherwise.
const DefaultMaxTokens = 100_000

// quotaLedger names the ledger shared by quota conversions, currency
// exchanges and quota-backed settlement.
const quotaLedger = "quota"

// Authority holds an issuer key. All operations sign with it and use it as
// the delivery system certificate. An Authority is safe for concurrent use.
type Authority struct {
	key    crypto.Signer
	cert   types.Certificate
	logger zerolog.Logger
	db     storage.DB

	maxTokens uint64

	mu sync.Mutex // guards d
	d  *derive.Deriver

	ledgerMu sync.Mutex // guards every ledger in db
	quota    *ledger
}

// Option configures an Authority.
type Option func(*Authority)

// WithDeriver replaces the default crypto/rand and wall clock deriver.
func WithDeriver(d *derive.Deriver) Option {
	return func(a *Authority) { a.d = d }
}

// WithStore sets the store that holds settlement state. The default is
// an in-memory store.
func WithStore(db storage.DB) Option {
	return func(a *Authority) { a.db = db }
}

// WithMaxTokens sets the most tokens one operation may mint.
func WithMaxTokens(n uint64) Option {
	return func(a *Authority) { a.maxTokens = n }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Authority) { a.logger = l }
}

// New creates an Authority for key.
func New(key crypto.Signer, opts ...Option) (*Authority, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	a := &Authority{
		key:    key,
		cert:   key.Certificate(),
		logger: log.Authority,
		db:        storage.NewMemory(),
		maxTokens: DefaultMaxTokens,
		d:         derive.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.quota = newLedger(a.db, quotaLedger)
	a.logger = a.logger.With().Str("ds", a.cert.String()).Logger()
	return a, nil
}

// Certificate returns the delivery system certificate.
func (a *Authority) Certificate() types.Certificate { return a.cert }

// withDeriver runs fn while holding the deriver.
func (a *Authority) withDeriver(fn func(d *derive.Deriver) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.d)
}

// Issued is the result of an issue operation.
type Issued struct {
	Request *envelope.Envelope[*quota.IssueRequest]
	Tokens  []*quota.SignedToken
}

// Issue validates schedule, creates and signs an issue request for it and
// distributes its tokens.
func (a *Authority) Issue(schedule []quota.Denomination) (*Issued, error) {
	defer log.Benchmark("issue")()

	if err := quota.ValidateSchedule(schedule); err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}
	if err := quota.CheckCount(schedule, a.maxTokens); err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}
	var (
		req    *quota.IssueRequest
		tokens []*quota.Token
	)
	err := a.withDeriver(func(d *derive.Deriver) error {
		var err error
		if req, err = quota.NewIssueRequest(d, schedule, a.cert); err != nil {
			return err
		}
		tokens, err = req.QuotaDistribution(d)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}

	signedReq, err := envelope.Seal(envelope.TagIssueQuotaRequest, req, a.key)
	if err != nil {
		return nil, fmt.Errorf("sign issue request: %w", err)
	}
	signed, err := quota.Seal(tokens, a.key)
	if err != nil {
		return nil, err
	}

	total, _ := quota.Total(schedule)
	a.logger.Info().
		Str("issue_id", req.IssueID.String()).
		Int("tokens", len(signed)).
		Uint64("total", total).
		Msg("Issued quota")
	return &Issued{Request: signedReq, Tokens: signed}, nil
}

// NewConvertRequest builds and signs a request to convert inputs into the
// outputs schedule.
func (a *Authority) NewConvertRequest(inputs []*quota.SignedToken, outputs []quota.Denomination) (*envelope.Envelope[*quota.ConvertRequest], error) {
	var req *quota.ConvertRequest
	err := a.withDeriver(func(d *derive.Deriver) error {
		var err error
		req, err = quota.NewConvertRequest(d, inputs, outputs, a.cert)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("convert request: %w", err)
	}
	return envelope.Seal(envelope.TagConvertQuotaRequest, req, a.key)
}

// Convert redeems a signed convert request and returns the new signed
// tokens. The input tokens are recorded as spent, so a request can be
// redeemed once and its tokens cannot be converted or settled again.
func (a *Authority) Convert(signed *envelope.Envelope[*quota.ConvertRequest]) ([]*quota.SignedToken, error) {
	defer log.Benchmark("convert")()

	if signed == nil || signed.Body == nil {
		return nil, fmt.Errorf("convert request: %w", envelope.ErrUnsigned)
	}
	if err := signed.VerifySignedBy(a.cert); err != nil {
		return nil, fmt.Errorf("convert request: %w", err)
	}
	req := signed.Body
	if err := quota.CheckCount(req.Outputs, a.maxTokens); err != nil {
		return nil, fmt.Errorf("convert request: %w", err)
	}

	a.ledgerMu.Lock()
	defer a.ledgerMu.Unlock()

	var tokens []*quota.Token
	err := a.withDeriver(func(d *derive.Deriver) error {
		var err error
		tokens, err = req.Convert(d)
		return err
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("convert_id", req.ConvertID.String()).Msg("Convert rejected")
		return nil, err
	}
	ids := make([]types.Hash, len(req.Inputs))
	for i, in := range req.Inputs {
		ids[i] = in.Body.ID
		if err := a.quota.checkUnspent(ids[i]); err != nil {
			a.logger.Warn().Err(err).Str("convert_id", req.ConvertID.String()).Msg("Convert rejected")
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	out, err := quota.Seal(tokens, a.key)
	if err != nil {
		return nil, err
	}
	if err := a.quota.consume(ids, req.ConvertID); err != nil {
		return nil, err
	}
	a.logger.Info().
		Str("convert_id", req.ConvertID.String()).
		Int("inputs", len(req.Inputs)).
		Int("outputs", len(out)).
		Msg("Converted quota")
	return out, nil
}

// Recycle tallies tokens into a signed receipt.
func (a *Authority) Recycle(tokens []*quota.SignedToken) (*envelope.Envelope[*quota.RecycleReceipt], error) {
	var receipt *quota.RecycleReceipt
	err := a.withDeriver(func(d *derive.Deriver) error {
		var err error
		receipt, err = quota.Recycle(d, tokens, a.cert)
		return err
	})
	if err != nil {
		a.logger.Warn().Err(err).Int("tokens", len(tokens)).Msg("Recycle rejected")
		return nil, err
	}
	signed, err := envelope.Seal(envelope.TagQuotaRecycleReceipt, receipt, a.key)
	if err != nil {
		return nil, fmt.Errorf("sign recycle receipt: %w", err)
	}
	total, _ := receipt.Total()
	a.logger.Info().
		Str("recycle_id", receipt.RecycleID.String()).
		Int("tokens", len(tokens)).
		Uint64("total", total).
		Msg("Recycled quota")
	return signed, nil
}

// Bind turns quota tokens into quota-backed currency owned by owner.
func (a *Authority) Bind(owner types.Certificate, tokens ...*quota.SignedToken) ([]*currency.SignedQuotaBacked, error) {
	out := make([]*currency.SignedQuotaBacked, 0, len(tokens))
	var total uint64
	for i, t := range tokens {
		c, err := currency.Bind(a.key, t, owner)
		if err != nil {
			return nil, fmt.Errorf("bind token %d: %w", i, err)
		}
		if total, err = types.AddAmount(total, c.Body.Amount()); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	a.logger.Info().
		Str("owner", owner.String()).
		Int("units", len(out)).
		Uint64("total", total).
		Msg("Bound quota to wallet")
	return out, nil
}

// IssueSelfMinted issues a self-minted unit of amount to owner.
func (a *Authority) IssueSelfMinted(owner types.Certificate, amount uint64, script, addition []byte) (*currency.SignedSelfMinted, error) {
	var c *currency.SignedSelfMinted
	err := a.withDeriver(func(d *derive.Deriver) error {
		var err error
		c, err = currency.Issue(a.key, d, owner, amount, script, addition)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info().
		Str("currency_id", c.Body.ID.String()).
		Str("owner", owner.String()).
		Uint64("amount", amount).
		Msg("Issued currency")
	return c, nil
}

// Exchange redeems a wallet-signed currency convert request. Each input
// must be the current binding of an unspent unit; on success the inputs
// are recorded as spent.
func (a *Authority) Exchange(signed *envelope.Envelope[*currency.ConvertRequest]) ([]*currency.SignedQuotaBacked, error) {
	if signed == nil || signed.Body == nil {
		return nil, fmt.Errorf("convert request: %w", envelope.ErrUnsigned)
	}
	if err := quota.CheckCount(signed.Body.Outputs, a.maxTokens); err != nil {
		return nil, fmt.Errorf("convert request: %w", err)
	}

	a.ledgerMu.Lock()
	defer a.ledgerMu.Unlock()

	var out []*currency.SignedQuotaBacked
	err := a.withDeriver(func(d *derive.Deriver) error {
		var err error
		out, err = currency.Exchange(a.key, d, signed)
		return err
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Exchange rejected")
		return nil, err
	}
	ids := make([]types.Hash, len(signed.Body.Inputs))
	for i, in := range signed.Body.Inputs {
		ids[i] = in.Body.CurrencyID()
		if err := a.quota.checkCurrent(ids[i], envelopeHash(in)); err != nil {
			a.logger.Warn().Err(err).Msg("Exchange rejected")
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	if err := a.quota.consume(ids, crypto.Hash(signed.Bytes())); err != nil {
		return nil, err
	}
	a.logger.Info().
		Str("owner", signed.Signer().String()).
		Int("inputs", len(ids)).
		Int("outputs", len(out)).
		Msg("Exchanged currency")
	return out, nil
}
