package currency

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// QuotaBackedSize is the encoded size of a QuotaBacked body.
const QuotaBackedSize = envelope.Overhead + quota.TokenSize + types.CertificateSize

// QuotaBacked is a signed quota token bound to a wallet.
type QuotaBacked struct {
	QuotaInfo  *quota.SignedToken `json:"quota_info"`
	WalletCert types.Certificate  `json:"wallet_cert"`
}

// SignedQuotaBacked is a quota-backed unit wrapped by its issuer.
type SignedQuotaBacked = envelope.Envelope[*QuotaBacked]

func (c *QuotaBacked) CurrencyID() types.Hash { return c.QuotaInfo.Body.ID }
func (c *QuotaBacked) Owner() types.Certificate { return c.WalletCert }
func (c *QuotaBacked) Amount() uint64 { return c.QuotaInfo.Body.Value }
func (c *QuotaBacked) Issuer() types.Certificate { return c.QuotaInfo.Body.DeliverySystem }

// Verify checks the embedded token envelope.
func (c *QuotaBacked) Verify() error {
	if c.QuotaInfo == nil || c.QuotaInfo.Body == nil {
		return fmt.Errorf("currency without quota: %w", types.ErrSignatureInvalid)
	}
	return quota.VerifyToken(c.QuotaInfo, c.QuotaInfo.Body.DeliverySystem)
}

// Bytes returns the canonical encoding:
//
//	envelope(token) | wallet_cert[33]
func (c *QuotaBacked) Bytes() []byte {
	w := wire.NewWriter(QuotaBackedSize)
	w.Raw(c.QuotaInfo.Bytes())
	w.Raw(c.WalletCert[:])
	return w.Bytes()
}

// DecodeQuotaBacked parses a quota-backed body.
func DecodeQuotaBacked(data []byte) (*QuotaBacked, error) {
	r := wire.NewReader(data)
	tok, err := envelope.Read(r, envelope.TagQuotaControlField, quota.DecodeToken)
	if err != nil {
		return nil, fmt.Errorf("quota info: %w", err)
	}
	owner, err := r.Certificate()
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &QuotaBacked{QuotaInfo: tok, WalletCert: owner}, nil
}

// DecodeSignedQuotaBacked parses an enveloped quota-backed unit.
func DecodeSignedQuotaBacked(data []byte) (*SignedQuotaBacked, error) {
	return envelope.Decode(data, envelope.TagDigitalCurrency, DecodeQuotaBacked)
}

// Bind turns a token issued by key into currency owned by owner.
func Bind(key crypto.Signer, token *quota.SignedToken, owner types.Certificate) (*SignedQuotaBacked, error) {
	if err := quota.VerifyToken(token, key.Certificate()); err != nil {
		return nil, fmt.Errorf("bind: %w", err)
	}
	return envelope.Seal(envelope.TagDigitalCurrency, &QuotaBacked{QuotaInfo: token, WalletCert: owner}, key)
}

// Reassign binds the token behind current to a new owner. The old envelope
// must verify and have been issued by key.
func Reassign(key crypto.Signer, current *SignedQuotaBacked, owner types.Certificate) (*SignedQuotaBacked, error) {
	if err := VerifyIssuedBy(current, key.Certificate()); err != nil {
		return nil, fmt.Errorf("reassign: %w", err)
	}
	return Bind(key, current.Body.QuotaInfo, owner)
}

// MintQuotaBacked returns a Minter that issues one fresh token of the
// requested amount and binds it to the owner.
func MintQuotaBacked(d *derive.Deriver) Minter[*QuotaBacked] {
	return func(key crypto.Signer, owner types.Certificate, amount uint64, tradeHash types.Hash) (*SignedQuotaBacked, error) {
		tokens, err := quota.Mint(d, []quota.Denomination{{Value: amount, Count: 1}}, key.Certificate(), tradeHash)
		if err != nil {
			return nil, err
		}
		sealed, err := quota.Seal(tokens, key)
		if err != nil {
			return nil, err
		}
		return Bind(key, sealed[0], owner)
	}
}
