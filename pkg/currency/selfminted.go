package currency

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if cborDec, err = (cbor.DecOptions{MaxArrayElements: 16}).DecMode(); err != nil {
		panic(err)
	}
}

// SelfMinted is a currency unit that carries its own identity and amount.
type SelfMinted struct {
	ID         types.Hash        `json:"id"`
	OwnerCert  types.Certificate `json:"owner"`
	Value      uint64            `json:"amount"`
	IssuerCert types.Certificate `json:"issuer"`
	Script     []byte            `json:"script"`
	Addition   []byte            `json:"addition"`
}

// SignedSelfMinted is a self-minted unit wrapped by its issuer.
type SignedSelfMinted = envelope.Envelope[*SelfMinted]

// selfMintedCBOR is the on-wire array form.
type selfMintedCBOR struct {
	_        struct{} `cbor:",toarray"`
	ID       []byte
	Owner    []byte
	Amount   uint64
	Issuer   []byte
	Script   []byte
	Addition []byte
}

func (c *SelfMinted) CurrencyID() types.Hash { return c.ID }
func (c *SelfMinted) Owner() types.Certificate { return c.OwnerCert }
func (c *SelfMinted) Amount() uint64 { return c.Value }
func (c *SelfMinted) Issuer() types.Certificate { return c.IssuerCert }

// Verify has nothing embedded to check.
func (c *SelfMinted) Verify() error { return nil }

// Bytes returns the deterministic CBOR encoding.
func (c *SelfMinted) Bytes() []byte {
	b, err := cborEnc.Marshal(selfMintedCBOR{
		ID:       c.ID[:],
		Owner:    c.OwnerCert[:],
		Amount:   c.Value,
		Issuer:   c.IssuerCert[:],
		Script:   c.Script,
		Addition: c.Addition,
	})
	if err != nil {
		// Only byte strings and an integer; encoding cannot fail.
		panic(fmt.Sprintf("encode self-minted currency: %v", err))
	}
	return b
}

// DecodeSelfMinted parses a CBOR-encoded self-minted unit.
func DecodeSelfMinted(data []byte) (*SelfMinted, error) {
	var raw selfMintedCBOR
	if err := cborDec.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: self-minted currency: %v", types.ErrDecode, err)
	}
	if len(raw.ID) != types.HashSize {
		return nil, fmt.Errorf("%w: currency id must be %d bytes, got %d", types.ErrDecode, types.HashSize, len(raw.ID))
	}
	owner, err := types.CertificateFromBytes(raw.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	issuer, err := types.CertificateFromBytes(raw.Issuer)
	if err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	c := &SelfMinted{
		OwnerCert:  owner,
		Value:      raw.Amount,
		IssuerCert: issuer,
		Script:     raw.Script,
		Addition:   raw.Addition,
	}
	copy(c.ID[:], raw.ID)
	return c, nil
}

// DecodeSignedSelfMinted parses an enveloped self-minted unit.
func DecodeSignedSelfMinted(data []byte) (*SignedSelfMinted, error) {
	return envelope.Decode(data, envelope.TagDigitalCurrency, DecodeSelfMinted)
}

// Issue creates a self-minted unit signed by key, with
// id = Derive(timestamp, owner, amount, issuer).
func Issue(key crypto.Signer, d *derive.Deriver, owner types.Certificate, amount uint64, script, addition []byte) (*SignedSelfMinted, error) {
	issuer := key.Certificate()
	id, err := d.Derive(derive.Int64(d.Now()), owner[:], derive.Uint64(amount), issuer[:])
	if err != nil {
		return nil, fmt.Errorf("currency id: %w", err)
	}
	return envelope.Seal(envelope.TagDigitalCurrency, &SelfMinted{
		ID:         id,
		OwnerCert:  owner,
		Value:      amount,
		IssuerCert: issuer,
		Script:     script,
		Addition:   addition,
	}, key)
}

// ReassignSelfMinted re-binds current to a new owner. Identity, amount,
// script and addition are kept.
func ReassignSelfMinted(key crypto.Signer, current *SignedSelfMinted, owner types.Certificate) (*SignedSelfMinted, error) {
	if err := VerifyIssuedBy(current, key.Certificate()); err != nil {
		return nil, fmt.Errorf("reassign: %w", err)
	}
	next := *current.Body
	next.OwnerCert = owner
	return envelope.Seal(envelope.TagDigitalCurrency, &next, key)
}

// MintSelfMinted returns a Minter that issues self-minted units. The trade
// hash is recorded in the addition field.
func MintSelfMinted(d *derive.Deriver) Minter[*SelfMinted] {
	return func(key crypto.Signer, owner types.Certificate, amount uint64, tradeHash types.Hash) (*SignedSelfMinted, error) {
		return Issue(key, d, owner, amount, nil, tradeHash.Bytes())
	}
}
