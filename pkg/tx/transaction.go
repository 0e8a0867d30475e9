// Package tx defines transactions that spend currency units and the
// settlement step that mints their outputs.
package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

const (
	outputSize = types.CertificateSize + 8
	signSize   = types.CertificateSize + types.SignatureSize
)

// Output pays amount to recipient.
type Output struct {
	Recipient types.Certificate `json:"recipient"`
	Amount    uint64            `json:"amount"`
}

// OwnerSignature is one input owner's signature over the signing bytes.
type OwnerSignature struct {
	Cert      types.Certificate `json:"cert"`
	Signature types.Signature   `json:"signature"`
}

// Transaction spends a set of currency units into a set of outputs. Every
// distinct input owner must sign before the transaction validates.
type Transaction[C currency.Unit] struct {
	TxID    types.Hash              `json:"txid"`
	Inputs  []*envelope.Envelope[C] `json:"inputs"`
	Outputs []Output                `json:"outputs"`
	Signs   []OwnerSignature        `json:"signs"`
}

// State is the signing progress of a transaction.
type State int

// Signing states.
const (
	StateConstructed State = iota
	StatePartiallySigned
	StateFullySigned
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StatePartiallySigned:
		return "partially-signed"
	case StateFullySigned:
		return "fully-signed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// New builds an unsigned transaction with
// txid = Derive(signing bytes, timestamp).
func New[C currency.Unit](d *derive.Deriver, inputs []*envelope.Envelope[C], outputs []Output) (*Transaction[C], error) {
	tx := &Transaction[C]{
		Inputs:  append([]*envelope.Envelope[C](nil), inputs...),
		Outputs: append([]Output(nil), outputs...),
	}
	id, err := d.Derive(tx.SigningBytes(), derive.Int64(d.Now()))
	if err != nil {
		return nil, fmt.Errorf("txid: %w", err)
	}
	tx.TxID = id
	return tx, nil
}

// SigningBytes returns the bytes every owner signs:
//
//	count:u32 | count x envelope(currency) | count:u32 | count x (recipient[33] | amount:u64)
func (tx *Transaction[C]) SigningBytes() []byte {
	w := wire.NewWriter(8 + len(tx.Outputs)*outputSize)
	envelope.WriteSeq(w, tx.Inputs)
	writeOutputs(w, tx.Outputs)
	return w.Bytes()
}

// Hash returns the hash of the signing bytes. Settlement uses it as the
// trade hash of the minted currency.
func (tx *Transaction[C]) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// Owners returns the distinct input owners in order of first appearance.
func (tx *Transaction[C]) Owners() []types.Certificate {
	seen := make(map[types.Certificate]bool, len(tx.Inputs))
	var owners []types.Certificate
	for _, in := range tx.Inputs {
		o := in.Body.Owner()
		if !seen[o] {
			seen[o] = true
			owners = append(owners, o)
		}
	}
	return owners
}

// Sign adds key's signature. The key must own at least one input; a
// previous signature by the same key is replaced.
func (tx *Transaction[C]) Sign(key crypto.Signer) error {
	cert := key.Certificate()
	owner := false
	for _, o := range tx.Owners() {
		if o == cert {
			owner = true
			break
		}
	}
	if !owner {
		return fmt.Errorf("%s: %w", cert, ErrNotOwner)
	}

	sig, err := key.Sign(tx.SigningBytes())
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	for i := range tx.Signs {
		if tx.Signs[i].Cert == cert {
			tx.Signs[i].Signature = sig
			return nil
		}
	}
	tx.Signs = append(tx.Signs, OwnerSignature{Cert: cert, Signature: sig})
	return nil
}

// State reports how many owners have attached a signature. It does not
// verify signatures; use Validate for that.
func (tx *Transaction[C]) State() State {
	owners := tx.Owners()
	signed := make(map[types.Certificate]bool, len(tx.Signs))
	for _, s := range tx.Signs {
		signed[s.Cert] = true
	}
	covered := 0
	for _, o := range owners {
		if signed[o] {
			covered++
		}
	}
	switch {
	case len(owners) > 0 && covered == len(owners):
		return StateFullySigned
	case covered > 0:
		return StatePartiallySigned
	default:
		return StateConstructed
	}
}

// Bytes returns the wire encoding:
//
//	txid[32] | count:u32 | outputs | count:u32 | envelopes | count:u32 | (cert[33] | sig[64])
func (tx *Transaction[C]) Bytes() []byte {
	w := wire.NewWriter(types.HashSize + 12 + len(tx.Outputs)*outputSize + len(tx.Signs)*signSize)
	w.Raw(tx.TxID[:])
	writeOutputs(w, tx.Outputs)
	envelope.WriteSeq(w, tx.Inputs)
	w.Count(len(tx.Signs))
	for _, s := range tx.Signs {
		w.Raw(s.Cert[:])
		w.Raw(s.Signature[:])
	}
	return w.Bytes()
}

// Decode parses a transaction whose inputs are decoded with decode.
func Decode[C currency.Unit](data []byte, decode envelope.Decoder[C]) (*Transaction[C], error) {
	r := wire.NewReader(data)
	var (
		tx  Transaction[C]
		err error
	)
	if tx.TxID, err = r.Hash(); err != nil {
		return nil, err
	}
	if tx.Outputs, err = readOutputs(r); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	if tx.Inputs, err = envelope.ReadSeq(r, envelope.TagDigitalCurrency, decode); err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	n, err := r.Count(signSize)
	if err != nil {
		return nil, fmt.Errorf("signs: %w", err)
	}
	tx.Signs = make([]OwnerSignature, n)
	for i := range tx.Signs {
		if tx.Signs[i].Cert, err = r.Certificate(); err != nil {
			return nil, fmt.Errorf("sign %d: %w", i, err)
		}
		if tx.Signs[i].Signature, err = r.Signature(); err != nil {
			return nil, fmt.Errorf("sign %d: %w", i, err)
		}
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func writeOutputs(w *wire.Writer, outputs []Output) {
	w.Count(len(outputs))
	for _, o := range outputs {
		w.Raw(o.Recipient[:])
		w.Uint64(o.Amount)
	}
}

func readOutputs(r *wire.Reader) ([]Output, error) {
	n, err := r.Count(outputSize)
	if err != nil {
		return nil, err
	}
	out := make([]Output, n)
	for i := range out {
		if out[i].Recipient, err = r.Certificate(); err != nil {
			return nil, err
		}
		if out[i].Amount, err = r.Uint64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
