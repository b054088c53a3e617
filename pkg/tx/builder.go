// Package tx builds and signs P2PKH transactions.
package tx

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/unlocker"
	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Builder constructs transactions incrementally. The first error is kept
// and returned by Sign or Build.
type Builder struct {
	tx  *bt.Tx
	err error
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{tx: bt.NewTx()}
}

// AddInput adds an input spending txid:vout, locked by lockingScript.
func (b *Builder) AddInput(txid string, vout uint32, lockingScript []byte, satoshis uint64) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.tx.From(txid, vout, hex.EncodeToString(lockingScript), satoshis); err != nil {
		b.err = fmt.Errorf("add input %s:%d: %w", txid, vout, err)
	}
	return b
}

// AddP2PKHOutput pays satoshis to address.
func (b *Builder) AddP2PKHOutput(address string, satoshis uint64) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.tx.AddP2PKHOutputFromAddress(address, satoshis); err != nil {
		b.err = fmt.Errorf("add output to %s: %w", address, err)
	}
	return b
}

// Sign signs every input with key. All inputs must be locked to key's
// P2PKH address.
func (b *Builder) Sign(ctx context.Context, key *bec.PrivateKey) error {
	if b.err != nil {
		return b.err
	}
	if len(b.tx.Inputs) == 0 {
		return fmt.Errorf("sign tx: no inputs")
	}
	if err := b.tx.FillAllInputs(ctx, &unlocker.Getter{PrivateKey: key}); err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	return nil
}

// Build returns the finished transaction.
func (b *Builder) Build() (*Transaction, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Transaction{tx: b.tx}, nil
}

// Transaction is a built transaction ready for broadcast.
type Transaction struct {
	tx *bt.Tx
}

// TxID returns the transaction hash in display (reversed) hex.
func (t *Transaction) TxID() string { return t.tx.TxID() }

// Hex returns the raw serialized transaction.
func (t *Transaction) Hex() string { return t.tx.String() }

// Size returns the serialized size in bytes.
func (t *Transaction) Size() int { return t.tx.Size() }

// InputCount returns the number of inputs.
func (t *Transaction) InputCount() int { return len(t.tx.Inputs) }

// OutputCount returns the number of outputs.
func (t *Transaction) OutputCount() int { return len(t.tx.Outputs) }

// OutputValue returns the value of output i.
func (t *Transaction) OutputValue(i int) uint64 { return t.tx.Outputs[i].Satoshis }

// Fee returns inputs minus outputs.
func (t *Transaction) Fee() uint64 {
	return t.tx.TotalInputSatoshis() - t.tx.TotalOutputSatoshis()
}

// Outpoints returns "txid:vout" for every input.
func (t *Transaction) Outpoints() []string {
	out := make([]string, len(t.tx.Inputs))
	for i, in := range t.tx.Inputs {
		out[i] = fmt.Sprintf("%s:%d", in.PreviousTxIDStr(), in.PreviousTxOutIndex)
	}
	return out
}

// P2PKHScript returns the locking script paying to address.
func P2PKHScript(address string) ([]byte, error) {
	s, err := bscript.NewP2PKHFromAddress(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	return *s, nil
}

// AddressFromPublicKey returns the P2PKH address of pub.
func AddressFromPublicKey(pub *bec.PublicKey, mainnet bool) (string, error) {
	a, err := bscript.NewAddressFromPublicKey(pub, mainnet)
	if err != nil {
		return "", err
	}
	return a.AddressString, nil
}
