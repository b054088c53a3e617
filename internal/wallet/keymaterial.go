package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/Klingon-tech/lashd/pkg/tx"
)

// ErrInvalidKeyMaterial is returned when key material cannot be decoded.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// SigningKey is a decoded private key and the P2PKH address it controls.
// Call Zero when done; keys are never cached.
type SigningKey struct {
	Key     *bec.PrivateKey
	Address string
}

// Zero wipes the private scalar.
func (s *SigningKey) Zero() {
	if s == nil || s.Key == nil {
		return
	}
	s.Key.D.SetInt64(0)
	s.Key = nil
}

// DerivationOptions control mnemonic derivation and address encoding.
type DerivationOptions struct {
	CoinType uint32
	Mainnet  bool
}

// ResolveKey decodes key material in one of three forms:
//
//	WIF                    e.g. "L1aW4aubDFB7yfras2S1mN3bqg9nwySY8nkoLmJebSLD5BWv3ENZ"
//	64 hex characters      raw private scalar
//	BIP-39 mnemonic        optionally followed by "|passphrase", derived at
//	                       m/44'/coinType'/0'/0/0
func ResolveKey(material string, opts DerivationOptions) (*SigningKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKeyMaterial)
	}

	var (
		priv *bec.PrivateKey
		err  error
	)
	switch {
	case isHex64(material):
		raw, _ := hex.DecodeString(material)
		priv, _ = bec.PrivateKeyFromBytes(raw)
		zero(raw)
	case strings.ContainsAny(material, " \t\n"):
		priv, err = keyFromMnemonic(material, opts.CoinType)
	default:
		priv, err = bec.PrivateKeyFromWif(material)
		if err != nil {
			err = fmt.Errorf("%w: not a WIF, hex key or mnemonic", ErrInvalidKeyMaterial)
		}
	}
	if err != nil {
		return nil, err
	}

	addr, err := tx.AddressFromPublicKey(priv.PubKey(), opts.Mainnet)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	return &SigningKey{Key: priv, Address: addr}, nil
}

func keyFromMnemonic(material string, coinType uint32) (*bec.PrivateKey, error) {
	mnemonic, passphrase, _ := strings.Cut(material, "|")
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")

	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	defer zero(seed)

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	child, err := master.DeriveBIP44(coinType, 0, ChangeExternal, 0)
	if err != nil {
		return nil, err
	}
	defer child.Zero()
	return child.PrivateKey()
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
