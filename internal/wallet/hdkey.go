package wallet

import (
	"fmt"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44 path: m/44'/coinType'/account'/change/index
const (
	PurposeBIP44   = bip32.FirstHardenedChild + 44
	ChangeExternal = 0
	ChangeInternal = 1
)

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DerivePath derives a key along a sequence of indices.
// Add bip32.FirstHardenedChild to an index for hardened derivation.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k.key
	for _, idx := range indices {
		child, err := current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
		current = child
	}
	return &HDKey{key: current}, nil
}

// DeriveBIP44 derives m/44'/coinType'/account'/change/index.
func (k *HDKey) DeriveBIP44(coinType, account, change, index uint32) (*HDKey, error) {
	return k.DerivePath(
		PurposeBIP44,
		bip32.FirstHardenedChild+coinType,
		bip32.FirstHardenedChild+account,
		change,
		index,
	)
}

// PrivateKey returns the secp256k1 private key. Fails for public-only keys.
func (k *HDKey) PrivateKey() (*bec.PrivateKey, error) {
	if !k.key.IsPrivate {
		return nil, fmt.Errorf("public-only key has no private key")
	}
	// bip32 Key.Key is 33 bytes with a leading 0x00 for private keys.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	priv, _ := bec.PrivateKeyFromBytes(raw)
	return priv, nil
}

// Zero wipes the key bytes.
func (k *HDKey) Zero() {
	for i := range k.key.Key {
		k.key.Key[i] = 0
	}
	for i := range k.key.ChainCode {
		k.key.ChainCode[i] = 0
	}
}
