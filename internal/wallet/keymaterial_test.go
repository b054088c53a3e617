package wallet

import (
	"errors"
	"testing"
)

var mainnet = DerivationOptions{CoinType: 0, Mainnet: true}

func TestResolveKey_WIF(t *testing.T) {
	// Private key 1, compressed.
	sk, err := ResolveKey("KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn", mainnet)
	if err != nil {
		t.Fatalf("ResolveKey() error: %v", err)
	}
	if sk.Address != "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH" {
		t.Errorf("Address = %s", sk.Address)
	}
}

func TestResolveKey_Hex(t *testing.T) {
	sk, err := ResolveKey("0000000000000000000000000000000000000000000000000000000000000001", mainnet)
	if err != nil {
		t.Fatalf("ResolveKey() error: %v", err)
	}
	if sk.Address != "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH" {
		t.Errorf("Address = %s", sk.Address)
	}
	sk.Zero()
	if sk.Key != nil {
		t.Error("Zero() should drop the key")
	}
}

func TestResolveKey_Mnemonic(t *testing.T) {
	// BIP-44 m/44'/0'/0'/0/0 of the "abandon ... about" vector.
	sk, err := ResolveKey(abandonAbout, mainnet)
	if err != nil {
		t.Fatalf("ResolveKey() error: %v", err)
	}
	if sk.Address != "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA" {
		t.Errorf("Address = %s", sk.Address)
	}

	withPass, err := ResolveKey(abandonAbout+"|secret", mainnet)
	if err != nil {
		t.Fatalf("ResolveKey(passphrase) error: %v", err)
	}
	if withPass.Address == sk.Address {
		t.Error("passphrase should change the derived key")
	}

	other, err := ResolveKey(abandonAbout, DerivationOptions{CoinType: 236, Mainnet: true})
	if err != nil {
		t.Fatalf("ResolveKey(coin 236) error: %v", err)
	}
	if other.Address == sk.Address {
		t.Error("coin type should change the derived key")
	}
}

func TestResolveKey_Invalid(t *testing.T) {
	for _, m := range []string{"", "   ", "notakey", "abandon abandon abandon", "zz" + string(make([]byte, 62))} {
		if _, err := ResolveKey(m, mainnet); !errors.Is(err, ErrInvalidKeyMaterial) {
			t.Errorf("ResolveKey(%q) err = %v, want ErrInvalidKeyMaterial", m, err)
		}
	}
}
