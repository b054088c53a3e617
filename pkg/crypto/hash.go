// Package crypto provides the hashing and BIP-340 signing primitives used
// for Nostr events and Electrum script hashes.
package crypto

import (
	"encoding/hex"

	sdkhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

// HashSize is the size of a SHA-256 digest.
const HashSize = 32

// Hash computes the SHA-256 hash of the input data.
func Hash(data []byte) [HashSize]byte {
	var h [HashSize]byte
	copy(h[:], sdkhash.Sha256(data))
	return h
}

// HashHex returns the lowercase hex SHA-256 of data.
func HashHex(data []byte) string {
	h := Hash(data)
	return hex.EncodeToString(h[:])
}

// ReverseHashHex returns the hex SHA-256 of data with the byte order
// reversed, the form Electrum uses for script hashes.
func ReverseHashHex(data []byte) string {
	h := Hash(data)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h[:])
}
