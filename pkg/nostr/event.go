// Package nostr implements the signed protocol events delivered to relays:
// canonical serialization, event ids and BIP-340 signatures.
package nostr

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Klingon-tech/lashd/pkg/crypto"
)

// Event kinds used by lashd.
const (
	KindMetadata   = 0
	KindTextNote   = 1
	KindReaction   = 7
	KindZapRequest = 9734
	KindZapReceipt = 9735
)

var (
	ErrInvalidID        = errors.New("event id does not match content")
	ErrInvalidSignature = errors.New("invalid event signature")
	ErrMalformed        = errors.New("malformed event")
)

// Event is a signed protocol event.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Parse decodes a JSON event and checks its shape. It does not verify the
// signature; call Verify for that.
func Parse(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := ev.checkShape(); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (e *Event) checkShape() error {
	if !isHex(e.ID, 64) {
		return fmt.Errorf("%w: id must be 64 hex chars", ErrMalformed)
	}
	if !isHex(e.PubKey, 64) {
		return fmt.Errorf("%w: pubkey must be 64 hex chars", ErrMalformed)
	}
	if !isHex(e.Sig, 128) {
		return fmt.Errorf("%w: sig must be 128 hex chars", ErrMalformed)
	}
	if e.Kind < 0 || e.Kind > 65535 {
		return fmt.Errorf("%w: kind %d out of range", ErrMalformed, e.Kind)
	}
	return nil
}

// Serialize returns the canonical form hashed into the event id:
// [0,<pubkey>,<created_at>,<kind>,<tags>,<content>].
func (e *Event) Serialize() []byte {
	var b bytes.Buffer
	b.WriteString(`[0,`)
	writeString(&b, e.PubKey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(e.Kind))
	b.WriteString(`,[`)
	for i, t := range e.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, s := range t.strings() {
			if j > 0 {
				b.WriteByte(',')
			}
			writeString(&b, s)
		}
		b.WriteByte(']')
	}
	b.WriteString(`],`)
	writeString(&b, e.Content)
	b.WriteByte(']')
	return b.Bytes()
}

// ComputeID returns the hex SHA-256 of the canonical serialization.
func (e *Event) ComputeID() string {
	return crypto.HashHex(e.Serialize())
}

// Sign fills PubKey, ID and Sig. CreatedAt is set to now when zero.
func (e *Event) Sign(key *crypto.PrivateKey) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	e.PubKey = key.PublicKeyHex()
	id := crypto.Hash(e.Serialize())
	sig, err := key.Sign(id[:])
	if err != nil {
		return err
	}
	e.ID = hex.EncodeToString(id[:])
	e.Sig = hex.EncodeToString(sig)
	return nil
}

// Resign returns a copy of e with a fresh timestamp, id and signature.
func (e *Event) Resign(key *crypto.PrivateKey, now time.Time) (*Event, error) {
	out := *e
	out.Tags = append(Tags(nil), e.Tags...)
	out.CreatedAt = now.Unix()
	if err := out.Sign(key); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify checks the id and signature.
func (e *Event) Verify() error {
	if err := e.checkShape(); err != nil {
		return err
	}
	if e.ComputeID() != e.ID {
		return ErrInvalidID
	}
	id, _ := hex.DecodeString(e.ID)
	sig, _ := hex.DecodeString(e.Sig)
	pub, _ := hex.DecodeString(e.PubKey)
	if !crypto.VerifySignature(id, sig, pub) {
		return ErrInvalidSignature
	}
	return nil
}

// Marshal encodes the event as JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// writeString writes s as a JSON string with the escaping rules of the
// canonical form: only quote, backslash and control characters are escaped.
func writeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 {
				fmt.Fprintf(b, `\u%04x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
