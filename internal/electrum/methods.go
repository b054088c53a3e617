package electrum

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Klingon-tech/lashd/pkg/crypto"
	"github.com/Klingon-tech/lashd/pkg/tx"
)

// Electrum method names.
const (
	MethodHeadersSubscribe = "blockchain.headers.subscribe"
	MethodGetBalance       = "blockchain.scripthash.get_balance"
	MethodListUnspent      = "blockchain.scripthash.listunspent"
	MethodBroadcast        = "blockchain.transaction.broadcast"
	MethodEstimateFee      = "blockchain.estimatefee"
	MethodRelayFee         = "blockchain.relayfee"
)

// headerSize is the size of a serialized block header.
const headerSize = 80

// Header is the chain tip reported by headers.subscribe.
type Header struct {
	Height int64     `json:"height"`
	Hex    string    `json:"hex"`
	Time   time.Time `json:"time"`
}

// Balance is a script hash balance in base units.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// Total returns confirmed plus unconfirmed.
func (b Balance) Total() int64 { return b.Confirmed + b.Unconfirmed }

// Unspent is one entry of listunspent.
type Unspent struct {
	TxHash string `json:"tx_hash"`
	TxPos  uint32 `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  uint64 `json:"value"`
}

// ScriptHash returns the Electrum script hash of a P2PKH address: the
// byte-reversed SHA-256 of its locking script, hex encoded.
func ScriptHash(address string) (string, error) {
	script, err := tx.P2PKHScript(address)
	if err != nil {
		return "", err
	}
	return crypto.ReverseHashHex(script), nil
}

// HeaderTime decodes the timestamp field of a hex block header.
func HeaderTime(headerHex string) (time.Time, error) {
	raw, err := hex.DecodeString(headerHex)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode header: %w", err)
	}
	if len(raw) < headerSize {
		return time.Time{}, fmt.Errorf("header too short: %d bytes", len(raw))
	}
	ts := binary.LittleEndian.Uint32(raw[68:72])
	return time.Unix(int64(ts), 0).UTC(), nil
}

// Tip returns the current chain tip.
func (c *Client) Tip(ctx context.Context, eps []Endpoint) (*Header, error) {
	var h Header
	if err := c.Call(ctx, eps, MethodHeadersSubscribe, nil, &h); err != nil {
		return nil, err
	}
	if h.Hex != "" {
		t, err := HeaderTime(h.Hex)
		if err != nil {
			return nil, err
		}
		h.Time = t
	}
	return &h, nil
}

// GetBalance returns the balance of a P2PKH address.
func (c *Client) GetBalance(ctx context.Context, eps []Endpoint, address string) (*Balance, error) {
	sh, err := ScriptHash(address)
	if err != nil {
		return nil, err
	}
	var b Balance
	if err := c.Call(ctx, eps, MethodGetBalance, []any{sh}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListUnspent returns the unspent outputs of a P2PKH address.
func (c *Client) ListUnspent(ctx context.Context, eps []Endpoint, address string) ([]Unspent, error) {
	sh, err := ScriptHash(address)
	if err != nil {
		return nil, err
	}
	var out []Unspent
	if err := c.Call(ctx, eps, MethodListUnspent, []any{sh}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Broadcast submits a raw transaction and returns the txid the server
// reports. It is never retried: a TimeoutError means the outcome is unknown.
func (c *Client) Broadcast(ctx context.Context, eps []Endpoint, rawHex string) (string, error) {
	var txid string
	if err := c.Call(ctx, eps, MethodBroadcast, []any{rawHex}, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// EstimateFee returns the server's fee estimate in coins per kilobyte for
// confirmation within blocks. A negative value means no estimate.
func (c *Client) EstimateFee(ctx context.Context, eps []Endpoint, blocks int) (float64, error) {
	var fee float64
	if err := c.Call(ctx, eps, MethodEstimateFee, []any{blocks}, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}

// RelayFee returns the server's minimum relay fee in coins per kilobyte.
func (c *Client) RelayFee(ctx context.Context, eps []Endpoint) (float64, error) {
	var fee float64
	if err := c.Call(ctx, eps, MethodRelayFee, nil, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}
