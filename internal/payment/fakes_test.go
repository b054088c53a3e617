package payment

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/bsv-blockchain/go-bt/v2"
	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/lashd/internal/electrum"
	"github.com/Klingon-tech/lashd/pkg/tx"
)

// Key 1: "0000...01", address 1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH.
const (
	senderKeyHex  = "0000000000000000000000000000000000000000000000000000000000000001"
	senderAddress = "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"
)

// fakeChain serves unspent outputs and records broadcasts.
type fakeChain struct {
	mu           sync.Mutex
	unspent      []electrum.Unspent
	listErr      error
	broadcastErr error
	feePerKB     float64
	broadcasts   []string
	listCalls    int
	// onBroadcast runs before a broadcast is recorded; an error fails it.
	onBroadcast func(ctx context.Context) error
}

func (f *fakeChain) ListUnspent(context.Context, []electrum.Endpoint, string) ([]electrum.Unspent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.unspent, f.listErr
}

func (f *fakeChain) Broadcast(ctx context.Context, _ []electrum.Endpoint, rawHex string) (string, error) {
	var hookErr error
	if f.onBroadcast != nil {
		hookErr = f.onBroadcast(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, rawHex)
	if hookErr != nil {
		return "", hookErr
	}
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}
	parsed, err := bt.NewTxFromString(rawHex)
	if err != nil {
		return "", err
	}
	return parsed.TxID(), nil
}

func (f *fakeChain) EstimateFee(context.Context, []electrum.Endpoint, int) (float64, error) {
	return f.feePerKB, nil
}

func (f *fakeChain) lastTx(t *testing.T) *bt.Tx {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.broadcasts)
	parsed, err := bt.NewTxFromString(f.broadcasts[len(f.broadcasts)-1])
	require.NoError(t, err)
	return parsed
}

func utxo(txByte byte, vout uint32, value uint64) electrum.Unspent {
	return electrum.Unspent{
		TxHash: string(bytes.Repeat([]byte{"0123456789abcdef"[txByte%16]}, 64)),
		TxPos:  vout,
		Height: 100,
		Value:  value,
	}
}

// addressOf returns the mainnet address of private key n.
func addressOf(t *testing.T, n byte) string {
	t.Helper()
	b := make([]byte, 32)
	b[31] = n
	_, pub := bec.PrivateKeyFromBytes(b)
	addr, err := tx.AddressFromPublicKey(pub, true)
	require.NoError(t, err)
	return addr
}

func requirePaysTo(t *testing.T, out *bt.Output, address string, amount uint64) {
	t.Helper()
	script, err := tx.P2PKHScript(address)
	require.NoError(t, err)
	require.Equal(t, amount, out.Satoshis)
	require.True(t, bytes.Equal(script, []byte(*out.LockingScript)), "output does not pay %s", address)
}

func newTestSender(chain Chain) *Sender {
	return NewSender(chain, SenderOptions{FeeRate: 1, MinFeeRate: 1, DustLimit: 1, CoinType: 236, Mainnet: true})
}
