package electrum

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/lashd/pkg/tx"
)

// testAddresses derives n distinct mainnet P2PKH addresses from keys 1..n.
func testAddresses(t *testing.T, n int) []string {
	t.Helper()
	out := make([]string, n)
	for i := range out {
		b := make([]byte, 32)
		b[31] = byte(i + 1)
		_, pub := bec.PrivateKeyFromBytes(b)
		addr, err := tx.AddressFromPublicKey(pub, true)
		require.NoError(t, err)
		out[i] = addr
	}
	return out
}

// balanceServer answers get_balance from a script hash table.
func balanceServer(t *testing.T, balances map[string]Balance, failing map[string]bool) *fakeServer {
	srv := newFakeServer(t)
	srv.handle(MethodGetBalance, func(p []json.RawMessage) (any, *errorObject) {
		sh := stringParam(t, p, 0)
		if failing[sh] {
			return nil, &errorObject{Code: 2, Message: "history too large"}
		}
		return balances[sh], nil
	})
	return srv
}

func TestFetchBalances_SingleConnection(t *testing.T) {
	addrs := testAddresses(t, 25)
	balances := make(map[string]Balance)
	for i, a := range addrs {
		sh, err := ScriptHash(a)
		require.NoError(t, err)
		balances[sh] = Balance{Confirmed: int64(i+1) * 1_000_000}
	}
	srv := balanceServer(t, balances, nil)

	d := newCountingDialer()
	c := New(d, Options{CallTimeout: 2 * time.Second})
	report, err := c.FetchBalances(context.Background(), []Endpoint{srv.endpoint()}, addrs)
	require.NoError(t, err)

	assert.Equal(t, int32(1), d.dials.Load())
	assert.Equal(t, 1, srv.connCount())
	require.Len(t, report.Balances, len(addrs))
	for i, b := range report.Balances {
		assert.Equal(t, addrs[i], b.Address, "order preserved")
		assert.Equal(t, int64(i+1)*1_000_000, b.Balance)
		assert.NoError(t, b.Err)
	}
	assert.Equal(t, 25, report.SuccessCount)
	assert.Zero(t, report.ErrorCount)
	// 1+2+...+25 = 325 * 0.01
	assert.Equal(t, int64(325_000_000), report.TotalSatoshis)
	assert.InDelta(t, 3.25, report.Total, 1e-9)
}

func TestFetchBalances_PerAddressFailures(t *testing.T) {
	addrs := testAddresses(t, 3)
	sh0, _ := ScriptHash(addrs[0])
	sh1, _ := ScriptHash(addrs[1])
	sh2, _ := ScriptHash(addrs[2])
	srv := balanceServer(t,
		map[string]Balance{
			sh0: {Confirmed: 150_000_000, Unconfirmed: 1_234_567},
			sh2: {Confirmed: 10},
		},
		map[string]bool{sh1: true},
	)

	input := []string{addrs[0], "bogus", addrs[1], addrs[2]}
	d := newCountingDialer()
	c := New(d, Options{CallTimeout: 2 * time.Second})
	report, err := c.FetchBalances(context.Background(), []Endpoint{srv.endpoint()}, input)
	require.NoError(t, err)
	assert.Equal(t, int32(1), d.dials.Load())

	require.Len(t, report.Balances, 4)
	assert.Equal(t, int64(151_234_567), report.Balances[0].Balance)
	assert.Error(t, report.Balances[1].Err)
	assert.NotEmpty(t, report.Balances[1].Error)

	var rpcErr *RPCError
	assert.True(t, errors.As(report.Balances[2].Err, &rpcErr))
	assert.Equal(t, int64(10), report.Balances[3].Balance)

	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 2, report.ErrorCount)
	assert.Equal(t, int64(151_234_577), report.TotalSatoshis)
	assert.InDelta(t, 1.51, report.Total, 1e-9)
}

func TestFetchBalances_SessionBreaksMidBatch(t *testing.T) {
	addrs := testAddresses(t, 4)
	srv := balanceServer(t, map[string]Balance{}, nil)
	srv.closeAfter = 1

	c := New(newCountingDialer(), Options{CallTimeout: 2 * time.Second})
	report, err := c.FetchBalances(context.Background(), []Endpoint{srv.endpoint()}, addrs)
	require.NoError(t, err)

	assert.NoError(t, report.Balances[0].Err)
	for _, b := range report.Balances[1:] {
		var connErr *ConnectionError
		assert.True(t, errors.As(b.Err, &connErr), "got %v", b.Err)
	}
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 3, report.ErrorCount)
}

func TestFetchBalances_Unreachable(t *testing.T) {
	c := New(newCountingDialer(), Options{CallTimeout: 2 * time.Second})
	_, err := c.FetchBalances(context.Background(), []Endpoint{deadEndpoint(t)}, testAddresses(t, 2))
	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr), "got %v", err)
}

func TestFetchBalances_NoReplyIsTimeout(t *testing.T) {
	srv := newFakeServer(t)
	srv.silent = true

	c := New(newCountingDialer(), Options{CallTimeout: 150 * time.Millisecond})
	_, err := c.FetchBalances(context.Background(), []Endpoint{srv.endpoint()}, testAddresses(t, 2))
	var timeoutErr *TimeoutError
	assert.True(t, errors.As(err, &timeoutErr), "got %v", err)
}

func TestFetchBalances_Empty(t *testing.T) {
	d := newCountingDialer()
	c := New(d, Options{})
	report, err := c.FetchBalances(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Balances)
	assert.Zero(t, d.dials.Load())
}

func TestDisplayAmount(t *testing.T) {
	tests := []struct {
		sats int64
		want float64
	}{
		{0, 0},
		{100_000_000, 1},
		{123_456_789, 1.23},
		{123_500_000, 1.24},
		{499_999, 0},
		{500_000, 0.01},
		{-150_000_000, -1.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, DisplayAmount(tt.sats), 1e-9, "sats=%d", tt.sats)
	}
}
