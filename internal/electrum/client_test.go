package electrum

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{"ssl://electrum.example.org:50002", Endpoint{"electrum.example.org", 50002, true}, false},
		{"tls://10.0.0.1:50002", Endpoint{"10.0.0.1", 50002, true}, false},
		{"tcp://localhost:50001", Endpoint{"localhost", 50001, false}, false},
		{"localhost:50001", Endpoint{"localhost", 50001, false}, false},
		{"udp://localhost:1", Endpoint{}, true},
		{"ssl://nohost", Endpoint{}, true},
		{"tcp://host:0", Endpoint{}, true},
		{"tcp://:50001", Endpoint{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ep := Endpoint{Host: "a.example", Port: 50002, TLS: true}
	assert.Equal(t, "ssl://a.example:50002", ep.String())
}

func TestScriptHash(t *testing.T) {
	sh, err := ScriptHash("1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH")
	require.NoError(t, err)
	assert.Equal(t, "8bd2c4f79944cd6a3cb1730cf92c513ae259eb271d81918457f3753eebe14a3f", sh)

	_, err = ScriptHash("not-an-address")
	assert.Error(t, err)
}

func TestHeaderTime(t *testing.T) {
	raw := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(raw[68:72], 1700000000)
	got, err := HeaderTime(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got.Unix())

	_, err = HeaderTime("00ff")
	assert.Error(t, err)
}

func tipHandler(height int64, ts uint32) handlerFunc {
	raw := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(raw[68:72], ts)
	return func([]json.RawMessage) (any, *errorObject) {
		return map[string]any{"height": height, "hex": hex.EncodeToString(raw)}, nil
	}
}

func TestClient_Tip(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(MethodHeadersSubscribe, tipHandler(840000, 1700000000))

	c := New(newCountingDialer(), Options{CallTimeout: 2 * time.Second})
	h, err := c.Tip(context.Background(), []Endpoint{srv.endpoint()})
	require.NoError(t, err)
	assert.Equal(t, int64(840000), h.Height)
	assert.Equal(t, int64(1700000000), h.Time.Unix())
}

func TestClient_DialFallbackInOrder(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(MethodHeadersSubscribe, tipHandler(10, 1))

	d := newCountingDialer()
	c := New(d, Options{CallTimeout: 2 * time.Second})
	h, err := c.Tip(context.Background(), []Endpoint{deadEndpoint(t), srv.endpoint()})
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Height)
	assert.Equal(t, int32(2), d.dials.Load())
}

func TestClient_DefaultServers(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(MethodHeadersSubscribe, tipHandler(7, 1))

	c := New(newCountingDialer(), Options{
		CallTimeout: 2 * time.Second,
		Servers:     func() []Endpoint { return []Endpoint{srv.endpoint()} },
	})
	h, err := c.Tip(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), h.Height)
}

func TestClient_ConnectionError(t *testing.T) {
	c := New(newCountingDialer(), Options{CallTimeout: 2 * time.Second})
	_, err := c.Tip(context.Background(), []Endpoint{deadEndpoint(t), deadEndpoint(t)})

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %v", err)
	assert.Empty(t, connErr.Endpoint)

	_, err = c.Tip(context.Background(), nil)
	assert.True(t, errors.As(err, &connErr))
}

func TestClient_Timeout(t *testing.T) {
	srv := newFakeServer(t)
	srv.silent = true

	c := New(newCountingDialer(), Options{CallTimeout: 150 * time.Millisecond})
	start := time.Now()
	_, err := c.Broadcast(context.Background(), []Endpoint{srv.endpoint()}, "00")

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, MethodBroadcast, timeoutErr.Method)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_ContextDeadlineOverridesCallTimeout(t *testing.T) {
	srv := newFakeServer(t)
	srv.silent = true

	c := New(newCountingDialer(), Options{CallTimeout: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Tip(ctx, []Endpoint{srv.endpoint()})
	var timeoutErr *TimeoutError
	assert.True(t, errors.As(err, &timeoutErr), "got %v", err)
}

func TestClient_RPCError(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(MethodBroadcast, func([]json.RawMessage) (any, *errorObject) {
		return nil, &errorObject{Code: 1, Message: "the transaction was rejected by network rules"}
	})

	c := New(newCountingDialer(), Options{CallTimeout: 2 * time.Second})
	_, err := c.Broadcast(context.Background(), []Endpoint{srv.endpoint()}, "00")

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, 1, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "rejected")
}

func TestClient_ListUnspentAndFees(t *testing.T) {
	addr := "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"
	sh, err := ScriptHash(addr)
	require.NoError(t, err)

	srv := newFakeServer(t)
	srv.handle(MethodListUnspent, func(p []json.RawMessage) (any, *errorObject) {
		if stringParam(t, p, 0) != sh {
			return []any{}, nil
		}
		return []map[string]any{
			{"tx_hash": "aa", "tx_pos": 1, "height": 100, "value": 5000},
			{"tx_hash": "bb", "tx_pos": 0, "height": 0, "value": 700},
		}, nil
	})
	srv.handle(MethodEstimateFee, func([]json.RawMessage) (any, *errorObject) { return 0.00001, nil })
	srv.handle(MethodRelayFee, func([]json.RawMessage) (any, *errorObject) { return 0.0000025, nil })

	c := New(newCountingDialer(), Options{CallTimeout: 2 * time.Second})
	eps := []Endpoint{srv.endpoint()}

	utxos, err := c.ListUnspent(context.Background(), eps, addr)
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	assert.Equal(t, Unspent{TxHash: "aa", TxPos: 1, Height: 100, Value: 5000}, utxos[0])

	fee, err := c.EstimateFee(context.Background(), eps, 6)
	require.NoError(t, err)
	assert.InDelta(t, 0.00001, fee, 1e-12)

	relay, err := c.RelayFee(context.Background(), eps)
	require.NoError(t, err)
	assert.InDelta(t, 0.0000025, relay, 1e-12)
}
