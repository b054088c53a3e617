package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/lashd/config"
	"github.com/Klingon-tech/lashd/internal/rpc"
	"github.com/Klingon-tech/lashd/internal/rpcclient"
	"github.com/Klingon-tech/lashd/internal/store"
	"github.com/Klingon-tech/lashd/pkg/crypto"
	"github.com/Klingon-tech/lashd/pkg/nostr"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.lashd/directory.yaml", filepath.Join(home, ".lashd/directory.yaml")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandHome(tt.input); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// testConfig returns a testnet config with an in-memory store, an
// ephemeral RPC port and unreachable backends.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(config.Testnet)
	cfg.DataDir = t.TempDir()
	cfg.Log.Level = "error"
	cfg.Log.File = filepath.Join(cfg.DataDir, "lashd.log")
	cfg.RPC.Port = 0
	cfg.RPC.AllowedIPs = nil
	cfg.Store.Driver = config.StoreMemory
	cfg.Electrum.Servers = []string{"tcp://127.0.0.1:1"}
	cfg.Electrum.CallTimeout = 2 * time.Second
	cfg.Relays.URLs = []string{"ws://127.0.0.1:1"}
	cfg.Relays.PublishTimeout = time.Second
	cfg.Queue.Schedule = "@every 1h"
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestNode_StartStop(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(n.Stop)

	assert.NotEmpty(t, n.RPCAddr())
	assert.Equal(t, uint32(1), n.Params().CoinType)
	assert.NotNil(t, n.Payments())

	client := rpcclient.New("http://" + n.RPCAddr() + "/")

	// Chain backend is unreachable: the error is classified.
	err = client.Call("chain_getHeight", nil, nil)
	var rpcErr *rpcclient.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeConnection, rpcErr.Code)

	// The queue works without any reachable relay.
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ev := &nostr.Event{Kind: nostr.KindTextNote, Content: "hello", Tags: nostr.NewTags().Build()}
	require.NoError(t, ev.Sign(key))

	var row store.PendingEvent
	require.NoError(t, client.Call("relay_queueEvent", rpc.EventParam{Event: ev, OwnerKey: "owner"}, &row))
	assert.Equal(t, ev.ID, row.EventID)

	var pending rpc.PendingResult
	require.NoError(t, client.Call("relay_getPending", rpc.OwnerParam{OwnerKey: "owner"}, &pending))
	assert.Equal(t, 1, pending.Count)

	// Stop is idempotent.
	n.Stop()
	n.Stop()
}

func TestNode_RPCDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false

	n, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	defer n.Stop()
	assert.Empty(t, n.RPCAddr())
}

func TestNode_BadgerStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreBadger
	require.NoError(t, config.EnsureDataDirs(cfg))

	n, err := New(cfg)
	require.NoError(t, err)
	n.Stop()

	_, err = os.Stat(cfg.StoreDir())
	assert.NoError(t, err)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "sqlite"
	_, err := openStore(cfg)
	assert.Error(t, err)
}
