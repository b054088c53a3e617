package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/lashd/config"
)

func TestServeFlags_AcceptedOnRootAndServe(t *testing.T) {
	args := []string{
		"--relay", "wss://relay.example",
		"--electrum", "ssl://e.example:50002",
		"--rpc-port", "9000",
		"--store", "memory",
		"--store-dsn", "postgres://x",
		"--no-gate",
		"--network", "testnet",
	}

	for _, name := range []string{"root", "serve"} {
		t.Run(name, func(t *testing.T) {
			flags = config.Flags{}
			t.Cleanup(func() { flags = config.Flags{} })

			root := newRootCommand()
			cmd := root
			if name == "serve" {
				found, _, err := root.Find([]string{"serve"})
				require.NoError(t, err)
				cmd = found
			}
			require.NoError(t, cmd.ParseFlags(args))

			assert.Equal(t, []string{"wss://relay.example"}, flags.Relays)
			assert.Equal(t, []string{"ssl://e.example:50002"}, flags.ElectrumServers)
			assert.Equal(t, 9000, flags.RPCPort)
			assert.Equal(t, "memory", flags.StoreDriver)
			assert.Equal(t, "postgres://x", flags.StoreDSN)
			assert.True(t, flags.NoGate)
			assert.Equal(t, "testnet", flags.Network)
		})
	}
}

func TestInitCommand_HasNoServeFlags(t *testing.T) {
	root := newRootCommand()
	cmd, _, err := root.Find([]string{"init"})
	require.NoError(t, err)
	assert.Error(t, cmd.ParseFlags([]string{"--relay", "wss://relay.example"}))
}
