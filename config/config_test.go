package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet} {
		cfg := Default(network)
		require.NoError(t, Validate(cfg), network)
		assert.Equal(t, network, cfg.Network)
	}
	assert.NotEqual(t, DefaultMainnet().RPC.Port, DefaultTestnet().RPC.Port)
}

func TestParams(t *testing.T) {
	main := ParamsFor(Mainnet)
	assert.True(t, main.Mainnet)
	assert.Equal(t, uint32(236), main.CoinType)

	test := ParamsFor(Testnet)
	assert.False(t, test.Mainnet)
	assert.Equal(t, uint32(1), test.CoinType)
	assert.NotEqual(t, main.ElectrumServers, test.ElectrumServers)
}

func TestServerAndRelayDefaults(t *testing.T) {
	cfg := DefaultMainnet()
	assert.Equal(t, MainnetParams().ElectrumServers, cfg.ElectrumServers())
	assert.Equal(t, MainnetParams().Relays, cfg.RelayURLs())

	cfg.Electrum.Servers = []string{"tcp://mine.example:50001"}
	cfg.Relays.URLs = []string{"wss://mine.example"}
	assert.Equal(t, []string{"tcp://mine.example:50001"}, cfg.ElectrumServers())
	assert.Equal(t, []string{"wss://mine.example"}, cfg.RelayURLs())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad network", func(c *Config) { c.Network = "regtest" }, "network"},
		{"bad port", func(c *Config) { c.RPC.Port = 70000 }, "rpc.port"},
		{"bad server scheme", func(c *Config) { c.Electrum.Servers = []string{"http://x:1"} }, "electrum.servers[0]"},
		{"server without port", func(c *Config) { c.Electrum.Servers = []string{"ssl://x"} }, "electrum.servers[0]"},
		{"zero call timeout", func(c *Config) { c.Electrum.CallTimeout = 0 }, "call_timeout"},
		{"bad relay", func(c *Config) { c.Relays.URLs = []string{"https://relay"} }, "relays.urls[0]"},
		{"zero publish timeout", func(c *Config) { c.Relays.PublishTimeout = 0 }, "publish_timeout"},
		{"zero refresh", func(c *Config) { c.Relays.RefreshInterval = 0 }, "refresh_interval"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = StorePostgres }, "store.dsn"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"zero fee rate", func(c *Config) { c.Payments.FeeRate = 0 }, "fee_rate"},
		{"zero batch", func(c *Config) { c.Queue.BatchSize = 0 }, "batch_size"},
		{"negative retries", func(c *Config) { c.Queue.MaxRetries = -1 }, "max_retries"},
		{"negative rate", func(c *Config) { c.Queue.PublishRate = -1 }, "publish_rate"},
		{"bad schedule", func(c *Config) { c.Queue.Schedule = "every now and then" }, "queue.schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Store.Driver = ""
	cfg.Queue.Concurrency = 0
	require.NoError(t, Validate(cfg))
	assert.Equal(t, StoreBadger, cfg.Store.Driver)
	assert.Equal(t, 1, cfg.Queue.Concurrency)

	cfg.Store.Driver = StorePostgres
	cfg.Store.DSN = "postgres://lash@localhost/lash?sslmode=disable"
	assert.NoError(t, Validate(cfg))
}

func TestApplyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lashd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
electrum:
  servers: [ssl://one.example:50002]
  call_timeout: 3s
queue:
  batch_size: 7
payments:
  gate_enabled: false
`), 0o600))

	cfg := DefaultMainnet()
	require.NoError(t, ApplyFile(cfg, path))
	assert.Equal(t, []string{"ssl://one.example:50002"}, cfg.Electrum.Servers)
	assert.Equal(t, 3*time.Second, cfg.Electrum.CallTimeout)
	assert.Equal(t, 7, cfg.Queue.BatchSize)
	assert.False(t, cfg.Payments.GateEnabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, 8845, cfg.RPC.Port)
}

func TestApplyFile_MissingAndEmpty(t *testing.T) {
	cfg := DefaultMainnet()
	require.NoError(t, ApplyFile(cfg, filepath.Join(t.TempDir(), "nope.yaml")))

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	require.NoError(t, ApplyFile(cfg, empty))
	assert.Equal(t, DefaultMainnet().Queue, cfg.Queue)
}

func TestApplyFile_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lashd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  batchsize: 3\n"), 0o600))
	err := ApplyFile(DefaultMainnet(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batchsize")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LASHD_LOG_LEVEL", "debug")
	t.Setenv("LASHD_ELECTRUM_SERVERS", "ssl://a.example:50002,tcp://b.example:50001")
	t.Setenv("LASHD_QUEUE_MAX_RETRIES", "4")
	t.Setenv("LASHD_RELAYS_PUBLISH_TIMEOUT", "2s")

	cfg := DefaultMainnet()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"ssl://a.example:50002", "tcp://b.example:50001"}, cfg.Electrum.Servers)
	assert.Equal(t, 4, cfg.Queue.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Relays.PublishTimeout)
	assert.Equal(t, 50, cfg.Queue.BatchSize)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lashd.yaml"), []byte("log:\n  level: warn\nrpc:\n  port: 9000\n"), 0o600))
	t.Setenv("LASHD_RPC_PORT", "9100")

	cfg, err := Load(&Flags{DataDir: dir, Network: "testnet", LogLevel: "error"})
	require.NoError(t, err)
	assert.Equal(t, Testnet, cfg.Network)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 9100, cfg.RPC.Port, "env beats file")
	assert.Equal(t, "error", cfg.Log.Level, "flags beat file")
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(&Flags{DataDir: dir, Network: "regtest"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestApplyFlags(t *testing.T) {
	cfg := DefaultMainnet()
	ApplyFlags(cfg, &Flags{
		RPCPort:         1234,
		ElectrumServers: []string{"tcp://x.example:1"},
		StoreDriver:     "memory",
		SetLogJSON:      true,
		LogJSON:         true,
		NoGate:          true,
	})
	assert.Equal(t, 1234, cfg.RPC.Port)
	assert.Equal(t, []string{"tcp://x.example:1"}, cfg.Electrum.Servers)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.True(t, cfg.Log.JSON)
	assert.False(t, cfg.Payments.GateEnabled)
}

func TestEnsureDataDirs(t *testing.T) {
	cfg := DefaultTestnet()
	cfg.DataDir = t.TempDir()
	require.NoError(t, EnsureDataDirs(cfg))

	for _, dir := range []string{cfg.NetworkDataDir(), cfg.LogsDir(), cfg.StoreDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	body, err := os.ReadFile(cfg.ConfigFile())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "# lashd configuration"))

	// The generated file loads back to the defaults.
	loaded, err := Load(&Flags{DataDir: cfg.DataDir, Network: "testnet"})
	require.NoError(t, err)
	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, DefaultTestnet().Queue, loaded.Queue)
	assert.Equal(t, DefaultTestnet().Electrum.CallTimeout, loaded.Electrum.CallTimeout)
}
