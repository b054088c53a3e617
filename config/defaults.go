package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8845,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Electrum: ElectrumConfig{
			// Servers left empty: the network defaults apply.
			CallTimeout: 10 * time.Second,
			DialTimeout: 5 * time.Second,
			InsecureTLS: true,
		},
		Relays: RelayConfig{
			PublishTimeout:  5 * time.Second,
			RefreshInterval: 5 * time.Minute,
		},
		Store: StoreConfig{
			Driver: StoreBadger,
		},
		Payments: PaymentConfig{
			FeeRate:     1,
			EstimateFee: false,
			DustLimit:   1,
			GateEnabled: true,
		},
		Queue: QueueConfig{
			Schedule:    "@every 30s",
			BatchSize:   50,
			MaxRetries:  10,
			Concurrency: 8,
			PublishRate: 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 8945
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
