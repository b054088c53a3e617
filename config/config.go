// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Network parameters: Defined per network in network.go, fixed at build time
//   - Node settings: Runtime configuration, can vary per deployment
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime settings)
// =============================================================================

// Config holds lashd runtime configuration.
type Config struct {
	// Core
	Network NetworkType `yaml:"network" envconfig:"NETWORK"`
	DataDir string      `yaml:"datadir,omitempty" envconfig:"DATADIR"`

	// JSON-RPC API server
	RPC RPCConfig `yaml:"rpc" envconfig:"RPC"`

	// Chain backend (Electrum servers)
	Electrum ElectrumConfig `yaml:"electrum" envconfig:"ELECTRUM"`

	// Nostr relays
	Relays RelayConfig `yaml:"relays" envconfig:"RELAYS"`

	// Persistence
	Store StoreConfig `yaml:"store" envconfig:"STORE"`

	// Payments and the block-height gate
	Payments PaymentConfig `yaml:"payments" envconfig:"PAYMENTS"`

	// Pending event queue
	Queue QueueConfig `yaml:"queue" envconfig:"QUEUE"`

	// Prometheus metrics
	Metrics MetricsConfig `yaml:"metrics" envconfig:"METRICS"`

	// Logging
	Log LogConfig `yaml:"log" envconfig:"LOG"`
}

// RPCConfig holds API server settings.
type RPCConfig struct {
	Enabled     bool     `yaml:"enabled" envconfig:"ENABLED"`
	Addr        string   `yaml:"addr" envconfig:"ADDR"`
	Port        int      `yaml:"port" envconfig:"PORT"`
	AllowedIPs  []string `yaml:"allowed" envconfig:"ALLOWED"`
	CORSOrigins []string `yaml:"cors" envconfig:"CORS"` // Allowed CORS origins ("*" = all).
}

// ElectrumConfig holds chain backend settings.
type ElectrumConfig struct {
	// Servers is the ranked endpoint list, e.g. "ssl://electrum.example.org:50002".
	// Empty means the network's default list.
	Servers     []string      `yaml:"servers" envconfig:"SERVERS"`
	CallTimeout time.Duration `yaml:"call_timeout" envconfig:"CALL_TIMEOUT"`
	DialTimeout time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	// InsecureTLS skips certificate verification; most public servers are self-signed.
	InsecureTLS bool `yaml:"insecure_tls" envconfig:"INSECURE_TLS"`
}

// RelayConfig holds Nostr relay settings.
type RelayConfig struct {
	URLs           []string      `yaml:"urls" envconfig:"URLS"`
	PublishTimeout time.Duration `yaml:"publish_timeout" envconfig:"PUBLISH_TIMEOUT"`
	// RefreshInterval controls how often the relay and server lists are re-read.
	RefreshInterval time.Duration `yaml:"refresh_interval" envconfig:"REFRESH_INTERVAL"`
	// DirectoryFile is an optional YAML file with "relays" and
	// "electrum_servers" lists, re-read every RefreshInterval.
	DirectoryFile string `yaml:"directory_file" envconfig:"DIRECTORY_FILE"`
}

// StoreDriver selects the persistence backend.
type StoreDriver string

const (
	StoreBadger   StoreDriver = "badger"
	StorePostgres StoreDriver = "postgres"
	StoreMemory   StoreDriver = "memory"
)

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver" envconfig:"DRIVER"`
	DSN    string      `yaml:"dsn" envconfig:"DSN"` // postgres only
}

// PaymentConfig holds transaction builder settings.
type PaymentConfig struct {
	FeeRate     uint64 `yaml:"fee_rate" envconfig:"FEE_RATE"` // base units per byte
	EstimateFee bool   `yaml:"estimate_fee" envconfig:"ESTIMATE_FEE"`
	DustLimit   uint64 `yaml:"dust_limit" envconfig:"DUST_LIMIT"`
	// GateEnabled turns on the one-transaction-per-block rate gate.
	GateEnabled bool `yaml:"gate_enabled" envconfig:"GATE_ENABLED"`
}

// QueueConfig holds pending event queue settings.
type QueueConfig struct {
	Schedule    string  `yaml:"schedule" envconfig:"SCHEDULE"` // cron schedule, e.g. "@every 30s"
	BatchSize   int     `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	MaxRetries  int     `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	Concurrency int     `yaml:"concurrency" envconfig:"CONCURRENCY"`
	PublishRate float64 `yaml:"publish_rate" envconfig:"PUBLISH_RATE"` // events per second, 0 = unlimited
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
	File  string `yaml:"file" envconfig:"FILE"`
	JSON  bool   `yaml:"json" envconfig:"JSON"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.lashd
//	macOS:   ~/Library/Application Support/Lashd
//	Windows: %APPDATA%\Lashd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lashd"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Lashd")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Lashd")
		}
		return filepath.Join(home, "AppData", "Roaming", "Lashd")
	default:
		return filepath.Join(home, ".lashd")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StoreDir returns the Badger database directory.
func (c *Config) StoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "store")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "lashd.yaml")
}

// Params returns the parameters of the configured network.
func (c *Config) Params() *NetworkParams {
	return ParamsFor(c.Network)
}

// ElectrumServers returns the configured servers, or the network defaults.
func (c *Config) ElectrumServers() []string {
	if len(c.Electrum.Servers) > 0 {
		return c.Electrum.Servers
	}
	return c.Params().ElectrumServers
}

// RelayURLs returns the configured relays, or the network defaults.
func (c *Config) RelayURLs() []string {
	if len(c.Relays.URLs) > 0 {
		return c.Relays.URLs
	}
	return c.Params().Relays
}
