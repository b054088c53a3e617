package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	for i, s := range cfg.Electrum.Servers {
		if err := validateServer(s); err != nil {
			return fmt.Errorf("electrum.servers[%d]: %w", i, err)
		}
	}
	if cfg.Electrum.CallTimeout <= 0 {
		return fmt.Errorf("electrum.call_timeout must be positive")
	}

	for i, r := range cfg.Relays.URLs {
		u, err := url.Parse(r)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("relays.urls[%d] must be a ws:// or wss:// URL", i)
		}
	}
	if cfg.Relays.PublishTimeout <= 0 {
		return fmt.Errorf("relays.publish_timeout must be positive")
	}
	if cfg.Relays.RefreshInterval <= 0 {
		return fmt.Errorf("relays.refresh_interval must be positive")
	}

	switch cfg.Store.Driver {
	case StoreBadger, StoreMemory:
	case StorePostgres:
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.driver=postgres requires store.dsn")
		}
	case "":
		cfg.Store.Driver = StoreBadger
	default:
		return fmt.Errorf("store.driver must be badger, postgres, or memory")
	}

	if cfg.Payments.FeeRate == 0 {
		return fmt.Errorf("payments.fee_rate must be positive")
	}

	if cfg.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive")
	}
	if cfg.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative")
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 1
	}
	if cfg.Queue.PublishRate < 0 {
		return fmt.Errorf("queue.publish_rate must not be negative")
	}
	if _, err := cron.ParseStandard(cfg.Queue.Schedule); err != nil {
		return fmt.Errorf("queue.schedule: %w", err)
	}

	return nil
}

// validateServer checks a "scheme://host:port" Electrum server entry.
func validateServer(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if u.Scheme != "tcp" && u.Scheme != "ssl" && u.Scheme != "tls" {
		return fmt.Errorf("scheme must be tcp, ssl or tls")
	}
	if u.Hostname() == "" || u.Port() == "" {
		return fmt.Errorf("host and port are required")
	}
	return nil
}
