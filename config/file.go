package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. LASHD_LOG_LEVEL.
const EnvPrefix = "LASHD"

// ApplyFile overlays a YAML config file onto cfg. A missing file is not an
// error: defaults stay in place.
func ApplyFile(cfg *Config, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file decodes to io.EOF.
		if len(bytes.TrimSpace(buf)) == 0 {
			return nil
		}
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays LASHD_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Load builds the runtime config: defaults, then the config file, then the
// environment, then command-line flags (highest precedence).
func Load(flags *Flags) (*Config, error) {
	if flags == nil {
		flags = &Flags{}
	}

	network := Mainnet
	if flags.Network != "" {
		network = NetworkType(flags.Network)
	}
	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	if err := ApplyFile(cfg, configPath); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.LogsDir(),
	}
	if cfg.Store.Driver == StoreBadger {
		dirs = append(dirs, cfg.StoreDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}

// WriteDefaultConfig writes a commented default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	cfg := Default(network)
	body, err := yaml.Marshal(fileView(cfg))
	if err != nil {
		return err
	}
	header := `# lashd configuration
#
# Every key can be overridden with an environment variable, e.g.
#   LASHD_LOG_LEVEL=debug
#   LASHD_ELECTRUM_SERVERS=ssl://host:50002,tcp://host:50001
#   LASHD_STORE_DRIVER=postgres LASHD_STORE_DSN=postgres://...
#
# electrum.servers and relays.urls default to the network's built-in lists
# when left empty.

`
	return os.WriteFile(path, append([]byte(header), body...), 0644)
}

// fileView drops fields that should not be pinned in a generated file.
func fileView(cfg *Config) *Config {
	out := *cfg
	out.DataDir = ""
	return &out
}
