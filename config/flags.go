package config

// Flags holds command-line overrides. The commands in cmd/ bind their flags
// into this struct; zero values mean "not set".
type Flags struct {
	// Core
	Network string
	DataDir string
	Config  string

	// RPC
	RPCAddr string
	RPCPort int

	// Chain backend / relays
	ElectrumServers []string
	Relays          []string

	// Store
	StoreDriver string
	StoreDSN    string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
	NoGate     bool
}

// ApplyFlags applies command-line overrides to cfg.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if len(f.ElectrumServers) > 0 {
		cfg.Electrum.Servers = f.ElectrumServers
	}
	if len(f.Relays) > 0 {
		cfg.Relays.URLs = f.Relays
	}
	if f.StoreDriver != "" {
		cfg.Store.Driver = StoreDriver(f.StoreDriver)
	}
	if f.StoreDSN != "" {
		cfg.Store.DSN = f.StoreDSN
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
	if f.NoGate {
		cfg.Payments.GateEnabled = false
	}
}
