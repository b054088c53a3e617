// lashd is the payment and protocol-event daemon.
//
// Usage:
//
//	lashd [serve]            Run the daemon (default)
//	lashd init               Create the data directory and a default config
//	lashd --help             Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/lashd/config"
	"github.com/Klingon-tech/lashd/internal/node"
)

var flags config.Flags

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lashd",
		Short:         "Payment and protocol-event reliability daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveRun,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.Config, "config", "", "path to config file (default <datadir>/lashd.yaml)")
	pf.StringVar(&flags.Network, "network", "", "network: mainnet or testnet")
	pf.StringVar(&flags.DataDir, "datadir", "", "data directory")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&flags.LogFile, "log-file", "", "log file (default <datadir>/logs/lashd.log)")
	pf.BoolVar(&flags.LogJSON, "log-json", false, "log as JSON")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		flags.SetLogJSON = cmd.Flags().Changed("log-json")
	}

	// serve is the default command, so the root accepts its flags too.
	addServeFlags(rootCmd)
	rootCmd.AddCommand(serveCommand(), initCommand())
	return rootCmd
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE:  serveRun,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&flags.RPCAddr, "rpc-addr", "", "RPC listen address")
	f.IntVar(&flags.RPCPort, "rpc-port", 0, "RPC listen port")
	f.StringSliceVar(&flags.ElectrumServers, "electrum", nil, "Electrum servers, e.g. ssl://host:50002 (repeatable)")
	f.StringSliceVar(&flags.Relays, "relay", nil, "relay URLs, e.g. wss://relay.example (repeatable)")
	f.StringVar(&flags.StoreDriver, "store", "", "store driver: badger, postgres or memory")
	f.StringVar(&flags.StoreDSN, "store-dsn", "", "PostgreSQL DSN")
	f.BoolVar(&flags.NoGate, "no-gate", false, "disable the one-transaction-per-block gate")
}

func serveRun(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(&flags)
	if err != nil {
		return err
	}
	if err := config.EnsureDataDirs(cfg); err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		n.Stop()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
	return nil
}

func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory and a default config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(&flags)
			if err != nil {
				return err
			}
			if err := config.EnsureDataDirs(cfg); err != nil {
				return err
			}
			fmt.Printf("Data directory: %s\n", cfg.DataDir)
			fmt.Printf("Config file:    %s\n", cfg.ConfigFile())
			return nil
		},
	}
}
