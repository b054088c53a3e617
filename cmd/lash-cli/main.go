// lash-cli is a command-line client for a running lashd.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/lashd/config"
	"github.com/Klingon-tech/lashd/internal/electrum"
	"github.com/Klingon-tech/lashd/internal/payment"
	"github.com/Klingon-tech/lashd/internal/rpc"
	"github.com/Klingon-tech/lashd/internal/rpcclient"
)

var globalFlags = struct {
	rpcURL    string
	timeout   time.Duration
	endpoints []string
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           "lash-cli",
		Short:         "Command-line client for lashd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.rpcURL, "rpc", "http://127.0.0.1:8845", "lashd RPC URL")
	pf.DurationVar(&globalFlags.timeout, "timeout", 2*time.Minute, "request timeout")
	pf.StringSliceVar(&globalFlags.endpoints, "electrum", nil, "Electrum servers overriding the daemon's list")

	rootCmd.AddCommand(
		heightCommand(),
		balancesCommand(),
		eligibilityCommand(),
		sendCommand(),
		sendBatchCommand(),
		receiptCommand(),
		publishCommand(),
		queueCommand(),
		pendingCommand(),
		retryCommand(),
		resolveCommand(),
		keygenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func client() *rpcclient.Client {
	return rpcclient.NewWithTimeout(globalFlags.rpcURL, globalFlags.timeout)
}

// ── Chain ───────────────────────────────────────────────────────────────

func heightCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "height",
		Short: "Show the current chain height",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var h rpc.HeightResult
			if err := client().CallContext(cmd.Context(), "chain_getHeight",
				rpc.EndpointsParam{Endpoints: globalFlags.endpoints}, &h); err != nil {
				return err
			}
			fmt.Printf("Height:     %d\n", h.Height)
			fmt.Printf("Block time: %s\n", h.BlockTime.Format(time.RFC3339))
			return nil
		},
	}
}

func balancesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balances ADDRESS...",
		Short: "Show balances of one or more addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var report electrum.BalanceReport
			if err := client().CallContext(cmd.Context(), "wallet_getBalances", rpc.BalancesParam{
				Addresses: args,
				Endpoints: globalFlags.endpoints,
			}, &report); err != nil {
				return err
			}
			for _, b := range report.Balances {
				if b.Error != "" {
					fmt.Printf("%-36s  error: %s\n", b.Address, b.Error)
					continue
				}
				fmt.Printf("%-36s  %s", b.Address, formatAmount(uint64(max(b.Balance, 0))))
				if b.Unconfirmed != 0 {
					fmt.Printf("  (unconfirmed %d)", b.Unconfirmed)
				}
				fmt.Println()
			}
			fmt.Printf("Total: %.2f (%d ok, %d failed)\n", report.Total, report.SuccessCount, report.ErrorCount)
			return nil
		},
	}
}

func eligibilityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility SENDER_PUBKEY",
		Short: "Check whether a sender may broadcast at the current block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e map[string]interface{}
			if err := client().CallContext(cmd.Context(), "gate_checkEligibility",
				rpc.SenderParam{SenderPubkey: args[0]}, &e); err != nil {
				return err
			}
			return printJSON(e)
		},
	}
}

// ── Payments ────────────────────────────────────────────────────────────

func sendCommand() *cobra.Command {
	var from, pubkey string
	var to []string
	cmd := &cobra.Command{
		Use:   "send --from ADDRESS --pubkey PUBKEY --to ADDRESS:AMOUNT [--to ...]",
		Short: "Send a payment (key material is read from the terminal)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipients, err := parseRecipients(to)
			if err != nil {
				return err
			}
			key, err := readSecret("Key (WIF, hex or mnemonic): ")
			if err != nil {
				return err
			}
			var res map[string]interface{}
			if err := client().CallContext(cmd.Context(), "payment_send", rpc.SendParam{
				SenderAddress: from,
				SenderPubkey:  pubkey,
				Recipients:    recipients,
				KeyMaterial:   key,
				Endpoints:     globalFlags.endpoints,
			}, &res); err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender address")
	cmd.Flags().StringVar(&pubkey, "pubkey", "", "sender pubkey, the identity the rate gate limits")
	cmd.Flags().StringArrayVar(&to, "to", nil, "recipient as ADDRESS:AMOUNT in base units")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("pubkey")
	cmd.MarkFlagRequired("to")
	return cmd
}

func sendBatchCommand() *cobra.Command {
	var from, pubkey, file string
	cmd := &cobra.Command{
		Use:   "send-batch --from ADDRESS --pubkey PUBKEY --intents FILE",
		Short: "Settle a JSON list of payment intents in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var intents []payment.PaymentIntent
			if err := json.Unmarshal(data, &intents); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			key, err := readSecret("Key (WIF, hex or mnemonic): ")
			if err != nil {
				return err
			}
			var res map[string]interface{}
			if err := client().CallContext(cmd.Context(), "payment_sendBatch", rpc.SendBatchParam{
				SenderAddress: from,
				SenderPubkey:  pubkey,
				Intents:       intents,
				KeyMaterial:   key,
				Endpoints:     globalFlags.endpoints,
			}, &res); err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender address")
	cmd.Flags().StringVar(&pubkey, "pubkey", "", "sender pubkey, the identity the rate gate limits")
	cmd.Flags().StringVar(&file, "intents", "", "JSON file with the payment intents")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("pubkey")
	cmd.MarkFlagRequired("intents")
	return cmd
}

func receiptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "receipt TX_HASH INTENT_ID",
		Short: "Show which output of a batch paid an intent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rc payment.IntentReceipt
			if err := client().CallContext(cmd.Context(), "payment_getReceipt",
				rpc.ReceiptParam{TxHash: args[0], IntentID: args[1]}, &rc); err != nil {
				return err
			}
			return printJSON(rc)
		},
	}
}

// ── Helpers ─────────────────────────────────────────────────────────────

// parseRecipients parses ADDRESS:AMOUNT pairs.
func parseRecipients(list []string) ([]payment.Recipient, error) {
	out := make([]payment.Recipient, 0, len(list))
	for _, s := range list {
		addr, amt, ok := strings.Cut(s, ":")
		if !ok || addr == "" {
			return nil, fmt.Errorf("recipient %q: want ADDRESS:AMOUNT", s)
		}
		amount, err := strconv.ParseUint(amt, 10, 64)
		if err != nil || amount == 0 {
			return nil, fmt.Errorf("recipient %q: invalid amount", s)
		}
		out = append(out, payment.Recipient{Address: addr, Amount: amount})
	}
	return out, nil
}

// formatAmount renders base units as coins with 8 decimals.
func formatAmount(sats uint64) string {
	return fmt.Sprintf("%d.%08d", sats/config.Coin, sats%config.Coin)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportError prints err, with the structured data of RPC errors.
func reportError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var rpcErr *rpcclient.RPCError
	if !errors.As(err, &rpcErr) || len(rpcErr.Data) == 0 {
		return
	}
	var data rpc.ErrorData
	if rpcErr.DecodeData(&data) != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "  kind: %s\n", data.Kind)
	if data.CurrentHeight != nil && data.LastUsedHeight != nil {
		fmt.Fprintf(os.Stderr, "  current height: %d, last used height: %d\n", *data.CurrentHeight, *data.LastUsedHeight)
	}
	if data.Result != nil {
		fmt.Fprintln(os.Stderr, "  result:")
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("    ", "  ")
		enc.Encode(data.Result)
	}
}
