package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/lashd/internal/queue"
	"github.com/Klingon-tech/lashd/internal/rpc"
	"github.com/Klingon-tech/lashd/internal/store"
	"github.com/Klingon-tech/lashd/pkg/crypto"
	"github.com/Klingon-tech/lashd/pkg/nostr"
)

// readEvent loads a signed event from a JSON file, "-" for stdin.
func readEvent(path string) (*nostr.Event, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return nostr.Parse(data)
}

func publishCommand() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "publish EVENT_FILE",
		Short: "Publish a signed event, queueing it if no relay accepts it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := readEvent(args[0])
			if err != nil {
				return err
			}
			var d queue.Delivery
			if err := client().CallContext(cmd.Context(), "relay_publish",
				rpc.EventParam{Event: ev, OwnerKey: ownerOr(owner, ev)}, &d); err != nil {
				return err
			}
			printDelivery(&d)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner key (default: event pubkey)")
	return cmd
}

func queueCommand() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "queue EVENT_FILE",
		Short: "Store a signed event for background delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := readEvent(args[0])
			if err != nil {
				return err
			}
			var row store.PendingEvent
			if err := client().CallContext(cmd.Context(), "relay_queueEvent",
				rpc.EventParam{Event: ev, OwnerKey: ownerOr(owner, ev)}, &row); err != nil {
				return err
			}
			fmt.Printf("Queued %s (row %s)\n", row.EventID, row.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner key (default: event pubkey)")
	return cmd
}

func pendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending OWNER_KEY",
		Short: "List an owner's undelivered events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pending(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%d pending event(s)\n", res.Count)
			for _, e := range res.Events {
				last := "never"
				if e.LastAttemptAt != nil {
					last = e.LastAttemptAt.Format(time.RFC3339)
				}
				fmt.Printf("  %s  kind=%d  retries=%d/%d  last=%s", e.EventID, e.Kind, e.RetryCount, e.MaxRetries, last)
				if e.LastError != "" {
					fmt.Printf("  error=%q", e.LastError)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func retryCommand() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "retry EVENT_ID --owner OWNER_KEY",
		Short: "Re-sign a pending event with a fresh timestamp and publish it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pending(cmd, owner)
			if err != nil {
				return err
			}
			var row *store.PendingEvent
			for _, e := range res.Events {
				if e.EventID == args[0] {
					row = e
					break
				}
			}
			if row == nil {
				return fmt.Errorf("event %s is not pending for %s", args[0], owner)
			}
			ev, err := nostr.Parse(row.SignedPayload)
			if err != nil {
				return fmt.Errorf("stored event: %w", err)
			}

			secret, err := readSecret("Event signing key (hex): ")
			if err != nil {
				return err
			}
			key, err := crypto.PrivateKeyFromHex(secret)
			if err != nil {
				return fmt.Errorf("signing key: %w", err)
			}
			defer key.Zero()
			if key.PublicKeyHex() != ev.PubKey {
				return fmt.Errorf("key does not match event author %s", ev.PubKey)
			}
			resigned, err := ev.Resign(key, time.Now())
			if err != nil {
				return err
			}

			var d queue.Delivery
			if err := client().CallContext(cmd.Context(), "relay_retryEvent", rpc.RetryParam{
				OldEventID: row.EventID,
				Event:      resigned,
				OwnerKey:   owner,
			}, &d); err != nil {
				return err
			}
			printDelivery(&d)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner key")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func resolveCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "resolve EVENT_ID",
		Short: "Mark a pending event failed and stop retrying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.ResolveResult
			if err := client().CallContext(cmd.Context(), "relay_resolveEvent",
				rpc.ResolveParam{EventID: args[0], Reason: reason}, &res); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", res.EventID, res.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the event")
	return cmd
}

func pending(cmd *cobra.Command, owner string) (*rpc.PendingResult, error) {
	var res rpc.PendingResult
	if err := client().CallContext(cmd.Context(), "relay_getPending", rpc.OwnerParam{OwnerKey: owner}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func ownerOr(owner string, ev *nostr.Event) string {
	if owner != "" {
		return owner
	}
	return ev.PubKey
}

func printDelivery(d *queue.Delivery) {
	fmt.Printf("Event %s: accepted by %d relay(s)\n", d.EventID, d.PublishedTo)
	for _, o := range d.Outcomes {
		status := "ok"
		if !o.Success {
			status = "failed"
		}
		fmt.Printf("  %-40s %s (%s)\n", o.Relay, status, o.Latency.Round(time.Millisecond))
	}
	if d.Queued {
		fmt.Println("Queued for retry.")
	}
}
