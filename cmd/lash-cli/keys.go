package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Klingon-tech/lashd/config"
	"github.com/Klingon-tech/lashd/internal/wallet"
	"github.com/Klingon-tech/lashd/pkg/crypto"
)

// readSecret reads a line without echo from a terminal, or plainly from a
// pipe.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr) // newline after hidden input
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func keygenCommand() *cobra.Command {
	var network string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a wallet mnemonic and an event signing key",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			params := config.ParamsFor(config.NetworkType(network))

			mnemonic, err := wallet.GenerateMnemonic()
			if err != nil {
				return err
			}
			key, err := wallet.ResolveKey(mnemonic, wallet.DerivationOptions{
				CoinType: params.CoinType,
				Mainnet:  params.Mainnet,
			})
			if err != nil {
				return err
			}
			defer key.Zero()

			eventKey, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			defer eventKey.Zero()

			fmt.Printf("Mnemonic:       %s\n", mnemonic)
			fmt.Printf("Address:        %s (m/44'/%d'/0'/0/0)\n", key.Address, params.CoinType)
			fmt.Printf("Event key:      %x\n", eventKey.Serialize())
			fmt.Printf("Event pubkey:   %s\n", eventKey.PublicKeyHex())
			fmt.Fprintln(os.Stderr, "Store the mnemonic and event key offline; lashd never keeps them.")
			return nil
		},
	}
	cmd.Flags().StringVar(&network, "network", string(config.Mainnet), "network: mainnet or testnet")
	return cmd
}
