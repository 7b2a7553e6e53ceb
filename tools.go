package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"git.sr.ht/~aondrejcak/payout-api/kernel"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh idempotency key and an API key with its API_KEY_HASH",
		RunE: func(cmd *cobra.Command, _ []string) error {
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			apiKey := hex.EncodeToString(buf)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "idempotency key: %s\n", kernel.IdempotencyKey())
			fmt.Fprintf(out, "api key:         %s\n", apiKey)
			fmt.Fprintf(out, "API_KEY_HASH=%s\n", kernel.Sha512(apiKey))
			return nil
		},
	}
}

func signWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign-webhook <file|->",
		Short: "Print the X-Webhook-Signature of a payload using WEBHOOK_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			art, err := kernel.LoadConfig()
			if err != nil {
				return err
			}
			if art.WebhookSecret == "" {
				return fmt.Errorf("WEBHOOK_SECRET is not set")
			}

			var body []byte
			if args[0] == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", kernel.HmacSha256(art.WebhookSecret, body))
			return nil
		},
	}
}
