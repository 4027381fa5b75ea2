package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"go-cryptopay/payment/checkout"
	"go-cryptopay/payment/solanapay"
	"go-cryptopay/utils"
)

func linkCmd() *cobra.Command {
	var (
		recipient, token, amount, reference string
		label, message, memo, qrFile        string
	)
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Encode a Solana Pay transfer request, or decode one given as argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				tr, err := solanapay.Parse(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "recipient: %s\namount:    %s\nspl-token: %s\nreference: %v\nlabel:     %s\nmessage:   %s\nmemo:      %s\n",
					tr.Recipient, tr.Amount, tr.SplToken, tr.References, tr.Label, tr.Message, tr.Memo)
				return nil
			}

			a, err := assetsFromEnv().Normalize(token)
			if err != nil {
				return err
			}
			if recipient == "" {
				recipient = utils.Getenv("DESTINATION_WALLET", "")
			}
			qty, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q", amount)
			}
			if reference == "" {
				if reference, err = checkout.NewReference(); err != nil {
					return err
				}
			}

			uri, err := solanapay.Encode(solanapay.TransferRequest{
				Recipient:  recipient,
				Amount:     qty.Truncate(a.Decimals),
				SplToken:   a.Mint,
				References: []string{reference},
				Label:      label,
				Message:    message,
				Memo:       memo,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, uri)

			if qrFile != "" {
				png, err := solanapay.QRCode(uri, 512)
				if err != nil {
					return err
				}
				return os.WriteFile(qrFile, png, 0o644)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&recipient, "recipient", "", "destination wallet (default $DESTINATION_WALLET)")
	f.StringVarP(&token, "token", "t", "SOL", "asset to pay in")
	f.StringVarP(&amount, "amount", "a", "0", "amount in asset units")
	f.StringVar(&reference, "reference", "", "reference key (generated when empty)")
	f.StringVar(&label, "label", checkout.DefaultLabel, "label shown by the wallet")
	f.StringVar(&message, "message", "", "message shown by the wallet")
	f.StringVar(&memo, "memo", "", "memo attached to the transaction")
	f.StringVar(&qrFile, "qr", "", "also write a QR code PNG to this file")
	return cmd
}
