package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"go-cryptopay/config"
	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/checkout"
	"go-cryptopay/payment/price"
	"go-cryptopay/utils"
)

// assetsFromEnv builds the asset set without requiring the full service
// configuration.
func assetsFromEnv() asset.Set {
	utils.LoadEnv()
	return asset.NewSet(
		utils.Getenv("NATIVE_PRICE_ID", "solana"),
		utils.Getenv("FUNGIBLE_SYMBOL", config.DefaultFungibleSymbol),
		utils.Getenv("FUNGIBLE_MINT", config.DefaultFungibleMint),
		utils.Getenv("FUNGIBLE_PRICE_ID", "daddy-tate"),
	)
}

func quoteCmd() *cobra.Command {
	var usd string
	cmd := &cobra.Command{
		Use:   "quote [asset]",
		Short: "Show the USD price of an asset and what a fiat total converts to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := assetsFromEnv().Normalize(args[0])
			if err != nil {
				return err
			}

			oracle := price.NewCoinGecko(utils.Getenv("PRICE_API_URL", ""), utils.Getenv("PRICE_API_KEY", ""), 10*time.Second)
			cache := price.NewCache(oracle, price.DefaultTTL)
			q, err := cache.Quote(cmd.Context(), a)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "1 %s = %s USD (at %s)\n", a, q.USD, q.FetchedAt.Format(time.RFC3339))

			if usd == "" {
				return nil
			}
			total, err := decimal.NewFromString(usd)
			if err != nil || !total.IsPositive() {
				return fmt.Errorf("invalid --usd %q", usd)
			}
			amount := checkout.Quantity(total, q.USD, a.Decimals)
			fmt.Fprintf(cmd.OutOrStdout(), "%s USD = %s %s\n", total, amount.StringFixed(a.Decimals), a)
			return nil
		},
	}
	cmd.Flags().StringVar(&usd, "usd", "", "fiat total to convert")
	return cmd
}
