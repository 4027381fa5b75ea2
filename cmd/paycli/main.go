package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "paycli",
		Short:        "Operator tools for the payment service",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(expireCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
