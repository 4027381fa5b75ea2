package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-cryptopay/config"
	"go-cryptopay/log"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/ledger"
	"go-cryptopay/payment/notify"
	"go-cryptopay/payment/reconcile"
)

func openStore(ctx context.Context) (*config.Config, db.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := log.Init("paycli", cfg.LogLevel, "console"); err != nil {
		return nil, nil, nil, err
	}

	store, closeStore, err := db.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, func() {
		closeStore(context.Background())
		log.Sync()
	}, nil
}

func expireCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Cancel pending payment requests older than the staleness window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, done, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer done()

			if window <= 0 {
				window = cfg.StalenessWindow
			}
			now := time.Now()
			n, err := store.ExpirePending(ctx, now.Add(-window), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d pending requests older than %s\n", n, window)
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "staleness window (default $STALENESS_WINDOW)")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the reconciliation worker in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, done, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer done()

			chain, err := ledger.Dial(ctx, cfg.LedgerURL, ledger.Options{
				Commitment: cfg.LedgerCommitment,
				Timeout:    cfg.LedgerTimeout,
				RPS:        cfg.LedgerRPS,
			})
			if err != nil {
				return err
			}
			defer chain.Close()

			w := reconcile.NewWorker(store, chain, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout), cfg.Assets(),
				reconcile.Config{
					PollInterval:    cfg.PollInterval,
					StalenessWindow: cfg.StalenessWindow,
					LedgerTimeout:   cfg.LedgerTimeout,
					NotifyTimeout:   cfg.WebhookTimeout,
					Concurrency:     cfg.WorkerConcurrency,
				})

			if !once {
				w.Run(ctx)
				return nil
			}

			report, err := w.RunCycle(ctx)
			if err != nil {
				return err
			}
			log.L().Debug("cycle", zap.Object("report", report))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and print its report")
	return cmd
}
