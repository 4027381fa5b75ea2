package main

import (
	"context"
	stlog "log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-cryptopay/config"
	"go-cryptopay/log"
	"go-cryptopay/payment/checkout"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/ledger"
	"go-cryptopay/payment/notify"
	"go-cryptopay/payment/price"
	"go-cryptopay/payment/reconcile"
	"go-cryptopay/service"
	"go-cryptopay/web"
	"go-cryptopay/web/controllers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stlog.Fatalln(err)
	}

	logger, err := log.Init("paymentservice", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		stlog.Fatalln(err)
	}
	defer log.Sync()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := db.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	chain, err := ledger.Dial(ctx, cfg.LedgerURL, ledger.Options{
		Commitment: cfg.LedgerCommitment,
		Timeout:    cfg.LedgerTimeout,
		RPS:        cfg.LedgerRPS,
	})
	if err != nil {
		logger.Fatal("dial ledger", zap.Error(err))
	}
	defer chain.Close()

	assets := cfg.Assets()
	prices := price.NewCache(price.NewCoinGecko(cfg.PriceAPIURL, cfg.PriceAPIKey, 10*time.Second), price.DefaultTTL)

	factory := checkout.NewFactory(store, prices, assets, checkout.Config{
		Recipient:   cfg.Recipient,
		Label:       cfg.StoreLabel,
		DefaultMemo: cfg.DefaultMemo,
	})

	worker := reconcile.NewWorker(store, chain, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout), assets,
		reconcile.Config{
			PollInterval:    cfg.PollInterval,
			StalenessWindow: cfg.StalenessWindow,
			LedgerTimeout:   cfg.LedgerTimeout,
			NotifyTimeout:   cfg.WebhookTimeout,
			Concurrency:     cfg.WorkerConcurrency,
		})

	admin := controllers.AdminConfig{}
	var adminSecret []byte
	if cfg.AdminEnabled() {
		admin.PasswordHash = []byte(cfg.AdminPasswordHash)
		admin.JWTSecret = []byte(cfg.AdminJWTSecret)
		adminSecret = admin.JWTSecret
	} else {
		logger.Info("admin routes disabled: ADMIN_PASSWORD_HASH or ADMIN_JWT_SECRET not set")
	}

	router := web.NewRouter(controllers.New(factory, store, worker, admin), web.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		AdminSecret:    adminSecret,
		Done:           ctx.Done(),
	}, logger.Named("http"))

	stopped, err := service.Start(ctx, "paymentservice", "", cfg.Port, router)
	if err != nil {
		logger.Fatal("start http server", zap.Error(err))
	}

	var g errgroup.Group
	g.Go(func() error {
		worker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-stopped.Done()
		stop()
		return nil
	})
	g.Wait()

	logger.Info("payment service stopped")
}
