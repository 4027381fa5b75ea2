// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/checkout"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/ledger"
	"go-cryptopay/payment/solanapay"
	"go-cryptopay/utils"
)

const (
	DefaultFungibleSymbol = "DADDY"
	DefaultFungibleMint   = "4Cnk9EPnW5ixfLZatCPJjDB1PUtcRpVVgTQukm9epump"
)

type Config struct {
	Recipient string

	StoreDriver string
	DSN         string
	MongoDB     string

	NativePriceID   string
	FungibleSymbol  string
	FungibleMint    string
	FungiblePriceID string
	PriceAPIURL     string
	PriceAPIKey     string

	LedgerURL        string
	LedgerCommitment string
	LedgerTimeout    time.Duration
	LedgerRPS        float64

	WebhookURL     string
	WebhookTimeout time.Duration

	PollInterval      time.Duration
	StalenessWindow   time.Duration
	WorkerConcurrency int

	StoreLabel  string
	DefaultMemo string

	Port              string
	AllowedOrigins    []string
	AdminPasswordHash string
	AdminJWTSecret    string

	LogLevel  string
	LogFormat string
}

// Assets is the configured pair of settlement assets.
func (c *Config) Assets() asset.Set {
	return asset.NewSet(c.NativePriceID, c.FungibleSymbol, c.FungibleMint, c.FungiblePriceID)
}

// AdminEnabled reports whether the admin routes can be served.
func (c *Config) AdminEnabled() bool {
	return c.AdminPasswordHash != "" && c.AdminJWTSecret != ""
}

func (c *Config) StoreOptions() db.Options {
	return db.Options{Driver: c.StoreDriver, DSN: c.DSN, Database: c.MongoDB}
}

// Load reads the environment, after loading a .env file if present. Every
// missing or malformed key is reported in the returned error.
func Load() (*Config, error) {
	utils.LoadEnv()

	var errs []error
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}
	duration := func(key string, def time.Duration, mandatory bool) time.Duration {
		if mandatory && os.Getenv(key) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
			return 0
		}
		d, err := utils.GetenvDuration(key, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
		return d
	}

	c := &Config{
		Recipient:         required("DESTINATION_WALLET"),
		StoreDriver:       utils.Getenv("STORE_DRIVER", db.DriverMySQL),
		MongoDB:           utils.Getenv("MONGO_DB", "solana_pay"),
		NativePriceID:     utils.Getenv("NATIVE_PRICE_ID", "solana"),
		FungibleSymbol:    strings.ToUpper(utils.Getenv("FUNGIBLE_SYMBOL", DefaultFungibleSymbol)),
		FungibleMint:      utils.Getenv("FUNGIBLE_MINT", DefaultFungibleMint),
		FungiblePriceID:   utils.Getenv("FUNGIBLE_PRICE_ID", "daddy-tate"),
		PriceAPIURL:       os.Getenv("PRICE_API_URL"),
		PriceAPIKey:       required("PRICE_API_KEY"),
		LedgerURL:         required("LEDGER_RPC_URL"),
		LedgerCommitment:  utils.Getenv("LEDGER_COMMITMENT", ledger.DefaultCommitment),
		WebhookURL:        required("WEBHOOK_URL"),
		StoreLabel:        utils.Getenv("STORE_LABEL", checkout.DefaultLabel),
		DefaultMemo:       utils.Getenv("DEFAULT_MEMO", checkout.DefaultMemo),
		Port:              utils.Getenv("GIN_PORT", "8080"),
		AllowedOrigins:    splitList(utils.Getenv("ALLOWED_ORIGINS", "*")),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		LogLevel:          utils.Getenv("LOG_LEVEL", "info"),
		LogFormat:         utils.Getenv("LOG_FORMAT", "json"),
	}

	c.PollInterval = duration("POLL_INTERVAL", 0, true)
	c.StalenessWindow = duration("STALENESS_WINDOW", 0, true)
	c.LedgerTimeout = duration("LEDGER_TIMEOUT", 15*time.Second, false)
	c.WebhookTimeout = duration("WEBHOOK_TIMEOUT", 10*time.Second, false)

	var err error
	if c.LedgerRPS, err = utils.GetenvFloat("LEDGER_RPS", 5); err != nil {
		errs = append(errs, fmt.Errorf("LEDGER_RPS: %w", err))
	}
	if c.WorkerConcurrency, err = utils.GetenvInt("WORKER_CONCURRENCY", 4); err != nil {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY: %w", err))
	} else if c.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}

	switch c.StoreDriver {
	case db.DriverMySQL:
		c.DSN = required("DB")
	case db.DriverMongo:
		c.DSN = required("MONGOURI")
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not mysql or mongo", c.StoreDriver))
	}

	if c.Recipient != "" && !solanapay.ValidPublicKey(c.Recipient) {
		errs = append(errs, fmt.Errorf("DESTINATION_WALLET %q is not a valid address", c.Recipient))
	}
	if !solanapay.ValidPublicKey(c.FungibleMint) {
		errs = append(errs, fmt.Errorf("FUNGIBLE_MINT %q is not a valid address", c.FungibleMint))
	}
	if !slices.Contains(ledger.Commitments, c.LedgerCommitment) {
		errs = append(errs, fmt.Errorf("LEDGER_COMMITMENT %q is not one of %s",
			c.LedgerCommitment, strings.Join(ledger.Commitments, ", ")))
	}
	if c.FungibleSymbol == asset.NativeSymbol {
		errs = append(errs, fmt.Errorf("FUNGIBLE_SYMBOL cannot be %s", asset.NativeSymbol))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return c, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
