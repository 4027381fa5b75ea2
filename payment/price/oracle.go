package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// Oracle looks up the current USD price of an asset by its oracle id.
type Oracle interface {
	USDPrice(ctx context.Context, id string) (decimal.Decimal, error)
}

// CoinGecko queries the CoinGecko simple price endpoint.
type CoinGecko struct {
	client *resty.Client
}

func NewCoinGecko(baseURL, apiKey string, timeout time.Duration) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("x-cg-demo-api-key", apiKey)
	return &CoinGecko{client: c}
}

// simplePrice is the response body: {"solana":{"usd":151.2}}
type simplePrice map[string]map[string]decimal.Decimal

func (g *CoinGecko) USDPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	var out simplePrice
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           id,
			"vs_currencies": "usd",
		}).
		SetResult(&out).
		Get("/simple/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko request: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("coingecko: status %d", resp.StatusCode())
	}

	usd, ok := out[id]["usd"]
	if !ok {
		return decimal.Zero, errors.New("coingecko: no usd price for " + id)
	}
	if !usd.IsPositive() {
		return decimal.Zero, fmt.Errorf("coingecko: non-positive price %s for %s", usd, id)
	}
	return usd, nil
}
