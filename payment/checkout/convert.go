package checkout

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/price"
)

// Pricer returns the USD price of one unit of an asset.
type Pricer interface {
	Price(ctx context.Context, a asset.Asset) (decimal.Decimal, error)
}

// Converter turns fiat totals into settlement amounts.
type Converter struct {
	Prices Pricer
}

// Convert returns fiat / price(a), truncated toward zero at the asset's
// precision. Price errors are returned as is.
func (c Converter) Convert(ctx context.Context, fiat decimal.Decimal, a asset.Asset) (decimal.Decimal, error) {
	usd, err := c.Prices.Price(ctx, a)
	if err != nil {
		return decimal.Zero, err
	}
	if !usd.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s: non-positive quote %s", price.ErrPriceUnavailable, a.Symbol, usd)
	}
	return Quantity(fiat, usd, a.Decimals), nil
}

// Quantity divides fiat by usd and drops every digit past decimals, so
// that Quantity * usd never exceeds fiat. It is zero for a non-positive usd.
func Quantity(fiat, usd decimal.Decimal, decimals int32) decimal.Decimal {
	if !usd.IsPositive() {
		return decimal.Zero
	}
	q, _ := fiat.QuoRem(usd, decimals)
	return q
}
