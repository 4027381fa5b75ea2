package checkout_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/checkout"
	"go-cryptopay/payment/price"
)

func TestQuantityNeverRoundsUp(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for _, decimals := range []int32{asset.NativeDecimals, asset.FungibleDecimals} {
		step := decimal.New(1, -decimals)
		for i := 0; i < 2000; i++ {
			fiat := decimal.New(r.Int63n(10_000_000)+1, -2)
			usd := decimal.New(r.Int63n(1_000_000_000)+1, -int32(r.Intn(9)))

			q := checkout.Quantity(fiat, usd, decimals)
			if q.Mul(usd).GreaterThan(fiat) {
				t.Fatalf("%s / %s at %d digits = %s, worth more than the total", fiat, usd, decimals, q)
			}
			if q.Add(step).Mul(usd).LessThanOrEqual(fiat) {
				t.Fatalf("%s / %s at %d digits = %s, truncated too far", fiat, usd, decimals, q)
			}
			if !q.Equal(q.Truncate(decimals)) {
				t.Fatalf("%s has more than %d digits", q, decimals)
			}
		}
	}
}

func TestQuantityExamples(t *testing.T) {
	tests := []struct {
		fiat, price string
		decimals    int32
		want        string
	}{
		{"150", "25", 9, "6.000000000"},
		{"100", "3", 9, "33.333333333"},
		{"10", "0.003", 6, "3333.333333"},
		{"1", "7", 6, "0.142857"},
		{"0.01", "1000000", 6, "0.000000"},
	}

	for _, tt := range tests {
		got := checkout.Quantity(decimal.RequireFromString(tt.fiat), decimal.RequireFromString(tt.price), tt.decimals)
		if got.StringFixed(tt.decimals) != tt.want {
			t.Errorf("Quantity(%s, %s, %d) = %s, want %s", tt.fiat, tt.price, tt.decimals, got.StringFixed(tt.decimals), tt.want)
		}
	}
}

type staticPricer decimal.Decimal

func (p staticPricer) Price(context.Context, asset.Asset) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

func TestConvertZeroPrice(t *testing.T) {
	native := asset.NewSet("solana", "DADDY", "mint", "daddy-tate").Native
	c := checkout.Converter{Prices: staticPricer(decimal.Zero)}

	_, err := c.Convert(context.Background(), decimal.NewFromInt(10), native)
	if !errors.Is(err, price.ErrPriceUnavailable) {
		t.Errorf("error = %v, want ErrPriceUnavailable", err)
	}
	if q := checkout.Quantity(decimal.NewFromInt(10), decimal.Zero, 9); !q.IsZero() {
		t.Errorf("Quantity by zero = %s, want 0", q)
	}
}
