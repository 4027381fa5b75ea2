package price_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/price"
)

type fakeOracle struct {
	calls   atomic.Int32
	price   decimal.Decimal
	err     error
	release chan struct{}
}

func (f *fakeOracle) USDPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.price, f.err
}

var sol = asset.NewSet("solana", "DADDY", "mint", "daddy-tate").Native

func TestCacheHitWithinTTL(t *testing.T) {
	o := &fakeOracle{price: decimal.RequireFromString("25")}
	c := price.NewCache(o, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		p, err := c.Price(context.Background(), sol)
		if err != nil {
			t.Fatalf("Price: %v", err)
		}
		if !p.Equal(decimal.RequireFromString("25")) {
			t.Errorf("Price = %s, want 25", p)
		}
	}
	if n := o.calls.Load(); n != 1 {
		t.Errorf("oracle called %d times, want 1", n)
	}

	now = now.Add(59 * time.Second)
	c.Price(context.Background(), sol)
	if n := o.calls.Load(); n != 1 {
		t.Errorf("oracle called %d times before expiry, want 1", n)
	}

	now = now.Add(time.Second)
	c.Price(context.Background(), sol)
	if n := o.calls.Load(); n != 2 {
		t.Errorf("oracle called %d times after expiry, want 2", n)
	}
}

func TestCacheFailureNotCached(t *testing.T) {
	o := &fakeOracle{err: errors.New("boom")}
	c := price.NewCache(o, time.Minute)

	_, err := c.Price(context.Background(), sol)
	if !errors.Is(err, price.ErrPriceUnavailable) {
		t.Fatalf("error = %v, want ErrPriceUnavailable", err)
	}

	o.err = nil
	o.price = decimal.RequireFromString("150.5")
	p, err := c.Price(context.Background(), sol)
	if err != nil {
		t.Fatalf("Price after recovery: %v", err)
	}
	if !p.Equal(decimal.RequireFromString("150.5")) {
		t.Errorf("Price = %s, want 150.5", p)
	}
	if n := o.calls.Load(); n != 2 {
		t.Errorf("oracle called %d times, want 2", n)
	}
}

func TestCacheRejectsNonPositiveQuote(t *testing.T) {
	for _, v := range []string{"0", "-3"} {
		t.Run(v, func(t *testing.T) {
			o := &fakeOracle{price: decimal.RequireFromString(v)}
			c := price.NewCache(o, time.Minute)

			_, err := c.Price(context.Background(), sol)
			if !errors.Is(err, price.ErrPriceUnavailable) {
				t.Fatalf("error = %v, want ErrPriceUnavailable", err)
			}

			o.price = decimal.RequireFromString("25")
			p, err := c.Price(context.Background(), sol)
			if err != nil || !p.Equal(decimal.RequireFromString("25")) {
				t.Errorf("Price = %s, %v; the bad quote was cached", p, err)
			}
		})
	}
}

func TestCacheCoalescesMisses(t *testing.T) {
	o := &fakeOracle{price: decimal.RequireFromString("1"), release: make(chan struct{})}
	c := price.NewCache(o, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Price(context.Background(), sol); err != nil {
				t.Errorf("Price: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(o.release)
	wg.Wait()

	if n := o.calls.Load(); n != 1 {
		t.Errorf("oracle called %d times, want 1", n)
	}
}
