// Package price provides USD quotes for the settlement assets.
package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"go-cryptopay/payment/asset"
)

const DefaultTTL = 60 * time.Second

// ErrPriceUnavailable is returned when no fresh quote could be obtained.
// Callers may retry later; nothing is cached on failure.
var ErrPriceUnavailable = errors.New("price unavailable")

type Quote struct {
	Asset     string          `json:"asset"`
	USD       decimal.Decimal `json:"usdPrice"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Cache memoizes oracle quotes per asset for a fixed TTL. Concurrent misses
// for one asset share a single oracle call.
type Cache struct {
	oracle Oracle
	ttl    time.Duration

	// Now is the clock used for expiry; time.Now when nil.
	Now func() time.Time

	mu     sync.Mutex
	quotes map[string]Quote
	group  singleflight.Group
}

func NewCache(oracle Oracle, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		oracle: oracle,
		ttl:    ttl,
		quotes: make(map[string]Quote),
	}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cache) cached(id string) (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[id]
	if !ok || c.now().Sub(q.FetchedAt) >= c.ttl {
		return Quote{}, false
	}
	return q, true
}

// Price returns the USD price of one unit of a.
func (c *Cache) Price(ctx context.Context, a asset.Asset) (decimal.Decimal, error) {
	q, err := c.Quote(ctx, a)
	if err != nil {
		return decimal.Zero, err
	}
	return q.USD, nil
}

// Quote returns the cached quote for a, fetching a new one when it expired.
func (c *Cache) Quote(ctx context.Context, a asset.Asset) (Quote, error) {
	if q, ok := c.cached(a.PriceID); ok {
		return q, nil
	}

	v, err, _ := c.group.Do(a.PriceID, func() (interface{}, error) {
		if q, ok := c.cached(a.PriceID); ok {
			return q, nil
		}

		usd, err := c.oracle.USDPrice(ctx, a.PriceID)
		if err != nil {
			return nil, err
		}
		if !usd.IsPositive() {
			return nil, fmt.Errorf("non-positive quote %s", usd)
		}

		q := Quote{Asset: a.Symbol, USD: usd, FetchedAt: c.now()}
		c.mu.Lock()
		c.quotes[a.PriceID] = q
		c.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, a.Symbol, err)
	}
	return v.(Quote), nil
}
