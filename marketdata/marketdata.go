// Package marketdata provides current prices for the strategy loops, from the
// REST ticker or from a websocket ticker stream with REST fallback.
package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoPrice is returned when no price is known for a symbol.
	ErrNoPrice = errors.New("no price data available")

	// ErrStalePrice is returned when the cached price is older than the max age.
	ErrStalePrice = errors.New("price data is stale")

	// ErrInvalidPrice is returned for missing, unparsable or non-positive prices.
	ErrInvalidPrice = errors.New("invalid price")
)

// PriceSource returns the current price of a symbol, quantized to the tick.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceData represents a single price point
type PriceData struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// priceCache stores the latest price data with thread safety
type priceCache struct {
	mu     sync.RWMutex
	prices map[string]PriceData
	maxAge time.Duration
	now    func() time.Time
}

func newPriceCache(maxAge time.Duration) *priceCache {
	return &priceCache{
		prices: make(map[string]PriceData),
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (c *priceCache) put(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = PriceData{
		Symbol:    symbol,
		Price:     price,
		Timestamp: c.now(),
	}
}

// get returns the cached price if it is younger than maxAge.
func (c *priceCache) get(symbol string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, exists := c.prices[symbol]
	if !exists {
		return decimal.Zero, ErrNoPrice
	}
	if c.now().Sub(data.Timestamp) > c.maxAge {
		return decimal.Zero, ErrStalePrice
	}
	return data.Price, nil
}
