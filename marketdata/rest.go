package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aster-vault-bot/exchange"
	"aster-vault-bot/grid"
)

// PublicClient performs unsigned exchange calls. *exchange.Client implements it.
type PublicClient interface {
	Public(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// RESTSource reads the last price from the ticker endpoint on every call.
type RESTSource struct {
	client PublicClient
	tick   decimal.Decimal
	logger *zap.Logger
}

func NewRESTSource(client PublicClient, tick decimal.Decimal, logger *zap.Logger) *RESTSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTSource{
		client: client,
		tick:   tick,
		logger: logger,
	}
}

// CurrentPrice fetches GET /ticker/price and floors the result to the tick.
func (s *RESTSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := s.client.Public(ctx, exchange.EndpointTickerPrice, params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get ticker price: %w", err)
	}

	var resp struct {
		Symbol string           `json:"symbol"`
		Price  *decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode ticker: %w", ErrInvalidPrice, err)
	}
	if resp.Price == nil {
		return decimal.Zero, fmt.Errorf("%w: missing price field", ErrInvalidPrice)
	}

	price := grid.FloorToStep(*resp.Price, s.tick)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, resp.Price)
	}

	s.logger.Debug("Ticker price",
		zap.String("symbol", symbol),
		zap.Stringer("price", price))
	return price, nil
}
