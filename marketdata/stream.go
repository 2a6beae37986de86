package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aster-vault-bot/grid"
)

// DefaultStreamURL is the Aster futures market stream endpoint.
const DefaultStreamURL = "wss://fstream.asterdex.com/ws"

// StreamConfig holds configuration for the ticker stream
type StreamConfig struct {
	URL               string        `yaml:"url"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	MaxAge            time.Duration `yaml:"max_age"`
}

// DefaultStreamConfig provides a default configuration for the StreamSource.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:               DefaultStreamURL,
		ReconnectInterval: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		MaxAge:            30 * time.Second,
	}
}

// subscribeMessage is the stream subscription request.
type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// tickerEvent is the subset of the 24hr ticker event the bot reads. The
// upper-case keys must be declared: encoding/json matches names case
// insensitively, so "E" and "C" would otherwise decode into Event and LastPrice.
type tickerEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	CloseTime int64  `json:"C"`
}

// StreamSource keeps the latest ticker price per symbol from the websocket
// stream. Cached prices older than MaxAge are ignored and the fallback source
// answers instead.
type StreamSource struct {
	config   StreamConfig
	tick     decimal.Decimal
	fallback PriceSource
	cache    *priceCache
	dialer   *websocket.Dialer
	logger   *zap.Logger

	mu      sync.Mutex
	symbols []string
	conn    *websocket.Conn
	nextID  int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamSource creates a stream source for symbols. fallback may be nil.
func NewStreamSource(cfg StreamConfig, symbols []string, tick decimal.Decimal, fallback PriceSource, logger *zap.Logger) *StreamSource {
	defaults := DefaultStreamConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaults.ReconnectInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaults.MaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, strings.ToUpper(strings.TrimSpace(s)))
	}

	return &StreamSource{
		config:   cfg,
		tick:     tick,
		fallback: fallback,
		cache:    newPriceCache(cfg.MaxAge),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		logger:  logger,
		symbols: normalized,
	}
}

// Start connects and subscribes, then keeps reading in the background until
// ctx is done or Stop is called. A failed first dial is returned; later
// disconnects are retried every ReconnectInterval.
func (s *StreamSource) Start(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, conn)

	s.logger.Info("📡 Ticker stream started",
		zap.String("url", s.config.URL),
		zap.Strings("symbols", s.symbols))
	return nil
}

// Stop closes the connection and waits for the reader to exit.
func (s *StreamSource) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Ticker stream stopped")
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("timeout waiting for stream reader to finish")
	}
}

// CurrentPrice returns the streamed price while it is fresh, otherwise the
// fallback's answer.
func (s *StreamSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := s.cache.get(strings.ToUpper(symbol))
	if err == nil {
		return price, nil
	}
	if s.fallback == nil {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, err)
	}

	s.logger.Debug("Stream price unavailable, using fallback",
		zap.String("symbol", symbol),
		zap.Error(err))
	return s.fallback.CurrentPrice(ctx, symbol)
}

func (s *StreamSource) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ticker stream: %w", err)
	}

	s.mu.Lock()
	s.nextID++
	msg := subscribeMessage{Method: "SUBSCRIBE", ID: s.nextID}
	for _, symbol := range s.symbols {
		msg.Params = append(msg.Params, strings.ToLower(symbol)+"@ticker")
	}
	s.conn = conn
	s.mu.Unlock()

	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return conn, nil
}

func (s *StreamSource) run(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		s.read(ctx, conn)
		conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.ReconnectInterval):
			}

			var err error
			conn, err = s.connect(ctx)
			if err == nil {
				s.logger.Info("Ticker stream reconnected")
				break
			}
			s.logger.Warn("Ticker stream reconnect failed", zap.Error(err))
		}
	}
}

// read consumes messages until the connection fails.
func (s *StreamSource) read(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Error reading ticker stream", zap.Error(err))
			}
			return
		}
		if messageType == websocket.TextMessage {
			s.processMessage(data)
		}
	}
}

func (s *StreamSource) processMessage(data []byte) {
	var event tickerEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Event != "24hrTicker" {
		return
	}

	price, err := decimal.NewFromString(event.LastPrice)
	if err != nil {
		s.logger.Warn("Failed to parse ticker price",
			zap.String("symbol", event.Symbol),
			zap.String("price", event.LastPrice))
		return
	}
	price = grid.FloorToStep(price, s.tick)
	if !price.IsPositive() {
		return
	}

	s.cache.put(strings.ToUpper(event.Symbol), price)
}
