package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var tick = decimal.RequireFromString("0.0001")

type fakePublic struct {
	body   string
	err    error
	params url.Values
	calls  int
}

func (f *fakePublic) Public(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	f.calls++
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type staticSource struct {
	price decimal.Decimal
	calls int
}

func (s *staticSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.calls++
	return s.price, nil
}

func TestRESTSourceCurrentPrice(t *testing.T) {
	client := &fakePublic{body: `{"symbol":"CRVUSDT","price":"0.65008","time":1589437530011}`}
	src := NewRESTSource(client, tick, nil)

	price, err := src.CurrentPrice(context.Background(), "CRVUSDT")
	if err != nil {
		t.Fatalf("CurrentPrice() error = %v", err)
	}
	if !price.Equal(decimal.RequireFromString("0.65")) {
		t.Errorf("Expected 0.65 after quantization, got %s", price)
	}
	if client.params.Get("symbol") != "CRVUSDT" {
		t.Errorf("Expected symbol param CRVUSDT, got %q", client.params.Get("symbol"))
	}
}

func TestRESTSourceRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"missing price", `{"symbol":"CRVUSDT"}`, nil},
		{"unparsable price", `{"price":"abc"}`, nil},
		{"zero price", `{"price":"0"}`, nil},
		{"negative price", `{"price":"-1"}`, nil},
		{"not json", `<html>`, nil},
		{"transport", ``, errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewRESTSource(&fakePublic{body: tt.body, err: tt.err}, tick, nil)
			if _, err := src.CurrentPrice(context.Background(), "CRVUSDT"); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestPriceCacheMaxAge(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := newPriceCache(30 * time.Second)
	cache.now = func() time.Time { return now }

	if _, err := cache.get("CRVUSDT"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("Expected ErrNoPrice, got %v", err)
	}

	cache.put("CRVUSDT", decimal.RequireFromString("0.65"))
	now = now.Add(30 * time.Second)
	if _, err := cache.get("CRVUSDT"); err != nil {
		t.Errorf("Expected fresh price at max age, got %v", err)
	}

	now = now.Add(time.Second)
	if _, err := cache.get("CRVUSDT"); !errors.Is(err, ErrStalePrice) {
		t.Errorf("Expected ErrStalePrice, got %v", err)
	}
}

func TestStreamSourceFallback(t *testing.T) {
	fallback := &staticSource{price: decimal.RequireFromString("0.61")}
	src := NewStreamSource(DefaultStreamConfig(), []string{"CRVUSDT"}, tick, fallback, nil)

	price, err := src.CurrentPrice(context.Background(), "CRVUSDT")
	if err != nil {
		t.Fatalf("CurrentPrice() error = %v", err)
	}
	if !price.Equal(fallback.price) || fallback.calls != 1 {
		t.Errorf("Expected fallback price 0.61 from one call, got %s (%d calls)", price, fallback.calls)
	}

	noFallback := NewStreamSource(DefaultStreamConfig(), []string{"CRVUSDT"}, tick, nil, nil)
	if _, err := noFallback.CurrentPrice(context.Background(), "CRVUSDT"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("Expected ErrNoPrice without fallback, got %v", err)
	}
}

func TestStreamSourceReceivesTicker(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg subscribeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg

		conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"24hrTicker","E":123456789,"s":"CRVUSDT","c":"0.65007","C":123456790}`))

		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := DefaultStreamConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	fallback := &staticSource{price: decimal.RequireFromString("0.1")}
	src := NewStreamSource(cfg, []string{"crvusdt"}, tick, fallback, nil)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Stop()

	select {
	case msg := <-subscribed:
		if msg.Method != "SUBSCRIBE" || len(msg.Params) != 1 || msg.Params[0] != "crvusdt@ticker" {
			t.Errorf("Unexpected subscription %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for subscription")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		price, err := src.cache.get("CRVUSDT")
		if err == nil {
			if !price.Equal(decimal.RequireFromString("0.65")) {
				t.Errorf("Expected 0.65, got %s", price)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for ticker price")
		}
		time.Sleep(10 * time.Millisecond)
	}

	price, err := src.CurrentPrice(context.Background(), "CRVUSDT")
	if err != nil || !price.Equal(decimal.RequireFromString("0.65")) {
		t.Errorf("Expected streamed price 0.65, got %s (%v)", price, err)
	}
	if fallback.calls != 0 {
		t.Errorf("Expected no fallback calls, got %d", fallback.calls)
	}
}

func TestProcessMessage(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		want   string
		cached bool
	}{
		{
			name:   "full ticker event",
			msg:    `{"e":"24hrTicker","E":123456789,"s":"CRVUSDT","p":"0.0015","P":"0.231","w":"0.6492","c":"0.65007","Q":"10","o":"0.6486","h":"0.6531","l":"0.6455","v":"1204567","q":"782190.4","O":123456789,"C":123456790,"F":0,"L":18150,"n":18151}`,
			want:   "0.65",
			cached: true,
		},
		{
			name:   "lower-case symbol",
			msg:    `{"e":"24hrTicker","E":1,"s":"crvusdt","c":"0.61239","C":2}`,
			want:   "0.6123",
			cached: true,
		},
		{"subscription ack", `{"result":null,"id":1}`, "", false},
		{"other event", `{"e":"aggTrade","E":1,"s":"CRVUSDT","p":"0.65"}`, "", false},
		{"bad price", `{"e":"24hrTicker","E":1,"s":"CRVUSDT","c":"n/a","C":2}`, "", false},
		{"zero price", `{"e":"24hrTicker","E":1,"s":"CRVUSDT","c":"0.00001","C":2}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewStreamSource(DefaultStreamConfig(), []string{"CRVUSDT"}, tick, nil, nil)
			src.processMessage([]byte(tt.msg))

			price, err := src.cache.get("CRVUSDT")
			if !tt.cached {
				if err == nil {
					t.Errorf("Expected nothing cached, got %s", price)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected cached price, got %v", err)
			}
			if !price.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Expected %s, got %s", tt.want, price)
			}
		})
	}
}

func TestStreamSourceStartFails(t *testing.T) {
	cfg := DefaultStreamConfig()
	cfg.URL = "ws://127.0.0.1:1/ws"
	src := NewStreamSource(cfg, []string{"CRVUSDT"}, tick, nil, nil)

	if err := src.Start(context.Background()); err == nil {
		src.Stop()
		t.Fatal("Expected dial error")
	}
}
