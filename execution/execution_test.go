package execution

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"aster-vault-bot/exchange"
	"aster-vault-bot/grid"
)

type sentRequest struct {
	method   string
	endpoint string
	params   url.Values
}

type fakeSender struct {
	body     string
	err      error
	requests []sentRequest
}

func (f *fakeSender) Send(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	f.requests = append(f.requests, sentRequest{method: method, endpoint: endpoint, params: params})
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPlaceLimitOrderQuantizes(t *testing.T) {
	sender := &fakeSender{body: `{"orderId":42,"symbol":"CRVUSDT","status":"NEW","price":"0.6000","origQty":"15","executedQty":"0","type":"LIMIT","side":"BUY","timeInForce":"GTC","updateTime":1566818724722}`}
	gw := NewGateway(sender, grid.DefaultPrecision(), nil)

	order, err := gw.PlaceLimitOrder(context.Background(), "CRVUSDT", SideBuy, d("15.9"), d("0.60009"))
	if err != nil {
		t.Fatalf("PlaceLimitOrder() error = %v", err)
	}

	if len(sender.requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(sender.requests))
	}
	req := sender.requests[0]
	if req.method != http.MethodPost || req.endpoint != exchange.EndpointOrder {
		t.Errorf("Expected POST %s, got %s %s", exchange.EndpointOrder, req.method, req.endpoint)
	}

	want := map[string]string{
		"symbol":      "CRVUSDT",
		"side":        "BUY",
		"type":        "LIMIT",
		"timeInForce": "GTC",
		"quantity":    "15",
		"price":       "0.6",
	}
	for k, v := range want {
		if got := req.params.Get(k); got != v {
			t.Errorf("param %s: expected %q, got %q", k, v, got)
		}
	}

	if order.OrderID != 42 || order.Status != OrderStatusNew {
		t.Errorf("Expected order 42 NEW, got %d %s", order.OrderID, order.Status)
	}
	if !order.Price.Equal(d("0.6")) || !order.OrigQty.Equal(d("15")) {
		t.Errorf("Expected 15@0.6, got %s@%s", order.OrigQty, order.Price)
	}
	if order.UpdateTime.UnixMilli() != 1566818724722 {
		t.Errorf("Expected update time 1566818724722, got %d", order.UpdateTime.UnixMilli())
	}
}

func TestPlaceOrderRejectsZeroQuantity(t *testing.T) {
	sender := &fakeSender{}
	gw := NewGateway(sender, grid.DefaultPrecision(), nil)

	if _, err := gw.PlaceLimitOrder(context.Background(), "CRVUSDT", SideSell, d("0.9"), d("0.7")); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := gw.PlaceMarketOrder(context.Background(), "CRVUSDT", SideBuy, d("0")); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := gw.PlaceLimitOrder(context.Background(), "CRVUSDT", SideBuy, d("10"), d("0.00001")); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}
	if len(sender.requests) != 0 {
		t.Errorf("Expected no requests, got %d", len(sender.requests))
	}
}

func TestPlaceOrderMissingOrderID(t *testing.T) {
	sender := &fakeSender{body: `{"symbol":"CRVUSDT","status":"NEW"}`}
	gw := NewGateway(sender, grid.DefaultPrecision(), nil)

	if _, err := gw.PlaceLimitOrder(context.Background(), "CRVUSDT", SideBuy, d("15"), d("0.6")); !errors.Is(err, ErrMissingOrderID) {
		t.Errorf("Expected ErrMissingOrderID, got %v", err)
	}
}

func TestPlaceMarketOrder(t *testing.T) {
	sender := &fakeSender{body: `{"orderId":7,"status":"FILLED","side":"SELL","type":"MARKET","origQty":"30","executedQty":"30","price":"0"}`}
	gw := NewGateway(sender, grid.DefaultPrecision(), nil)

	order, err := gw.PlaceMarketOrder(context.Background(), "CRVUSDT", SideSell, d("30.7"))
	if err != nil {
		t.Fatalf("PlaceMarketOrder() error = %v", err)
	}
	params := sender.requests[0].params
	if params.Get("type") != "MARKET" || params.Get("quantity") != "30" {
		t.Errorf("Expected MARKET qty 30, got %s qty %s", params.Get("type"), params.Get("quantity"))
	}
	if params.Has("price") || params.Has("timeInForce") {
		t.Error("Market orders must not carry price or timeInForce")
	}
	if order.Status != OrderStatusFilled {
		t.Errorf("Expected FILLED, got %s", order.Status)
	}
}

func TestOpenOrders(t *testing.T) {
	sender := &fakeSender{body: `[
		{"orderId":1,"side":"BUY","price":"0.6400","origQty":"15","status":"NEW"},
		{"orderId":2,"side":"SELL","price":"not-a-number","origQty":"15","status":"NEW"},
		{"orderId":3,"side":"SELL","price":0.7,"origQty":15,"status":"PARTIALLY_FILLED"},
		{"orderId":4,"price":"0.6600","origQty":"15","status":"NEW"}
	]`}
	gw := NewGateway(sender, grid.DefaultPrecision(), nil)

	orders, err := gw.OpenOrders(context.Background(), "CRVUSDT")
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("Expected 2 parsable orders, got %d", len(orders))
	}
	if orders[0].OrderID != 1 || !orders[0].Price.Equal(d("0.64")) {
		t.Errorf("Unexpected first order %+v", orders[0])
	}
	if orders[1].OrderID != 3 || !orders[1].Price.Equal(d("0.7")) {
		t.Errorf("Unexpected second order %+v", orders[1])
	}

	req := sender.requests[0]
	if req.method != http.MethodGet || req.endpoint != exchange.EndpointOpenOrders || req.params.Get("symbol") != "CRVUSDT" {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestOpenOrdersErrorsPropagate(t *testing.T) {
	tests := []struct {
		name   string
		sender *fakeSender
	}{
		{"transport error", &fakeSender{err: errors.New("connection reset")}},
		{"malformed payload", &fakeSender{body: `{"code":-1000}`}},
		{"truncated payload", &fakeSender{body: `[{"orderId":1`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewGateway(tt.sender, grid.DefaultPrecision(), nil)
			orders, err := gw.OpenOrders(context.Background(), "CRVUSDT")
			if err == nil {
				t.Fatal("Expected an error")
			}
			if orders != nil {
				t.Errorf("Expected nil orders on error, got %v", orders)
			}
		})
	}
}

func TestCancelAllOrders(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		wantErr error
	}{
		{"code 200", `{"code":200,"msg":"The operation of cancel all open order is done."}`, nil, nil},
		{"empty array", `[]`, nil, nil},
		{"empty array with whitespace", " []\n", nil, nil},
		{"other code", `{"code":-2011,"msg":"Unknown order sent."}`, nil, ErrCancelAllRejected},
		{"empty object", `{}`, nil, ErrCancelAllRejected},
		{"non-empty array", `[{"orderId":1}]`, nil, ErrCancelAllRejected},
		{"api error", ``, &exchange.APIError{StatusCode: 400, Code: -1121, Message: "Invalid symbol."}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{body: tt.body, err: tt.err}
			gw := NewGateway(sender, grid.DefaultPrecision(), nil)

			err := gw.CancelAllOrders(context.Background(), "CRVUSDT")
			switch {
			case tt.err != nil:
				if _, ok := exchange.IsAPIError(err); !ok {
					t.Errorf("Expected APIError, got %v", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Errorf("Expected success, got %v", err)
				}
			}

			req := sender.requests[0]
			if req.method != http.MethodDelete || req.endpoint != exchange.EndpointAllOpenOrders {
				t.Errorf("Expected DELETE %s, got %s %s", exchange.EndpointAllOpenOrders, req.method, req.endpoint)
			}
		})
	}
}

func TestGetAndCancelOrder(t *testing.T) {
	sender := &fakeSender{body: `{"orderId":99,"status":"CANCELED","side":"BUY","price":"0.6","origQty":"15","executedQty":"0"}`}
	gw := NewGateway(sender, grid.DefaultPrecision(), nil)

	order, err := gw.GetOrder(context.Background(), "CRVUSDT", 99)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if !order.Status.Failed() {
		t.Errorf("Expected CANCELED to count as failed, got %s", order.Status)
	}
	if sender.requests[0].method != http.MethodGet || sender.requests[0].params.Get("orderId") != "99" {
		t.Errorf("Unexpected request %+v", sender.requests[0])
	}

	if _, err := gw.CancelOrder(context.Background(), "CRVUSDT", 99); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if sender.requests[1].method != http.MethodDelete {
		t.Errorf("Expected DELETE, got %s", sender.requests[1].method)
	}
}

func TestGatewayOverSignedClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(exchange.EndpointTime, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serverTime":1499827319559}`))
	})
	mux.HandleFunc(exchange.EndpointOrder, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Header.Get(exchange.APIKeyHeader) != "key" || q.Get("signature") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":-2014,"msg":"API-key format invalid."}`))
			return
		}
		w.Write([]byte(`{"orderId":5,"status":"NEW","side":"` + q.Get("side") + `","price":"` + q.Get("price") + `","origQty":"` + q.Get("quantity") + `"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := exchange.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "key"
	cfg.SecretKey = "secret"
	cfg.RateLimitRPS = 0
	client, err := exchange.NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	gw := NewGateway(client, grid.DefaultPrecision(), nil)
	order, err := gw.PlaceLimitOrder(context.Background(), "CRVUSDT", SideSell, d("15"), d("0.66"))
	if err != nil {
		t.Fatalf("PlaceLimitOrder() error = %v", err)
	}
	if order.OrderID != 5 || order.Side != SideSell || !order.Price.Equal(d("0.66")) {
		t.Errorf("Unexpected order %+v", order)
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"BUY", SideBuy, false},
		{" sell ", SideSell, false},
		{"Buy", SideBuy, false},
		{"", "", true},
		{"HOLD", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSide(%q) = %s, %v; want %s (err %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
