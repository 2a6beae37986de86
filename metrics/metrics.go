// Package metrics holds the prometheus collectors shared by the strategy
// processes and the control plane.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Completed grid reconciliation ticks"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders accepted by the exchange"},
		[]string{"symbol", "side"},
	)
	OrderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_failures_total", Help: "Order placements that failed"},
		[]string{"symbol", "side"},
	)
	OpenOrdersFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "open_orders_failures_total", Help: "Failed open-orders queries"},
		[]string{"symbol"},
	)
	StrategyInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "strategy_instances", Help: "Strategy processes tracked by the control plane"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, OrdersTotal, OrderFailuresTotal, OpenOrdersFailuresTotal, StrategyInstances)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr in the background. The returned server's
// Addr is the bound address; the caller shuts it down.
func Serve(addr string, logger *zap.Logger) (*http.Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	return srv, nil
}
