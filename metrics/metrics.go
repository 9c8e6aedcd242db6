// Package metrics exports Prometheus metrics for controller exchanges.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/mtwharmby/emacontrol/emaprotocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "ema"

// Result labels.
const (
	ResultOK         = "ok"
	ResultTimeout    = "timeout"
	ResultConnection = "connection"
	ResultConfig     = "config"
	ResultCancelled  = "cancelled"
	ResultError      = "error"
)

// Collector records exchange counts and latencies. It implements
// emaprotocol.Observer.
type Collector struct {
	registry  *prometheus.Registry
	exchanges *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Total number of controller exchanges by command and result.",
			},
			[]string{"command", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "exchange_duration_seconds",
				Help:      "Duration of controller exchanges.",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"command"},
		),
	}
	c.registry.MustRegister(c.exchanges, c.duration, collectors.NewGoCollector())
	return c
}

// ObserveExchange implements emaprotocol.Observer.
func (c *Collector) ObserveExchange(command string, elapsed time.Duration, err error) {
	c.exchanges.WithLabelValues(command, Result(err)).Inc()
	c.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Registry returns the registry the collector's metrics are registered in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Result classifies an exchange error as a label value.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCancelled
	case errors.Is(err, emaprotocol.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, emaprotocol.ErrConnection):
		return ResultConnection
	case errors.Is(err, emaprotocol.ErrConfiguration):
		return ResultConfig
	default:
		return ResultError
	}
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger logrus.FieldLogger
}

// Serve starts an HTTP server for c on addr. It returns once the listener
// is open.
func Serve(addr string, c *Collector, logger logrus.FieldLogger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	logger.WithField("addr", ln.Addr().String()).Info("serving metrics")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
