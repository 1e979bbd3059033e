// Package metrics exposes Prometheus collectors for the GSPro connection.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
)

const Namespace = "gspro_relay"

type Metrics struct {
	ConnectAttempts prometheus.Counter
	Reconnects      prometheus.Counter
	RequestsSent    *prometheus.CounterVec
	RequestsDropped prometheus.Counter
	Responses       *prometheus.CounterVec
	DecodeFailures  prometheus.Counter
	ReadyFallbacks  prometheus.Counter
	Connected       prometheus.Gauge
	InMatch         prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := newMetrics(registry)
	m.gatherer = registry
	return m
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ConnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connect_attempts_total",
			Help:      "TCP connection attempts made towards GSPro",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnects_total",
			Help:      "Times the session was torn down and reconnected",
		}),
		RequestsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_sent_total",
			Help:      "Requests written to GSPro by kind",
		}, []string{"kind"}),
		RequestsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_dropped_total",
			Help:      "Requests dropped because no connection was open",
		}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "responses_total",
			Help:      "Responses received from GSPro by code",
		}, []string{"code"}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_failures_total",
			Help:      "Reads whose payload could not be parsed",
		}),
		ReadyFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ready_fallbacks_total",
			Help:      "Unparseable reads recovered as a ready notification",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connected",
			Help:      "1 while a TCP session to GSPro is open",
		}),
		InMatch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "in_match",
			Help:      "1 while GSPro reports a match in progress",
		}),
	}
}

func (m *Metrics) ObserveResponse(code int) {
	m.Responses.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	m.Connected.Set(boolToFloat(connected))
}

func (m *Metrics) SetInMatch(inMatch bool) {
	m.InMatch.Set(boolToFloat(inMatch))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.InfoF("Metrics listening on %s", address)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
