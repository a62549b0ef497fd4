// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready.
type ReadinessChecker func() bool

// ReadyAfter reports ready once ch is closed.
func ReadyAfter(ch <-chan struct{}) ReadinessChecker {
	return func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

// Metrics contains the supervisor's Prometheus metrics. It satisfies the
// plugin manager's metrics sink.
type Metrics struct {
	PluginsRunning     prometheus.Gauge
	MessagesTotal      *prometheus.CounterVec
	CallbackDeliveries *prometheus.CounterVec
	BackpressureTotal  *prometheus.CounterVec
	OperationsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers the supervisor metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PluginsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpps_plugins_running",
			Help: "Number of running plugin workers",
		}),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpps_messages_total",
				Help: "Total number of worker messages relayed by plugin and status",
			},
			[]string{"plugin", "status"},
		),
		CallbackDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpps_callback_deliveries_total",
				Help: "Total number of messages handed to callbacks by plugin",
			},
			[]string{"plugin"},
		),
		BackpressureTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpps_callback_backpressure_total",
				Help: "Total number of dispatcher passes that left a message queued because its callback was busy",
			},
			[]string{"plugin"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpps_plugin_operations_total",
				Help: "Total number of lifecycle operations by operation and result",
			},
			[]string{"operation", "result"},
		),
	}

	reg.MustRegister(m.PluginsRunning)
	reg.MustRegister(m.MessagesTotal)
	reg.MustRegister(m.CallbackDeliveries)
	reg.MustRegister(m.BackpressureTotal)
	reg.MustRegister(m.OperationsTotal)

	return m
}

// PluginStarted records a worker start.
func (m *Metrics) PluginStarted(string) { m.PluginsRunning.Inc() }

// PluginStopped records a worker stop.
func (m *Metrics) PluginStopped(string) { m.PluginsRunning.Dec() }

// MessageRelayed records a message handed to a poller or callback.
func (m *Metrics) MessageRelayed(plugin, status string) {
	m.MessagesTotal.WithLabelValues(plugin, status).Inc()
}

// CallbackDelivered records a completed callback invocation.
func (m *Metrics) CallbackDelivered(plugin string) {
	m.CallbackDeliveries.WithLabelValues(plugin).Inc()
}

// CallbackBackpressure records a message held back for a busy callback.
func (m *Metrics) CallbackBackpressure(plugin string) {
	m.BackpressureTotal.WithLabelValues(plugin).Inc()
}

// Operation records a lifecycle operation outcome.
func (m *Metrics) Operation(op, result string) {
	m.OperationsTotal.WithLabelValues(op, result).Inc()
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9100", ":9100" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Create a new registry to avoid polluting the global one
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Register custom metrics
	metrics := NewMetrics(registry)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}

	return s
}

// Metrics returns the custom metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops gracefully.
// Callers should monitor this channel to detect server failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Kubernetes-style health probes
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	// Create buffered error channel so the goroutine doesn't block
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		// Use local httpSrv to avoid race with subsequent Start() calls
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	// Use CompareAndSwap to atomically transition from running to stopped.
	// This prevents a race where a concurrent Start() could succeed between
	// checking the running state and setting it to false.
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state on failure so the server can be stopped again
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 if the process is running.
// This is a simple check that the process is alive.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready to accept connections,
// or 503 if not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
