// Package telemetry exposes live run metrics in the Prometheus format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/scenario"
)

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Exporter mirrors every recorded outcome into Prometheus collectors. It
// is a metrics.Observer and a scenario.Listener.
type Exporter struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	phaseInfo *prometheus.GaugeVec
	tasks     *prometheus.GaugeVec

	mu        sync.Mutex
	lastPhase string
}

// NewExporter registers the chirpload collectors on a private registry.
// inFlight, when non-nil, backs the in-flight gauge.
func NewExporter(inFlight func() int) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chirpload",
			Name:      "requests_total",
			Help:      "Dispatched requests by endpoint bucket, phase tag and outcome",
		}, []string{"bucket", "phase", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chirpload",
			Name:      "request_duration_seconds",
			Help:      "Request latency by endpoint bucket and phase tag",
			Buckets:   histogramBuckets,
		}, []string{"bucket", "phase"}),
		phaseInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chirpload",
			Name:      "phase_info",
			Help:      "1 for the phase currently running, 0 otherwise",
		}, []string{"phase"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chirpload",
			Name:      "phase_tasks",
			Help:      "Completed and total tasks of each phase",
		}, []string{"phase", "kind"}),
	}

	e.registry.MustRegister(e.requests, e.latency, e.phaseInfo, e.tasks)

	if inFlight != nil {
		e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chirpload",
			Name:      "inflight_requests",
			Help:      "Requests currently holding a dispatch permit",
		}, func() float64 { return float64(inFlight()) }))
	}

	return e
}

// Registry exposes the private registry, mainly for tests
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the exposition format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// OnOutcome implements metrics.Observer
func (e *Exporter) OnOutcome(phase metrics.Phase, o metrics.Outcome) {
	result := "success"
	if !o.Succeeded {
		result = "failure"
	}
	e.requests.WithLabelValues(o.BucketKey, string(phase), result).Inc()
	e.latency.WithLabelValues(o.BucketKey, string(phase)).Observe(o.Latency.Seconds())
}

// StateChanged implements scenario.Listener
func (e *Exporter) StateChanged(state scenario.State, phase string) {
	if state.IsTerminal() {
		e.setActive("")
	}
}

// PhaseStarted implements scenario.Listener
func (e *Exporter) PhaseStarted(p scenario.PhaseInfo) {
	e.setActive(p.Name)
	e.tasks.WithLabelValues(p.Name, "total").Set(float64(p.Total))
	e.tasks.WithLabelValues(p.Name, "completed").Set(0)
}

// TaskDone implements scenario.Listener
func (e *Exporter) TaskDone(p scenario.PhaseInfo, completed int) {
	e.tasks.WithLabelValues(p.Name, "completed").Set(float64(completed))
}

// PhaseFinished implements scenario.Listener
func (e *Exporter) PhaseFinished(p scenario.PhaseInfo, elapsed time.Duration) {
	e.tasks.WithLabelValues(p.Name, "completed").Set(float64(p.Total))
}

func (e *Exporter) setActive(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastPhase != "" {
		e.phaseInfo.WithLabelValues(e.lastPhase).Set(0)
	}
	if name != "" {
		e.phaseInfo.WithLabelValues(name).Set(1)
	}
	e.lastPhase = name
}

// Server serves /metrics for the lifetime of a run
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// Serve starts listening on addr and serves the exporter in the background
func Serve(addr string, e *Exporter, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s := &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger.With(zap.String("component", "telemetry")),
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL returns the metrics endpoint URL
func (s *Server) URL() string {
	return "http://" + s.Addr() + "/metrics"
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
