package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*PrometheusHook)(nil)

// PrometheusHook exposes scan metrics for Prometheus scraping. Metrics live
// in a private registry so several scans in one process never collide.
type PrometheusHook struct {
	server   *http.Server
	registry *prometheus.Registry
	opts     PrometheusOptions
	logger   *slog.Logger

	// Counters
	resultsTotal *prometheus.CounterVec

	// Gauges
	scanned     *prometheus.GaugeVec
	found       *prometheus.GaugeVec
	errorsTotal *prometheus.GaugeVec
	duration    *prometheus.GaugeVec

	// Histograms
	batchSeconds *prometheus.HistogramVec

	mu      sync.Mutex
	variant string
	closed  bool
}

// PrometheusOptions configures the Prometheus hook behavior.
type PrometheusOptions struct {
	// Addr is the listen address for the metrics server (e.g. ":9090").
	// Empty disables the server; Handler can still be mounted elsewhere.
	Addr string

	// Path for the metrics endpoint (default: "/metrics").
	Path string

	// ReadTimeout for the HTTP server (default: 5s).
	ReadTimeout time.Duration

	// WriteTimeout for the HTTP server (default: 10s).
	WriteTimeout time.Duration

	// Logger receives server errors (default slog.Default()).
	Logger *slog.Logger
}

// NewPrometheusHook creates the hook and, when Addr is set, starts serving
// metrics until Close.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Path == "" {
		opts.Path = "/metrics"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = duration.MetricsShutdown
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = duration.MetricsWrite
	}

	hook := &PrometheusHook{
		registry: prometheus.NewRegistry(),
		opts:     opts,
		logger:   orDefault(opts.Logger),
	}
	if err := hook.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if opts.Addr != "" {
		hook.startServer()
	}
	return hook, nil
}

func (h *PrometheusHook) initMetrics() error {
	h.resultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostsec_results_total",
			Help: "Non-clean verdicts by phase and status",
		},
		[]string{"variant", "phase", "status"},
	)

	h.scanned = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lostsec_tasks_scanned",
			Help: "Tasks scanned so far in the current scan",
		},
		[]string{"variant"},
	)

	h.found = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lostsec_vulnerable_found",
			Help: "Vulnerable findings so far in the current scan",
		},
		[]string{"variant"},
	)

	h.errorsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lostsec_transport_errors",
			Help: "Probes that failed with a transport error",
		},
		[]string{"variant"},
	)

	h.duration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lostsec_scan_duration_seconds",
			Help: "Total scan duration in seconds",
		},
		[]string{"variant", "state"},
	)

	h.batchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lostsec_batch_duration_seconds",
			Help:    "Time to complete one dispatch batch",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"variant", "phase"},
	)

	for _, c := range []prometheus.Collector{
		h.resultsTotal, h.scanned, h.found, h.errorsTotal, h.duration, h.batchSeconds,
	} {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the hook's registry.
func (h *PrometheusHook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the private registry.
func (h *PrometheusHook) Registry() *prometheus.Registry { return h.registry }

func (h *PrometheusHook) startServer() {
	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, h.Handler())

	h.server = &http.Server{
		Addr:         h.opts.Addr,
		Handler:      mux,
		ReadTimeout:  h.opts.ReadTimeout,
		WriteTimeout: h.opts.WriteTimeout,
	}
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("prometheus: metrics server error", "error", err)
		}
	}()
}

// OnEvent updates metrics from one event.
func (h *PrometheusHook) OnEvent(_ context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.variant = e.Variant
	case *events.ResultEvent:
		h.resultsTotal.WithLabelValues(h.variant, string(e.Phase), e.Result.Status).Inc()
	case *events.ProgressEvent:
		h.observeStats(e.Stats)
		h.batchSeconds.WithLabelValues(h.variant, string(e.Progress.Phase)).Observe(e.Timing.BatchDuration.Seconds())
	case *events.SummaryEvent:
		if h.variant == "" {
			h.variant = e.Variant
		}
		h.observeStats(e.Totals)
		h.duration.WithLabelValues(h.variant, e.State).Set(e.Timing.Elapsed.Seconds())
	}
	return nil
}

func (h *PrometheusHook) observeStats(s events.StatsInfo) {
	h.scanned.WithLabelValues(h.variant).Set(float64(s.Scanned))
	h.found.WithLabelValues(h.variant).Set(float64(s.Found))
	h.errorsTotal.WithLabelValues(h.variant).Set(float64(s.Errors))
}

// EventTypes returns the event types this hook handles.
func (h *PrometheusHook) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTypeStart,
		events.EventTypeResult,
		events.EventTypeProgress,
		events.EventTypeSummary,
	}
}

// Close shuts down the metrics server.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duration.MetricsShutdown)
		defer cancel()
		return h.server.Shutdown(ctx)
	}
	return nil
}

// MetricsAddr returns the address where metrics are served, empty when no
// server was started.
func (h *PrometheusHook) MetricsAddr() string {
	if h.opts.Addr == "" {
		return ""
	}
	return "http://" + h.opts.Addr + h.opts.Path
}
