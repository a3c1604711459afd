package main

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lostsec/lostsec/pkg/config"
	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/hooks"
)

// telemetry owns the optional metrics and tracing hooks. The dispatcher
// does not close hooks, so the command closes them after the dispatcher.
type telemetry struct {
	metrics *hooks.PrometheusHook
	traces  *hooks.OTelHook
}

func setupTelemetry(cfg config.TelemetryConfig, logger *slog.Logger) (*telemetry, error) {
	t := &telemetry{}
	if cfg.MetricsAddr != "" {
		m, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{
			Addr:         cfg.MetricsAddr,
			ReadTimeout:  duration.MetricsShutdown,
			WriteTimeout: duration.MetricsWrite,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		t.metrics = m
	}
	if cfg.OTLPEndpoint != "" {
		o, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint:          cfg.OTLPEndpoint,
			ServiceName:       defaults.ToolName,
			Insecure:          cfg.OTLPInsecure,
			ShutdownTimeout:   duration.ExporterShutdown,
			ConnectionTimeout: duration.ExporterConnect,
		})
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		t.traces = o
	}
	return t, nil
}

func (t *telemetry) register(d *dispatcher.Dispatcher) {
	if t.metrics != nil {
		d.RegisterHook(t.metrics)
	}
	if t.traces != nil {
		d.RegisterHook(t.traces)
	}
}

// tracer returns the scanner tracer, a no-op one without an OTLP endpoint.
func (t *telemetry) tracer() trace.Tracer {
	if t.traces == nil {
		return noop.NewTracerProvider().Tracer(defaults.ToolName)
	}
	return t.traces.TracerProvider().Tracer(defaults.ToolName + "/scanner")
}

func (t *telemetry) Close() error {
	var errs []error
	if t.metrics != nil {
		errs = append(errs, t.metrics.Close())
	}
	if t.traces != nil {
		errs = append(errs, t.traces.Close())
	}
	return errors.Join(errs...)
}
