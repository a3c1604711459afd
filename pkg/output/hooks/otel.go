package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*OTelHook)(nil)

// OTelHook exports a scan as one root span. Batches and vulnerable findings
// become span events; the summary sets final attributes and ends the span.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	ownsProvider   bool
	tracer         trace.Tracer

	mu       sync.Mutex
	rootSpan trace.Span
	closed   bool
}

// OTelOptions configures the OpenTelemetry hook behavior.
type OTelOptions struct {
	// Endpoint is the OTLP gRPC endpoint (default "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default: "lostsec").
	ServiceName string

	// Insecure uses a plaintext gRPC connection.
	Insecure bool

	// Headers contains additional headers for the OTLP exporter.
	Headers map[string]string

	// ShutdownTimeout bounds the final flush (default: 5s).
	ShutdownTimeout time.Duration

	// ConnectionTimeout bounds exporter creation (default: 10s).
	ConnectionTimeout time.Duration

	// TracerProvider, when set, is used instead of building an OTLP
	// exporter. The hook does not shut it down.
	TracerProvider *sdktrace.TracerProvider
}

// NewOTelHook creates the hook. Without a TracerProvider it builds an OTLP
// gRPC exporter and installs the resulting provider globally, so
// otel.Tracer() in the scanner reports to the same collector.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = duration.ExporterShutdown
	}
	if opts.ConnectionTimeout == 0 {
		opts.ConnectionTimeout = duration.ExporterConnect
	}

	hook := &OTelHook{opts: opts, tracerProvider: opts.TracerProvider}
	if hook.tracerProvider == nil {
		tp, err := newOTLPProvider(opts)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		hook.tracerProvider = tp
		hook.ownsProvider = true
	}
	hook.tracer = hook.tracerProvider.Tracer(defaults.ToolName + "/scan")
	return hook, nil
}

func newOTLPProvider(opts OTelOptions) (*sdktrace.TracerProvider, error) {
	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "scanner"),
	)

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

// TracerProvider returns the provider spans are recorded on.
func (h *OTelHook) TracerProvider() trace.TracerProvider { return h.tracerProvider }

// OnEvent records one event on the scan span.
func (h *OTelHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.handleStart(ctx, e)
	case *events.ResultEvent:
		h.handleResult(e)
	case *events.ProgressEvent:
		h.handleProgress(e)
	case *events.SummaryEvent:
		h.handleSummary(e)
	}
	return nil
}

func (h *OTelHook) handleStart(ctx context.Context, start *events.StartEvent) {
	if h.rootSpan != nil {
		h.rootSpan.End()
	}
	_, h.rootSpan = h.tracer.Start(ctx, defaults.ToolName+".scan",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(start.Timestamp()),
		trace.WithAttributes(
			attribute.String("scan_id", start.ScanID()),
			attribute.String("variant", start.Variant),
			attribute.String("mode", start.Config.Mode),
			attribute.String("detector", start.Config.Detector),
			attribute.String("confirmer", start.Config.Confirmer),
			attribute.Int("concurrency", start.Config.Concurrency),
			attribute.Int("batch_size", start.Config.BatchSize),
			attribute.Int("pool_size", start.Config.PoolSize),
			attribute.Int64("resumed", start.Resumed),
		),
	)
}

func (h *OTelHook) handleResult(result *events.ResultEvent) {
	if h.rootSpan == nil || result.Result.Status != "vulnerable" {
		return
	}
	h.rootSpan.AddEvent("vulnerable", trace.WithAttributes(
		attribute.String("phase", string(result.Phase)),
		attribute.String("url", result.Task.URL),
		attribute.String("injection_point", result.Task.Point),
		attribute.String("evidence", result.Result.Evidence),
	))
}

func (h *OTelHook) handleProgress(progress *events.ProgressEvent) {
	if h.rootSpan == nil {
		return
	}
	h.rootSpan.AddEvent("batch_completed", trace.WithAttributes(
		attribute.String("phase", string(progress.Progress.Phase)),
		attribute.Int64("batch", progress.Progress.Batch),
		attribute.Int64("completed", progress.Progress.Completed),
		attribute.Int64("skipped", progress.Progress.Skipped),
		attribute.Int64("scanned", progress.Stats.Scanned),
		attribute.Int64("found", progress.Stats.Found),
	))
}

func (h *OTelHook) handleSummary(summary *events.SummaryEvent) {
	if h.rootSpan == nil {
		return
	}
	h.rootSpan.SetAttributes(
		attribute.String("state", summary.State),
		attribute.Int64("totals.scanned", summary.Totals.Scanned),
		attribute.Int64("totals.found", summary.Totals.Found),
		attribute.Int64("totals.confirmed", summary.Totals.Confirmed),
		attribute.Int64("totals.errors", summary.Totals.Errors),
		attribute.Int64("totals.unconfirmed", summary.Unconfirmed),
		attribute.Float64("timing.duration_sec", summary.Timing.Elapsed.Seconds()),
	)
	if summary.State == "completed" {
		h.rootSpan.SetStatus(codes.Ok, "")
	} else {
		h.rootSpan.SetStatus(codes.Error, summary.Reason)
	}
	h.rootSpan.End()
	h.rootSpan = nil
}

// EventTypes returns the event types this hook handles.
func (h *OTelHook) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTypeStart,
		events.EventTypeResult,
		events.EventTypeProgress,
		events.EventTypeSummary,
	}
}

// Close ends an unfinished span and flushes the provider it created.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	if h.rootSpan != nil {
		h.rootSpan.SetStatus(codes.Error, "scan span not finished")
		h.rootSpan.End()
		h.rootSpan = nil
	}

	if h.ownsProvider {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
		defer cancel()
		if err := h.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("otel: shutdown tracer provider: %w", err)
		}
	}
	return nil
}

// Endpoint returns the OTLP endpoint being used.
func (h *OTelHook) Endpoint() string { return h.opts.Endpoint }

// ServiceName returns the service name being used.
func (h *OTelHook) ServiceName() string { return h.opts.ServiceName }
