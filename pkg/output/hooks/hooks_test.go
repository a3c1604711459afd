package hooks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lostsec/lostsec/pkg/output/events"
)

type logRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler       { return r }

func (r *logRecorder) byMessage(msg string) []slog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []slog.Record
	for _, rec := range r.records {
		if rec.Message == msg {
			out = append(out, rec)
		}
	}
	return out
}

func scanEvents() []events.Event {
	return []events.Event{
		&events.StartEvent{BaseEvent: events.NewBase(events.EventTypeStart, "scan-1"), Variant: "xss",
			Config: events.ScanConfig{Concurrency: 4, PoolSize: 2}},
		&events.ResultEvent{BaseEvent: events.NewBase(events.EventTypeResult, "scan-1"), Phase: events.PhaseProbe,
			Task: events.TaskInfo{URL: "http://x/?q=a"}, Result: events.ResultInfo{Status: "potential"}},
		&events.ResultEvent{BaseEvent: events.NewBase(events.EventTypeResult, "scan-1"), Phase: events.PhaseConfirm,
			Task: events.TaskInfo{URL: "http://x/?q=a"}, Result: events.ResultInfo{Status: "vulnerable", Evidence: "alert: 1"}},
		&events.ProgressEvent{BaseEvent: events.NewBase(events.EventTypeProgress, "scan-1"),
			Progress: events.ProgressInfo{Phase: events.PhaseProbe, Batch: 1, Completed: 3},
			Stats:    events.StatsInfo{Scanned: 3, Found: 1, Errors: 1},
			Timing:   events.TimingInfo{BatchDuration: 300 * time.Millisecond}},
		&events.SummaryEvent{BaseEvent: events.NewBase(events.EventTypeSummary, "scan-1"), Variant: "xss", State: "completed",
			Totals: events.StatsInfo{Scanned: 3, Found: 1, Confirmed: 1, Errors: 1},
			Timing: events.SummaryTiming{Elapsed: 2 * time.Second}},
	}
}

func TestOrDefault(t *testing.T) {
	assert.Same(t, slog.Default(), orDefault(nil))
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, custom, orDefault(custom))
}

func TestLoggerHook(t *testing.T) {
	rec := &logRecorder{}
	h := NewLoggerHook(slog.New(rec))
	assert.Nil(t, h.EventTypes())

	for _, e := range scanEvents() {
		require.NoError(t, h.OnEvent(context.Background(), e))
	}

	assert.Len(t, rec.byMessage("scan started"), 1)
	assert.Len(t, rec.byMessage("candidate"), 1)
	assert.Len(t, rec.byMessage("batch done"), 1)
	assert.Len(t, rec.byMessage("scan finished"), 1)

	vuln := rec.byMessage("vulnerable")
	require.Len(t, vuln, 1)
	assert.Equal(t, slog.LevelInfo, vuln[0].Level)
}

func TestPrometheusHook_Metrics(t *testing.T) {
	h, err := NewPrometheusHook(PrometheusOptions{})
	require.NoError(t, err)
	defer h.Close()
	assert.Empty(t, h.MetricsAddr())

	for _, e := range scanEvents() {
		require.NoError(t, h.OnEvent(context.Background(), e))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(h.resultsTotal.WithLabelValues("xss", "confirm", "vulnerable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.resultsTotal.WithLabelValues("xss", "probe", "potential")))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.scanned.WithLabelValues("xss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.errorsTotal.WithLabelValues("xss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.duration.WithLabelValues("xss", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(h.batchSeconds))
}

func TestPrometheusHook_Handler(t *testing.T) {
	h, err := NewPrometheusHook(PrometheusOptions{})
	require.NoError(t, err)
	defer h.Close()

	for _, e := range scanEvents() {
		require.NoError(t, h.OnEvent(context.Background(), e))
	}

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "lostsec_tasks_scanned"))
}

func TestPrometheusHook_IgnoresEventsAfterClose(t *testing.T) {
	h, err := NewPrometheusHook(PrometheusOptions{})
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	require.NoError(t, h.OnEvent(context.Background(), scanEvents()[2]))
	assert.Equal(t, 0, testutil.CollectAndCount(h.resultsTotal))
}

func TestOTelHook_RecordsScanSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	h, err := NewOTelHook(OTelOptions{TracerProvider: tp})
	require.NoError(t, err)
	assert.Equal(t, "lostsec", h.ServiceName())

	for _, e := range scanEvents() {
		require.NoError(t, h.OnEvent(context.Background(), e))
	}
	require.NoError(t, h.Close())

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "lostsec.scan", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	var names []string
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"vulnerable", "batch_completed"}, names)
}

func TestOTelHook_CloseEndsOpenSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	h, err := NewOTelHook(OTelOptions{TracerProvider: tp})
	require.NoError(t, err)
	require.NoError(t, h.OnEvent(context.Background(), scanEvents()[0]))
	require.NoError(t, h.Close())

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
