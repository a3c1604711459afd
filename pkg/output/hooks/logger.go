// Package hooks provides dispatcher.Hook implementations: structured
// logging, Prometheus metrics and OpenTelemetry traces.
package hooks

import (
	"context"
	"log/slog"

	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/events"
)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

var _ dispatcher.Hook = (*LoggerHook)(nil)

// LoggerHook writes scan events to a slog.Logger. Vulnerable results log at
// Info, candidates and progress at Debug, confirmation failures at Warn.
type LoggerHook struct {
	logger *slog.Logger
}

// NewLoggerHook returns a hook logging to l (slog.Default() if nil).
func NewLoggerHook(l *slog.Logger) *LoggerHook {
	return &LoggerHook{logger: orDefault(l)}
}

// OnEvent logs one event.
func (h *LoggerHook) OnEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.StartEvent:
		h.logger.InfoContext(ctx, "scan started",
			slog.String("scan_id", e.ScanID()),
			slog.String("variant", e.Variant),
			slog.Int("concurrency", e.Config.Concurrency),
			slog.Int("pool_size", e.Config.PoolSize),
			slog.Int64("resumed", e.Resumed))

	case *events.ResultEvent:
		attrs := []any{
			slog.String("phase", string(e.Phase)),
			slog.String("url", e.Task.URL),
			slog.String("status", e.Result.Status),
		}
		if e.Result.Evidence != "" {
			attrs = append(attrs, slog.String("evidence", e.Result.Evidence))
		}
		if e.Result.Reason != "" {
			attrs = append(attrs, slog.String("reason", e.Result.Reason))
		}
		switch e.Result.Status {
		case "vulnerable":
			h.logger.InfoContext(ctx, "vulnerable", attrs...)
		case "confirmation_failed":
			h.logger.WarnContext(ctx, "confirmation failed", attrs...)
		default:
			h.logger.DebugContext(ctx, "candidate", attrs...)
		}

	case *events.ProgressEvent:
		h.logger.DebugContext(ctx, "batch done",
			slog.String("phase", string(e.Progress.Phase)),
			slog.Int64("batch", e.Progress.Batch),
			slog.Int64("scanned", e.Stats.Scanned),
			slog.Int64("found", e.Stats.Found),
			slog.Duration("took", e.Timing.BatchDuration))

	case *events.SummaryEvent:
		h.logger.InfoContext(ctx, "scan finished",
			slog.String("scan_id", e.ScanID()),
			slog.String("state", e.State),
			slog.String("reason", e.Reason),
			slog.Int64("scanned", e.Totals.Scanned),
			slog.Int("vulnerable", len(e.Vulnerable)),
			slog.Int64("errors", e.Totals.Errors),
			slog.Duration("elapsed", e.Timing.Elapsed))
	}
	return nil
}

// EventTypes returns nil: the logger receives every event.
func (h *LoggerHook) EventTypes() []events.EventType { return nil }
