package scanner

import (
	"time"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/output/events"
	"github.com/lostsec/lostsec/pkg/result"
	"github.com/lostsec/lostsec/pkg/runner"
	"github.com/lostsec/lostsec/pkg/task"
)

// dispatch sends an event on the detached context so the summary of an
// aborted scan still goes out. Failures are counted by the dispatcher.
func (r *scanRun) dispatch(e events.Event) {
	if r.cfg.Dispatcher == nil {
		return
	}
	_ = r.cfg.Dispatcher.Dispatch(r.detached, e)
}

func (r *scanRun) emitStart() {
	if r.cfg.Dispatcher == nil {
		return
	}
	v := r.cfg.Variant
	cfg := events.ScanConfig{
		Concurrency:  r.cfg.Concurrency,
		BatchSize:    r.cfg.Concurrency * r.cfg.BatchMultiplier,
		PoolSize:     r.cfg.PoolSize,
		TimeoutSec:   int(r.cfg.Executor.Config().Timeout / time.Second),
		Mode:         v.Mode.String(),
		Detector:     v.Detector.Name(),
		Unconfirmed:  string(r.cfg.Unconfirmed),
		RateLimitRPS: r.cfg.RateLimiter.Limit(),
	}
	if v.Confirmer != nil {
		cfg.Confirmer = v.Confirmer.Name()
	}
	r.dispatch(&events.StartEvent{
		BaseEvent: events.NewBase(events.EventTypeStart, r.id),
		Variant:   v.Name,
		Config:    cfg,
		Resumed:   r.offset,
	})
}

func taskInfo(t task.ProbeTask, url string) events.TaskInfo {
	return events.TaskInfo{
		Seq:     t.Seq,
		Target:  t.Target,
		Payload: t.Payload,
		Point:   t.Point.String(),
		URL:     url,
	}
}

func (r *scanRun) emitResult(phase events.Phase, t task.ProbeTask, url string, v finding.Verdict, status int, latency time.Duration) {
	r.dispatch(&events.ResultEvent{
		BaseEvent: events.NewBase(events.EventTypeResult, r.id),
		Phase:     phase,
		Task:      taskInfo(t, url),
		Result: events.ResultInfo{
			Status:     v.Status.String(),
			Reason:     v.Reason,
			Evidence:   v.Evidence,
			StatusCode: status,
			Latency:    latency,
		},
	})
}

func statsInfo(s result.Snapshot) events.StatsInfo {
	return events.StatsInfo{
		Scanned:              s.Scanned,
		Found:                s.Found,
		Confirmed:            s.Confirmed,
		Candidates:           s.Candidates,
		Errors:               s.Errors,
		Skipped:              s.Skipped,
		ConfirmationFailures: s.ConfirmationFailures,
	}
}

// progress reports a finished batch to the callback and the event stream.
func (r *scanRun) progress(phase events.Phase, info runner.BatchInfo, done int64, rps float64) {
	snap := r.agg.Snapshot()
	if r.cfg.OnProgress != nil {
		r.cfg.OnProgress(Progress{
			Phase:     phase,
			Batch:     info.Index,
			BatchSize: info.Size,
			Done:      done,
			Snapshot:  snap,
		})
	}
	r.dispatch(&events.ProgressEvent{
		BaseEvent: events.NewBase(events.EventTypeProgress, r.id),
		Progress: events.ProgressInfo{
			Phase:     phase,
			Batch:     info.Index,
			BatchSize: info.Size,
			Completed: info.Completed,
			Skipped:   info.Skipped,
		},
		Stats: statsInfo(snap),
		Timing: events.TimingInfo{
			StartedAt:      snap.StartedAt,
			Elapsed:        time.Since(snap.StartedAt),
			BatchDuration:  info.Duration,
			RequestsPerSec: rps,
		},
	})
}

func (r *scanRun) emitSummary(snap result.Snapshot) {
	vuln := make([]events.TaskInfo, 0, len(snap.Vulnerable))
	for _, f := range snap.Vulnerable {
		vuln = append(vuln, taskInfo(f.Task, f.URL))
	}
	r.dispatch(&events.SummaryEvent{
		BaseEvent:   events.NewBase(events.EventTypeSummary, r.id),
		Version:     defaults.Version,
		Variant:     snap.Variant,
		State:       string(snap.Termination.State),
		Reason:      snap.Termination.Reason,
		Totals:      statsInfo(snap),
		Unconfirmed: snap.Unconfirmed,
		Vulnerable:  vuln,
		Timing: events.SummaryTiming{
			StartedAt: snap.StartedAt,
			Elapsed:   snap.Elapsed,
		},
	})
}
