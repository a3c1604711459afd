// Package scanner runs the two-phase scan: every generated task is probed
// and classified, then candidates that need a second look are confirmed
// through the session pool. Work is dispatched in bounded batches and every
// verdict flows through a single result.Aggregator.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lostsec/lostsec/pkg/browser"
	"github.com/lostsec/lostsec/pkg/checkpoint"
	"github.com/lostsec/lostsec/pkg/confirm"
	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/detector"
	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/hosterrors"
	"github.com/lostsec/lostsec/pkg/httpclient"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/events"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/ratelimit"
	"github.com/lostsec/lostsec/pkg/result"
	"github.com/lostsec/lostsec/pkg/runner"
	"github.com/lostsec/lostsec/pkg/task"
)

// State is the lifecycle position of a Scanner.
type State int32

const (
	StateIdle State = iota
	StateProbing
	StateConfirming
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateConfirming:
		return "confirming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// UnconfirmedPolicy decides what happens to candidates that could not go
// through confirmation.
type UnconfirmedPolicy string

const (
	// PolicyDrop counts unconfirmed candidates as not vulnerable.
	PolicyDrop UnconfirmedPolicy = "drop"
	// PolicyReport counts unconfirmed candidates as vulnerable.
	PolicyReport UnconfirmedPolicy = "report"
)

// ParsePolicy accepts "drop" or "report".
func ParsePolicy(s string) (UnconfirmedPolicy, error) {
	switch p := UnconfirmedPolicy(s); p {
	case PolicyDrop, PolicyReport:
		return p, nil
	}
	return "", fmt.Errorf("%w: unconfirmed policy %q", ErrInvalidConfig, s)
}

// Sink receives the vulnerable URLs once, when the scan ends.
type Sink interface {
	Write(targets []string) error
}

// Progress is reported after every batch of either phase.
type Progress struct {
	Phase     events.Phase
	Batch     int64
	BatchSize int

	// Done counts items of this phase accounted for so far, including a
	// resumed prefix.
	Done int64

	Snapshot result.Snapshot
}

// Config wires a Scanner. Variant and Executor are required.
type Config struct {
	Variant Variant

	// Concurrency bounds in-flight probes (default 50).
	Concurrency int

	// BatchMultiplier sets batch size as a multiple of concurrency
	// (default 10).
	BatchMultiplier int

	// PoolSize is the number of confirmation sessions and the confirmation
	// concurrency. Zero disables confirmation.
	PoolSize int

	// Unconfirmed resolves candidates left without confirmation
	// (default drop).
	Unconfirmed UnconfirmedPolicy

	// ConfirmTimeout bounds the work done on one leased browser session,
	// excluding the wait for the lease. Sessionless confirmers ignore it.
	// Zero leaves it to the confirmer's own timeouts.
	ConfirmTimeout time.Duration

	Executor *probe.Executor

	// SessionFactory builds browser sessions. Required when the variant's
	// confirmer needs a session and PoolSize > 0.
	SessionFactory browser.Factory

	// Replenish replaces poisoned sessions instead of shrinking the pool.
	Replenish bool

	RateLimiter *ratelimit.Limiter
	HostErrors  *hosterrors.Cache

	// Checkpoint enables resume. Nil disables it.
	Checkpoint *checkpoint.Manager

	// Dispatcher receives start, result, progress and summary events. The
	// caller owns it and closes it after Scan returns.
	Dispatcher *dispatcher.Dispatcher

	Sink Sink

	OnProgress func(Progress)

	// OnInvalidTarget is told about targets the generator rejects.
	OnInvalidTarget func(target string, err error)

	Tracer trace.Tracer
	Logger *slog.Logger
}

// Scanner runs one scan.
type Scanner struct {
	cfg     Config
	id      string
	state   atomic.Int32
	started atomic.Bool
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New validates cfg and fills its defaults.
func New(cfg Config) (*Scanner, error) {
	if cfg.Variant.Detector == nil {
		return nil, fmt.Errorf("%w: variant has no detector", ErrInvalidConfig)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: no probe executor", ErrInvalidConfig)
	}
	if cfg.PoolSize < 0 {
		return nil, fmt.Errorf("%w: pool size %d", ErrInvalidConfig, cfg.PoolSize)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.ConcurrencyProbe
	}
	if cfg.BatchMultiplier <= 0 {
		cfg.BatchMultiplier = defaults.BatchMultiplier
	}
	if cfg.Unconfirmed == "" {
		cfg.Unconfirmed = PolicyDrop
	}
	if _, err := ParsePolicy(string(cfg.Unconfirmed)); err != nil {
		return nil, err
	}
	if c := cfg.Variant.Confirmer; c != nil && c.RequiresSession() && cfg.PoolSize > 0 && cfg.SessionFactory == nil {
		return nil, fmt.Errorf("%w: confirmer %s needs a session factory", ErrInvalidConfig, c.Name())
	}

	s := &Scanner{cfg: cfg, id: uuid.NewString(), logger: cfg.Logger, tracer: cfg.Tracer}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("lostsec/scanner")
	}
	return s, nil
}

// ID returns the scan ID used in events and checkpoints.
func (s *Scanner) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Scanner) State() State { return State(s.state.Load()) }

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

func (s *Scanner) setState(st State) { s.state.Store(int32(st)) }

// confirms reports whether candidates will go through a confirmer.
func (s *Scanner) confirms() bool {
	return s.cfg.Variant.Confirmer != nil && s.cfg.PoolSize > 0
}

// Scan probes every (target, payload, injection point) task and confirms
// the candidates. targets and payloads must be re-iterable.
//
// The snapshot is never nil once the scan has started. On cancellation
// the error wraps ErrCancelled and the snapshot holds only the tasks that
// ran. If the session pool cannot be built, the error wraps
// ErrResourceAcquisition and no probe is sent. Sink.Write is called
// exactly once in every case.
func (s *Scanner) Scan(ctx context.Context, targets, payloads iter.Seq[string]) (*result.Snapshot, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	v := s.cfg.Variant
	ctx, span := s.tracer.Start(ctx, "scanner.Scan", trace.WithAttributes(
		attribute.String("scan.id", s.id),
		attribute.String("scan.variant", v.Name),
		attribute.String("scan.mode", v.Mode.String()),
		attribute.Int("scan.concurrency", s.cfg.Concurrency),
		attribute.Int("scan.pool_size", s.cfg.PoolSize),
	))
	defer span.End()

	r := &scanRun{
		Scanner:  s,
		ctx:      ctx,
		detached: context.WithoutCancel(ctx),
		agg:      result.NewAggregator(s.id, v.Name, time.Now()),
	}
	r.resume(targets, payloads)

	var scanErr error
	if s.confirms() {
		scanErr = r.openConfirmer()
	}
	if scanErr == nil {
		scanErr = r.run(targets, payloads)
	}
	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			s.logger.Warn("session pool teardown", slog.String("error", err.Error()))
		}
	}

	snap, err := r.finish(scanErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.Int64("scan.scanned", snap.Scanned),
		attribute.Int64("scan.found", snap.Found),
	)
	return &snap, err
}

// scanRun is the mutable state of one Scan call.
type scanRun struct {
	*Scanner

	ctx      context.Context
	detached context.Context

	agg  *result.Aggregator
	pool *browser.Pool
	conf *confirm.Executor

	signature string

	// offset is the resumed task prefix; dispatched grows by whole
	// batches only.
	offset     int64
	dispatched int64

	mu      sync.Mutex
	pending []confirm.Candidate
	// confirmed holds the Seq of candidates resolved in the current,
	// not yet settled, confirm batch.
	confirmed map[uint64]struct{}

	// abandoned counts tasks of the current batch that never ran.
	abandoned atomic.Int64
}

// resume loads a matching checkpoint. Any problem with the file starts the
// scan fresh.
func (r *scanRun) resume(targets, payloads iter.Seq[string]) {
	if r.cfg.Checkpoint == nil {
		return
	}
	r.signature = checkpoint.Signature(r.cfg.Variant.Name, r.cfg.Variant.Mode.String(), targets, payloads)

	st, err := r.cfg.Checkpoint.Resume(r.signature)
	if err != nil {
		r.logger.Warn("ignoring checkpoint",
			slog.String("path", r.cfg.Checkpoint.Path()),
			slog.String("error", err.Error()))
		return
	}
	if st == nil {
		return
	}

	r.agg.Seed(st.Snapshot)
	r.offset = st.Dispatched
	r.dispatched = st.Dispatched
	r.pending = slices.Clone(st.Pending)
	r.logger.Info("resuming scan",
		slog.String("checkpoint", r.cfg.Checkpoint.Path()),
		slog.Int64("skipped_tasks", st.Dispatched),
		slog.Int("pending_candidates", len(st.Pending)))
}

// openConfirmer builds the session pool (when the confirmer needs one)
// before any probe is sent.
func (r *scanRun) openConfirmer() error {
	c := r.cfg.Variant.Confirmer
	if c.RequiresSession() {
		opts := []browser.PoolOption{browser.WithPoolLogger(r.logger)}
		if r.cfg.Replenish {
			opts = append(opts, browser.WithReplenish())
		}
		pool, err := browser.NewPool(r.ctx, r.cfg.PoolSize, r.cfg.SessionFactory, opts...)
		if err != nil {
			return err
		}
		r.pool = pool
	}

	conf, err := confirm.NewExecutor(c, r.pool, r.logger, confirm.WithSessionTimeout(r.cfg.ConfirmTimeout))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResourceAcquisition, err)
	}
	r.conf = conf
	return nil
}

func (r *scanRun) run(targets, payloads iter.Seq[string]) error {
	r.emitStart()

	r.setState(StateProbing)
	if err := r.probePhase(targets, payloads); err != nil {
		return err
	}

	if r.conf == nil {
		r.resolveUnconfirmed()
		return nil
	}
	r.setState(StateConfirming)
	return r.confirmPhase()
}

func (r *scanRun) probePhase(targets, payloads iter.Seq[string]) error {
	ctx, span := r.tracer.Start(r.ctx, "scanner.probe_phase")
	defer span.End()

	tasks := task.Generate(targets, payloads, r.cfg.Variant.Mode, r.cfg.OnInvalidTarget)
	if r.offset > 0 {
		tasks = skipPrefix(tasks, uint64(r.offset))
	}

	rn := runner.NewRunner[task.ProbeTask](r.cfg.Concurrency)
	rn.BatchSize = r.cfg.Concurrency * r.cfg.BatchMultiplier
	rn.OnBatch = func(info runner.BatchInfo) {
		if r.settleBatch(info) {
			r.dispatched += int64(info.Size)
			r.save(r.pendingCopy())
		}
		r.progress(events.PhaseProbe, info, r.dispatched, rn.Stats.RPS())
	}

	err := rn.Run(ctx, tasks, r.probe)
	span.SetAttributes(attribute.Int64("batches", rn.Stats.Batches))
	return err
}

func skipPrefix(seq iter.Seq[task.ProbeTask], n uint64) iter.Seq[task.ProbeTask] {
	return func(yield func(task.ProbeTask) bool) {
		for t := range seq {
			if t.Seq < n {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// probe handles one task. It runs on the detached context so a probe that
// started finishes under its own timeout.
func (r *scanRun) probe(t task.ProbeTask) {
	target, _ := t.URL()

	if r.cfg.HostErrors.Check(t.Target) {
		r.agg.RecordProbe(result.ProbeRecord{
			Task:    t,
			URL:     target,
			Verdict: finding.Failed(ErrHostSkipped),
			Skipped: true,
		})
		return
	}
	if err := r.cfg.RateLimiter.Wait(r.ctx, t.Target); err != nil {
		r.abandoned.Add(1)
		return
	}

	out := r.cfg.Executor.Execute(r.detached, t)
	if out.Failed() && errors.Is(out.Err, httpclient.ErrTransport) {
		if errors.Is(out.Err, httpclient.ErrDNS) {
			r.cfg.HostErrors.MarkPermanent(t.Target)
		} else {
			r.cfg.HostErrors.MarkError(t.Target)
		}
	}
	if out.URL != "" {
		target = out.URL
	}

	verdict, crashed := r.classify(t, out)
	r.agg.RecordProbe(result.ProbeRecord{
		Task:    t,
		URL:     target,
		Verdict: verdict,
		Failed:  out.Failed() || crashed,
	})

	if verdict.Status == finding.Potential {
		r.mu.Lock()
		r.pending = append(r.pending, confirm.Candidate{Task: t, URL: target, Probe: verdict})
		r.mu.Unlock()
	}
	if verdict.Status != finding.NotVulnerable {
		r.emitResult(events.PhaseProbe, t, target, verdict, out.StatusCode, out.Elapsed)
	}
}

// classify runs the detector. A panicking detector yields a failed verdict
// so the task is still counted.
func (r *scanRun) classify(t task.ProbeTask, out probe.Outcome) (v finding.Verdict, crashed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("detector panicked",
				slog.String("detector", r.cfg.Variant.Detector.Name()),
				slog.String("payload", t.Payload),
				slog.Any("panic", rec))
			v = finding.Failed(fmt.Errorf("%w: panic: %v", detector.ErrDetection, rec))
			crashed = true
		}
	}()
	return r.cfg.Variant.Detector.Classify(t, out), false
}

func (r *scanRun) confirmPhase() error {
	ctx, span := r.tracer.Start(r.ctx, "scanner.confirm_phase")
	defer span.End()

	r.mu.Lock()
	cands := r.pending
	r.mu.Unlock()
	slices.SortStableFunc(cands, func(a, b confirm.Candidate) int {
		switch {
		case a.Task.Seq < b.Task.Seq:
			return -1
		case a.Task.Seq > b.Task.Seq:
			return 1
		}
		return 0
	})
	span.SetAttributes(attribute.Int("candidates", len(cands)))
	if len(cands) == 0 {
		return nil
	}

	var done int
	rn := runner.NewRunner[confirm.Candidate](r.cfg.PoolSize)
	rn.BatchSize = r.cfg.PoolSize * r.cfg.BatchMultiplier
	rn.OnBatch = func(info runner.BatchInfo) {
		if r.settleBatch(info) {
			done += info.Size
			r.mu.Lock()
			r.pending = cands[done:]
			clear(r.confirmed)
			r.mu.Unlock()
			r.save(slices.Clone(cands[done:]))
		}
		r.progress(events.PhaseConfirm, info, int64(done), rn.Stats.RPS())
	}
	return rn.Run(ctx, slices.Values(cands), r.confirm)
}

func (r *scanRun) confirm(c confirm.Candidate) {
	start := time.Now()
	v := r.runConfirmer(c)
	r.agg.RecordConfirmation(c.Task, c.URL, v)
	r.mu.Lock()
	if r.confirmed == nil {
		r.confirmed = make(map[uint64]struct{})
	}
	r.confirmed[c.Task.Seq] = struct{}{}
	r.mu.Unlock()
	r.emitResult(events.PhaseConfirm, c.Task, c.URL, v, 0, time.Since(start))
}

// runConfirmer resolves one candidate. A panicking confirmer leaves the
// candidate Unconfirmable.
func (r *scanRun) runConfirmer(c confirm.Candidate) (v finding.Verdict) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("confirmer panicked",
				slog.String("confirmer", r.conf.Confirmer().Name()),
				slog.String("url", c.URL),
				slog.Any("panic", rec))
			v = finding.Unconfirmable(fmt.Sprintf("confirmer panic: %v", rec))
		}
	}()
	return r.conf.Confirm(r.detached, c)
}

// resolveUnconfirmed applies the unconfirmed policy to every candidate.
func (r *scanRun) resolveUnconfirmed() {
	r.mu.Lock()
	cands := r.pending
	r.pending = nil
	r.mu.Unlock()

	report := r.cfg.Unconfirmed == PolicyReport
	for _, c := range cands {
		r.agg.RecordUnconfirmed(c.Task, c.URL, c.Probe, report)
		v := finding.Verdict{Status: finding.NotVulnerable, Reason: "unconfirmed", Evidence: c.Probe.Evidence}
		if report {
			v.Status = finding.Vulnerable
		}
		r.emitResult(events.PhaseConfirm, c.Task, c.URL, v, 0, 0)
	}
}

// countUnresolved records candidates left pending by an abort as
// Unconfirmed without applying the policy. They stay in the checkpoint.
func (r *scanRun) countUnresolved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.pending {
		if _, ok := r.confirmed[c.Task.Seq]; ok {
			continue
		}
		r.agg.RecordUnconfirmed(c.Task, c.URL, c.Probe, false)
	}
}

// settleBatch reports whether every task of the batch ran, and resets the
// abandoned counter.
func (r *scanRun) settleBatch(info runner.BatchInfo) bool {
	if info.Panicked > 0 {
		r.logger.Error("batch lost tasks to a panic",
			slog.Int64("batch", info.Index),
			slog.Int64("panicked", info.Panicked))
	}
	return r.abandoned.Swap(0) == 0 && info.Skipped == 0 && info.Panicked == 0
}

func (r *scanRun) pendingCopy() []confirm.Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.pending)
}

func (r *scanRun) save(pending []confirm.Candidate) {
	if r.cfg.Checkpoint == nil {
		return
	}
	snap := r.agg.Snapshot()
	err := r.cfg.Checkpoint.Save(&checkpoint.State{
		Signature:  r.signature,
		Variant:    r.cfg.Variant.Name,
		ScanID:     r.id,
		StartTime:  snap.StartedAt,
		Dispatched: r.dispatched,
		Snapshot:   snap,
		Pending:    pending,
	})
	if err != nil {
		r.logger.Warn("checkpoint save failed", slog.String("error", err.Error()))
	}
}

// finish freezes the result, settles the checkpoint, writes the sink and
// emits the summary.
func (r *scanRun) finish(scanErr error) (result.Snapshot, error) {
	term := result.Termination{State: result.StateCompleted}
	switch {
	case scanErr == nil:
	case errors.Is(scanErr, context.Canceled), errors.Is(scanErr, context.DeadlineExceeded):
		scanErr = fmt.Errorf("%w: %w", ErrCancelled, scanErr)
		term = result.Termination{State: result.StateAborted, Reason: "cancelled"}
	default:
		term = result.Termination{State: result.StateAborted, Reason: scanErr.Error()}
	}

	if term.State == result.StateAborted {
		r.countUnresolved()
	}
	snap := r.agg.Freeze(term)
	if term.State == result.StateCompleted {
		r.setState(StateCompleted)
		if r.cfg.Checkpoint != nil {
			if err := r.cfg.Checkpoint.Delete(); err != nil {
				r.logger.Warn("checkpoint cleanup failed", slog.String("error", err.Error()))
			}
		}
	} else {
		r.setState(StateAborted)
	}

	if r.cfg.Sink != nil {
		if err := r.cfg.Sink.Write(snap.VulnerableURLs()); err != nil {
			r.logger.Error("writing results failed", slog.String("error", err.Error()))
			serr := fmt.Errorf("%w: %w", ErrSink, err)
			if scanErr == nil {
				scanErr = serr
			} else {
				scanErr = errors.Join(scanErr, serr)
			}
		}
	}

	r.emitSummary(snap)
	return snap, scanErr
}
