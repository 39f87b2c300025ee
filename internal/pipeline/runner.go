package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clipmerge/internal/catalog"
	"clipmerge/internal/commit"
	"clipmerge/internal/config"
	"clipmerge/internal/consolidate"
	"clipmerge/internal/history"
	"clipmerge/internal/logging"
	"clipmerge/internal/media/ffmpeg"
	"clipmerge/internal/media/ffprobe"
	"clipmerge/internal/planner"
	"clipmerge/internal/services"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerWatch   Trigger = "watch"
)

// Batch outcomes reported per batch.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeBlocked   = "blocked"
	OutcomeDeferred  = "deferred"
)

// Observer receives cycle activity. *metrics.Recorder satisfies it.
type Observer interface {
	CycleStarted()
	CycleFinished(trigger string, elapsed time.Duration)
	BatchFinished(mode, outcome string, archived int)
	EngineFailure(reason string)
	Compression(outcome string)
	Recovered(action string, n int)
}

type nopObserver struct{}

func (nopObserver) CycleStarted() {}
func (nopObserver) CycleFinished(string, time.Duration) {}
func (nopObserver) BatchFinished(string, string, int) {}
func (nopObserver) EngineFailure(string) {}
func (nopObserver) Compression(string) {}
func (nopObserver) Recovered(string, int) {}

// Option configures a Runner.
type Option func(*options)

type options struct {
	engine     consolidate.Engine
	prober     ffprobe.Prober
	compressor commit.Compressor
	observer   Observer
	clock      func() time.Time
}

// WithEngine replaces the ffmpeg-backed consolidation engine.
func WithEngine(engine consolidate.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithProber replaces the ffprobe-backed prober.
func WithProber(prober ffprobe.Prober) Option {
	return func(o *options) { o.prober = prober }
}

// WithCompressor replaces the ffmpeg-backed compressor.
func WithCompressor(c commit.Compressor) Option {
	return func(o *options) { o.compressor = c }
}

// WithObserver attaches a cycle observer.
func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithClock overrides the clock used for fragment age checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Runner owns the components of a cycle.
type Runner struct {
	cfg      *config.Config
	ledger   *history.Ledger
	catalog  *catalog.Catalog
	planner  *planner.Planner
	executor *consolidate.Executor
	commit   *commit.Manager
	observer Observer
	logger   *slog.Logger

	state atomic.Int32
	cycle sync.Mutex

	mu   sync.RWMutex
	last *CycleSummary
}

// New wires a Runner around ledger.
func New(cfg *config.Config, ledger *history.Ledger, logger *slog.Logger, opts ...Option) *Runner {
	o := options{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var catOpts []catalog.Option
	if o.clock != nil {
		catOpts = append(catOpts, catalog.WithClock(o.clock))
	}
	cat := catalog.New(cfg, logger, catOpts...)

	var execOpts []consolidate.Option
	if o.engine != nil {
		execOpts = append(execOpts, consolidate.WithEngine(o.engine))
	}
	if o.prober != nil {
		execOpts = append(execOpts, consolidate.WithProber(o.prober))
	}
	var commitOpts []commit.Option
	if o.compressor != nil {
		commitOpts = append(commitOpts, commit.WithCompressor(o.compressor))
	}

	return &Runner{
		cfg:      cfg,
		ledger:   ledger,
		catalog:  cat,
		planner:  planner.New(cat, logger),
		executor: consolidate.New(cfg, logger, execOpts...),
		commit:   commit.New(cfg, cat, ledger, logger, commitOpts...),
		observer: o.observer,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// State reports whether a cycle is running.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// RunCycle performs one full consolidation pass. An empty scope plans the
// whole root; otherwise only the named scope folder in every category.
func (r *Runner) RunCycle(ctx context.Context, trigger Trigger, scope string) (*CycleSummary, error) {
	r.cycle.Lock()
	defer r.cycle.Unlock()

	summary := &CycleSummary{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Scope:     scope,
		StartedAt: time.Now(),
	}
	logger := r.logger.With(
		logging.String(logging.FieldCycleID, summary.ID),
		logging.String("trigger", string(trigger)),
	)

	r.state.Store(int32(StateConsolidating))
	r.observer.CycleStarted()
	defer func() {
		summary.Elapsed = time.Since(summary.StartedAt)
		r.state.Store(int32(StateIdle))
		r.observer.CycleFinished(string(trigger), summary.Elapsed)
		r.setLast(summary)
	}()

	recovery, err := r.commit.Recover(ctx)
	if err != nil {
		return summary, err
	}
	summary.Recovered = recovery.Completed
	summary.Discarded = recovery.Discarded
	r.observer.Recovered("completed", recovery.Completed)
	r.observer.Recovered("discarded", recovery.Discarded)

	removed, err := r.commit.CleanupOrphans(ctx)
	if err != nil {
		return summary, err
	}
	summary.OrphansRemoved = removed

	plan, err := r.plan(scope)
	if err != nil {
		return summary, err
	}
	summary.Skipped = plan.Skipped
	logger.Info("cycle planned",
		logging.Int("batches", len(plan.Batches)),
		logging.Int("fragments", plan.FragmentCount()),
		logging.Int("skipped", len(plan.Skipped)),
	)

	for _, batch := range plan.Batches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		report := r.runBatch(ctx, logger, summary.ID, batch, recovery.Stuck)
		summary.Batches = append(summary.Batches, report)
		r.observer.BatchFinished(report.Mode, report.Outcome, report.Archived)
	}

	compressed, err := r.commit.CompressPending(ctx)
	summary.Compressed = compressed
	for _, result := range compressed {
		if result.Err != nil {
			r.observer.Compression("failed")
		} else {
			r.observer.Compression("succeeded")
		}
	}
	if err != nil {
		return summary, err
	}

	logger.Info("cycle complete",
		logging.Int("committed", summary.Count(OutcomeCommitted)),
		logging.Int("failed", summary.Count(OutcomeFailed)+summary.Count(OutcomeBlocked)),
		logging.Int("deferred", summary.Count(OutcomeDeferred)),
		logging.Int("compressed", len(compressed)),
		logging.Duration("elapsed", time.Since(summary.StartedAt)),
	)
	return summary, nil
}

func (r *Runner) plan(scope string) (*planner.Plan, error) {
	if scope == "" {
		return r.planner.PlanRoot()
	}
	return r.planner.PlanScope(scope)
}

func (r *Runner) runBatch(ctx context.Context, cycleLogger *slog.Logger, cycleID string, batch *planner.Batch, stuck map[string]struct{}) BatchReport {
	report := BatchReport{
		Label:     batch.Label(),
		Category:  batch.Category,
		Key:       batch.Key,
		Mode:      string(batch.Mode),
		Fragments: len(batch.Fragments),
	}
	logger := cycleLogger.With(
		logging.String(logging.FieldCategory, batch.Category),
		logging.String(logging.FieldKey, batch.Key),
		logging.String("mode", report.Mode),
	)

	for _, fragment := range batch.Fragments {
		if _, ok := stuck[fragment.Path]; ok {
			report.Outcome = OutcomeDeferred
			logging.WarnWithContext(logger, "batch deferred; fragments still belong to an unarchived artifact", "batch_deferred",
				logging.String("fragment", fragment.Path),
				logging.String(logging.FieldImpact, "batch waits until recovery archives the earlier commit"),
			)
			return report
		}
	}

	temp, err := r.commit.Stage(batch)
	if err != nil {
		return r.fail(ctx, logger, cycleID, batch, report, err)
	}
	if err := r.commit.Preflight(batch); err != nil {
		return r.fail(ctx, logger, cycleID, batch, report, err)
	}

	if _, err := r.executor.Execute(ctx, batch, temp); err != nil {
		r.commit.Discard(temp)
		if engineErr, ok := ffmpeg.AsEngineError(err); ok {
			r.observer.EngineFailure(string(engineErr.Reason))
		}
		return r.fail(ctx, logger, cycleID, batch, report, err)
	}

	outcome, err := r.commit.Commit(ctx, cycleID, batch, temp)
	report.Artifact = outcome.ArtifactPath
	report.Archived = len(outcome.Archived)
	switch {
	case err == nil:
		report.Outcome = OutcomeCommitted
	case outcome.Committed:
		// Recovery finishes the remaining moves on the next cycle.
		report.Outcome = OutcomeCommitted
		report.Err = err
	case outcome.BatchID != "":
		report.Err = err
		report.Outcome = outcomeFor(err)
		r.logFailure(logger, err)
	default:
		return r.fail(ctx, logger, cycleID, batch, report, err)
	}
	return report
}

// fail journals a batch that did not reach the commit point.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, cycleID string, batch *planner.Batch, report BatchReport, err error) BatchReport {
	report.Err = err
	report.Outcome = outcomeFor(err)
	if errors.Is(err, context.Canceled) {
		return report
	}
	r.commit.RecordFailure(context.WithoutCancel(ctx), cycleID, batch, err)
	r.logFailure(logger, err)
	return report
}

func (r *Runner) logFailure(logger *slog.Logger, err error) {
	hint := "inspect the fragment with ffprobe; the batch is retried next cycle"
	if services.FailureStatus(err) == history.StatusBlocked {
		hint = "resolve the conflict by hand; fragments stay in place"
	}
	logging.ErrorWithContext(logger, "batch failed; inputs left untouched", "batch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
	)
}

func outcomeFor(err error) string {
	if services.FailureStatus(err) == history.StatusBlocked {
		return OutcomeBlocked
	}
	return OutcomeFailed
}

func (r *Runner) setLast(summary *CycleSummary) {
	r.mu.Lock()
	r.last = summary
	r.mu.Unlock()
}

// LastCycle returns the most recent cycle summary, if any.
func (r *Runner) LastCycle() *CycleSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}
