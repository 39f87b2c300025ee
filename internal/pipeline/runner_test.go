package pipeline_test

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"clipmerge/internal/config"
	"clipmerge/internal/history"
	"clipmerge/internal/logging"
	"clipmerge/internal/pipeline"
	"clipmerge/internal/testsupport"
)

type countingObserver struct {
	mu       sync.Mutex
	cycles   []string
	outcomes []string
	engine   []string
}

func (o *countingObserver) CycleStarted() {}
func (o *countingObserver) CycleFinished(trigger string, _ time.Duration) {
	o.mu.Lock()
	o.cycles = append(o.cycles, trigger)
	o.mu.Unlock()
}
func (o *countingObserver) BatchFinished(_, outcome string, _ int) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}
func (o *countingObserver) EngineFailure(reason string) {
	o.mu.Lock()
	o.engine = append(o.engine, reason)
	o.mu.Unlock()
}
func (o *countingObserver) Compression(string)    {}
func (o *countingObserver) Recovered(string, int) {}

func (o *countingObserver) cycleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cycles)
}

type fixture struct {
	cfg      *config.Config
	ledger   *history.Ledger
	engine   *testsupport.FakeEngine
	prober   *testsupport.FakeProber
	observer *countingObserver
	runner   *pipeline.Runner
}

func newFixture(t *testing.T, failOn []string, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	ledger := testsupport.MustOpenLedger(t, cfg)
	engine := testsupport.NewFakeEngine(failOn...)
	prober := testsupport.NewFakeProber()
	observer := &countingObserver{}
	runner := pipeline.New(cfg, ledger, logging.NewNop(),
		pipeline.WithEngine(engine),
		pipeline.WithProber(prober),
		pipeline.WithCompressor(engine),
		pipeline.WithObserver(observer),
	)
	return &fixture{cfg: cfg, ledger: ledger, engine: engine, prober: prober, observer: observer, runner: runner}
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.cfg.Paths.Root}, parts...)...)
}

func (f *fixture) cycle(t *testing.T) *pipeline.CycleSummary {
	t.Helper()
	summary, err := f.runner.RunCycle(context.Background(), pipeline.TriggerStartup, "")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return summary
}

func TestNewDayMergesAndArchives(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")
	testsupport.WriteFile(t, f.path("chess", "b_2024.03.01.mp4"), "B")

	summary := f.cycle(t)
	if summary.Count(pipeline.OutcomeCommitted) != 1 {
		t.Fatalf("expected one committed batch, got %+v", summary.Batches)
	}

	if got := testsupport.ReadFile(t, f.path("chess", "combined", "2024.03.01.mp4")); got != "A|B" {
		t.Fatalf("artifact content = %q, want A|B", got)
	}
	want := []string{
		"chess/combined/2024.03.01.mp4",
		"chess/processed/a_2024.03.01.mp4",
		"chess/processed/b_2024.03.01.mp4",
	}
	if got := testsupport.Tree(t, f.cfg.Paths.Root); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}

	spec, ok := f.engine.LastSpec()
	if !ok || len(spec.Inputs) != 2 {
		t.Fatalf("expected one concat of two inputs, got %+v", f.engine.Specs)
	}
	for _, in := range spec.Inputs {
		if in.FadeIn != 0.5 || in.FadeOut != 0.5 {
			t.Fatalf("expected 0.5s fades on %s, got in=%v out=%v", in.Path, in.FadeIn, in.FadeOut)
		}
	}
}

func TestLaterFragmentExtendsArtifact(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")
	testsupport.WriteFile(t, f.path("chess", "b_2024.03.01.mp4"), "B")
	f.cycle(t)

	testsupport.WriteFile(t, f.path("chess", "c_2024.03.01.mp4"), "C")
	summary := f.cycle(t)
	if len(summary.Batches) != 1 || summary.Batches[0].Mode != "extend" {
		t.Fatalf("expected one extend batch, got %+v", summary.Batches)
	}
	if summary.Batches[0].Archived != 1 {
		t.Fatalf("only the new fragment should be archived, got %d", summary.Batches[0].Archived)
	}
	if got := testsupport.ReadFile(t, f.path("chess", "combined", "2024.03.01.mp4")); got != "A|B|C" {
		t.Fatalf("artifact content = %q, want A|B|C", got)
	}

	spec, _ := f.engine.LastSpec()
	if len(spec.Inputs) != 2 {
		t.Fatalf("expected [existing, c], got %+v", spec.Inputs)
	}
	if spec.Inputs[0].FadeIn != 0 || spec.Inputs[0].FadeOut != 0 {
		t.Fatal("existing artifact must not be faded")
	}
	if spec.Inputs[1].FadeIn != 0.5 || spec.Inputs[1].FadeOut != 0.5 {
		t.Fatal("new fragment must be faded")
	}
	if !testsupport.Exists(f.path("chess", "processed", "c_2024.03.01.mp4")) {
		t.Fatal("c should be archived")
	}
	if testsupport.Exists(f.path("chess", "processed", "2024.03.01.mp4")) {
		t.Fatal("the existing artifact must never be archived")
	}
}

func TestKeylessFilesAreLeftAlone(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.WriteFile(t, f.path("chess", "notes.mp4"), "N")
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")

	summary := f.cycle(t)
	if summary.Count(pipeline.OutcomeCommitted) != 1 || len(summary.Skipped) != 1 {
		t.Fatalf("expected one batch and one skipped file, got %+v / %+v", summary.Batches, summary.Skipped)
	}
	if got := testsupport.ReadFile(t, f.path("chess", "notes.mp4")); got != "N" {
		t.Fatalf("keyless file modified: %q", got)
	}
	if testsupport.Exists(f.path("chess", "processed", "notes.mp4")) {
		t.Fatal("keyless file must not be archived")
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")
	testsupport.WriteFile(t, f.path("chess", "b_2024.03.02.mp4"), "B")
	testsupport.WriteFile(t, f.path("go", "x_2024.03.01.mp4"), "X")
	f.cycle(t)

	before := snapshot(t, f.cfg.Paths.Root)
	calls := f.engine.Calls
	summary := f.cycle(t)
	if len(summary.Batches) != 0 {
		t.Fatalf("second run planned batches: %+v", summary.Batches)
	}
	if f.engine.Calls != calls {
		t.Fatalf("engine invoked on second run")
	}
	if after := snapshot(t, f.cfg.Paths.Root); !reflect.DeepEqual(before, after) {
		t.Fatalf("tree changed on second run:\nbefore %v\nafter  %v", before, after)
	}
}

func TestEngineFailureIsIsolated(t *testing.T) {
	f := newFixture(t, []string{"bad_2024.03.02.mp4"})
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")
	testsupport.WriteFile(t, f.path("chess", "bad_2024.03.02.mp4"), "BAD")
	testsupport.WriteFile(t, f.path("chess", "ok_2024.03.02.mp4"), "OK")
	testsupport.WriteFile(t, f.path("go", "x_2024.03.02.mp4"), "X")

	summary := f.cycle(t)
	if summary.Count(pipeline.OutcomeCommitted) != 2 || summary.Count(pipeline.OutcomeFailed) != 1 {
		t.Fatalf("unexpected outcomes %+v", summary.Batches)
	}

	want := []string{
		"chess/bad_2024.03.02.mp4",
		"chess/combined/2024.03.01.mp4",
		"chess/ok_2024.03.02.mp4",
		"chess/processed/a_2024.03.01.mp4",
		"go/combined/2024.03.02.mp4",
		"go/processed/x_2024.03.02.mp4",
	}
	if got := testsupport.Tree(t, f.cfg.Paths.Root); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}

	failed, err := f.ledger.Recent(context.Background(), 10, history.StatusFailed)
	if err != nil || len(failed) != 1 || failed[0].Key != "2024.03.02" {
		t.Fatalf("expected one failed ledger entry for 2024.03.02, got %+v (%v)", failed, err)
	}
	if len(f.observer.engine) != 1 {
		t.Fatalf("expected one engine failure observation, got %v", f.observer.engine)
	}
}

func TestFailedBatchPreservesExistingArtifact(t *testing.T) {
	f := newFixture(t, []string{"bad_2024.03.01.mp4"})
	testsupport.WriteFile(t, f.path("chess", "combined", "2024.03.01.mp4"), "OLD")
	testsupport.WriteFile(t, f.path("chess", "bad_2024.03.01.mp4"), "BAD")

	f.cycle(t)
	if got := testsupport.ReadFile(t, f.path("chess", "combined", "2024.03.01.mp4")); got != "OLD" {
		t.Fatalf("existing artifact replaced after failure: %q", got)
	}
	for _, name := range testsupport.Tree(t, f.cfg.Paths.Root) {
		if strings.Contains(name, ".partial-") {
			t.Fatalf("temporary output left behind: %s", name)
		}
	}
}

func TestProbeFailureBlocksOnlyItsBatch(t *testing.T) {
	f := newFixture(t, nil)
	f.prober.NoAudio["mute_2024.03.01.mp4"] = true
	testsupport.WriteFile(t, f.path("chess", "mute_2024.03.01.mp4"), "M")
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.02.mp4"), "A")

	summary := f.cycle(t)
	if summary.Count(pipeline.OutcomeBlocked) != 1 || summary.Count(pipeline.OutcomeCommitted) != 1 {
		t.Fatalf("unexpected outcomes %+v", summary.Batches)
	}
	if !testsupport.Exists(f.path("chess", "mute_2024.03.01.mp4")) {
		t.Fatal("fragment of blocked batch must stay in place")
	}
}

func TestScopedModeMergesSubfolder(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.WriteFile(t, f.path("chess", "Tournament", "r1.mp4"), "R1")
	testsupport.WriteFile(t, f.path("chess", "Tournament", "r2.mp4"), "R2")
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")

	summary, err := f.runner.RunCycle(context.Background(), pipeline.TriggerStartup, "Tournament")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.Count(pipeline.OutcomeCommitted) != 1 {
		t.Fatalf("unexpected outcomes %+v", summary.Batches)
	}
	want := []string{
		"chess/Tournament/combined.mp4",
		"chess/Tournament/processed/r1.mp4",
		"chess/Tournament/processed/r2.mp4",
		"chess/a_2024.03.01.mp4",
	}
	if got := testsupport.Tree(t, f.cfg.Paths.Root); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}

	testsupport.WriteFile(t, f.path("chess", "Tournament", "r3.mp4"), "R3")
	if _, err := f.runner.RunCycle(context.Background(), pipeline.TriggerStartup, "Tournament"); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := testsupport.ReadFile(t, f.path("chess", "Tournament", "combined.mp4")); got != "R1|R2|R3" {
		t.Fatalf("scoped artifact = %q", got)
	}
}

func TestCompressionRunsAfterCommit(t *testing.T) {
	f := newFixture(t, nil, testsupport.WithCompression())
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")

	summary := f.cycle(t)
	if len(summary.Compressed) != 1 || summary.Compressed[0].Err != nil {
		t.Fatalf("expected one successful compression, got %+v", summary.Compressed)
	}
	if got := testsupport.ReadFile(t, f.path("chess", "combined", "2024.03.01.mp4")); got != "compressed:A" {
		t.Fatalf("final artifact = %q", got)
	}
	if testsupport.Exists(f.path("chess", "combined", "2024.03.01.mkv")) {
		t.Fatal("intermediate should be removed after compression")
	}
}

func TestStuckFragmentsAreDeferred(t *testing.T) {
	f := newFixture(t, nil)
	source := f.path("chess", "a_2024.03.01.mp4")
	testsupport.WriteFile(t, source, "A")
	testsupport.WriteFile(t, f.path("chess", "combined", "2024.03.01.mp4"), "A")
	// A regular file where the archive directory should be makes every move fail.
	testsupport.WriteFile(t, f.path("chess", "processed"), "not a directory")

	ctx := context.Background()
	entry := &history.Batch{
		CycleID:      "earlier",
		Category:     "chess",
		Key:          "2024.03.01",
		Mode:         "new",
		ArtifactPath: f.path("chess", "combined", "2024.03.01.mp4"),
		Fragments: []history.Fragment{{
			Name:        "a_2024.03.01.mp4",
			SourcePath:  source,
			ArchivePath: f.path("chess", "processed", "a_2024.03.01.mp4"),
		}},
	}
	if err := f.ledger.Begin(ctx, entry); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := f.ledger.MarkCommitted(ctx, entry.ID); err != nil {
		t.Fatalf("MarkCommitted: %v", err)
	}

	summary := f.cycle(t)
	if summary.Count(pipeline.OutcomeDeferred) != 1 {
		t.Fatalf("expected the batch to be deferred, got %+v", summary.Batches)
	}
	if f.engine.Calls != 0 {
		t.Fatal("a stuck fragment must not be merged a second time")
	}
	if got := testsupport.ReadFile(t, f.path("chess", "combined", "2024.03.01.mp4")); got != "A" {
		t.Fatalf("artifact changed: %q", got)
	}
}

func TestRunOneShotReturnsAfterStartupCycle(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")
	if err := f.runner.Run(context.Background(), "", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.observer.cycleCount() != 1 {
		t.Fatalf("expected exactly one cycle, got %d", f.observer.cycleCount())
	}
	if f.runner.State() != pipeline.StateIdle {
		t.Fatalf("state after run = %s", f.runner.State())
	}
}

func TestRunWatchModeCoalescesNotifications(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Watch.SettleSeconds = 0
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")

	notify := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.runner.Run(ctx, "", notify)
	}()
	waitFor(t, func() bool { return f.observer.cycleCount() >= 1 })

	testsupport.WriteFile(t, f.path("chess", "b_2024.03.01.mp4"), "B")
	for i := 0; i < 3; i++ {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	waitFor(t, func() bool { return f.observer.cycleCount() >= 2 })
	time.Sleep(200 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := f.observer.cycleCount(); n > 3 {
		t.Fatalf("burst of notifications produced %d cycles", n)
	}
	if got := testsupport.ReadFile(t, f.path("chess", "combined", "2024.03.01.mp4")); got != "A|B" {
		t.Fatalf("artifact content = %q", got)
	}
}

func TestStatusReportsLedgerCounts(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.WriteFile(t, f.path("chess", "a_2024.03.01.mp4"), "A")
	f.cycle(t)

	payload, err := f.runner.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	status, ok := payload.(pipeline.StatusSnapshot)
	if !ok {
		t.Fatalf("unexpected payload type %T", payload)
	}
	if status.State != "idle" || status.Ledger["archived"] != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.LastCycle == nil || status.LastCycle.Committed != 1 {
		t.Fatalf("unexpected last cycle %+v", status.LastCycle)
	}
}

func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	for _, rel := range testsupport.Tree(t, root) {
		files[rel] = testsupport.ReadFile(t, filepath.Join(root, filepath.FromSlash(rel)))
	}
	return files
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
