package consolidate_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"clipmerge/internal/catalog"
	"clipmerge/internal/config"
	"clipmerge/internal/consolidate"
	"clipmerge/internal/logging"
	"clipmerge/internal/media/ffmpeg"
	"clipmerge/internal/planner"
	"clipmerge/internal/services"
	"clipmerge/internal/testsupport"
)

func planSingle(t *testing.T, cfg *config.Config) *planner.Batch {
	t.Helper()
	p := planner.New(catalog.New(cfg, logging.NewNop()), logging.NewNop())
	plan, err := p.PlanRoot()
	if err != nil {
		t.Fatalf("PlanRoot: %v", err)
	}
	if len(plan.Batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(plan.Batches))
	}
	return plan.Batches[0]
}

func TestExecuteFadesEveryNewFragment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	chess := filepath.Join(cfg.Paths.Root, "chess")
	testsupport.WriteFile(t, filepath.Join(chess, "a_2024.03.01.mp4"), "A")
	testsupport.WriteFile(t, filepath.Join(chess, "b_2024.03.01.mp4"), "B")
	batch := planSingle(t, cfg)

	engine := testsupport.NewFakeEngine()
	exec := consolidate.New(cfg, logging.NewNop(),
		consolidate.WithEngine(engine),
		consolidate.WithProber(testsupport.NewFakeProber()),
	)
	output := filepath.Join(t.TempDir(), "out.mp4")
	result, err := exec.Execute(context.Background(), batch, output)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if engine.Calls != 1 {
		t.Fatalf("expected a single engine invocation, got %d", engine.Calls)
	}
	if result.Inputs != 2 || result.Faded != 2 || result.Method != consolidate.MethodReencode {
		t.Fatalf("unexpected result: %+v", result)
	}
	spec, _ := engine.LastSpec()
	for _, in := range spec.Inputs {
		if in.FadeIn != 0.5 || in.FadeOut != 0.5 || in.Duration != 10 {
			t.Fatalf("expected 0.5s fades on 10s input, got %+v", in)
		}
	}
	if got := testsupport.ReadFile(t, output); got != "A|B" {
		t.Fatalf("expected inputs in discovery order, got %q", got)
	}
}

func TestExecuteNeverFadesExistingArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	chess := filepath.Join(cfg.Paths.Root, "chess")
	testsupport.WriteFile(t, filepath.Join(chess, "combined", "2024.03.01.mp4"), "AB")
	testsupport.WriteFile(t, filepath.Join(chess, "c_2024.03.01.mp4"), "C")
	batch := planSingle(t, cfg)

	engine := testsupport.NewFakeEngine()
	exec := consolidate.New(cfg, logging.NewNop(),
		consolidate.WithEngine(engine),
		consolidate.WithProber(testsupport.NewFakeProber()),
	)
	output := filepath.Join(t.TempDir(), "out.mp4")
	result, err := exec.Execute(context.Background(), batch, output)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Faded != 1 {
		t.Fatalf("expected only the new fragment faded, got %d", result.Faded)
	}
	spec, _ := engine.LastSpec()
	if spec.Inputs[0].FadeIn != 0 || spec.Inputs[0].FadeOut != 0 {
		t.Fatalf("existing artifact must not be faded: %+v", spec.Inputs[0])
	}
	if spec.Inputs[1].FadeIn == 0 {
		t.Fatalf("new fragment should be faded: %+v", spec.Inputs[1])
	}
	if got := testsupport.ReadFile(t, output); got != "AB|C" {
		t.Fatalf("expected existing artifact first, got %q", got)
	}
}

func TestExecuteClampsFadeOnShortClips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.Root, "chess", "short_2024.03.01.mp4"), "S")
	batch := planSingle(t, cfg)

	prober := testsupport.NewFakeProber()
	prober.Durations["short_2024.03.01.mp4"] = 0.6
	engine := testsupport.NewFakeEngine()
	exec := consolidate.New(cfg, logging.NewNop(), consolidate.WithEngine(engine), consolidate.WithProber(prober))
	if _, err := exec.Execute(context.Background(), batch, filepath.Join(t.TempDir(), "out.mp4")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	spec, _ := engine.LastSpec()
	if spec.Inputs[0].FadeIn != 0.3 || spec.Inputs[0].FadeOut != 0.3 {
		t.Fatalf("expected fades clamped to half duration, got %+v", spec.Inputs[0])
	}
}

func TestExecuteStreamCopyWhenFadesDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutFades())
	cfg.Merge.StreamCopy = true
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.Root, "chess", "a_2024.03.01.mp4"), "A")
	batch := planSingle(t, cfg)

	engine := testsupport.NewFakeEngine()
	exec := consolidate.New(cfg, logging.NewNop(), consolidate.WithEngine(engine), consolidate.WithProber(testsupport.NewFakeProber()))
	result, err := exec.Execute(context.Background(), batch, filepath.Join(t.TempDir(), "out.mp4"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Method != consolidate.MethodStreamCopy || len(engine.Copies) != 1 || len(engine.Specs) != 0 {
		t.Fatalf("expected stream copy, got %+v (copies=%d specs=%d)", result, len(engine.Copies), len(engine.Specs))
	}
}

func TestExecuteProbeFailures(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(p *testsupport.FakeProber)
		marker error
	}{
		{"probe error", func(p *testsupport.FakeProber) { p.Fail["a_2024.03.01.mp4"] = true }, services.ErrExternalTool},
		{"no audio", func(p *testsupport.FakeProber) { p.NoAudio["a_2024.03.01.mp4"] = true }, services.ErrValidation},
		{"zero duration", func(p *testsupport.FakeProber) { p.Durations["a_2024.03.01.mp4"] = 0 }, services.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			testsupport.WriteFile(t, filepath.Join(cfg.Paths.Root, "chess", "a_2024.03.01.mp4"), "A")
			batch := planSingle(t, cfg)

			prober := testsupport.NewFakeProber()
			tc.setup(prober)
			engine := testsupport.NewFakeEngine()
			exec := consolidate.New(cfg, logging.NewNop(), consolidate.WithEngine(engine), consolidate.WithProber(prober))
			_, err := exec.Execute(context.Background(), batch, filepath.Join(t.TempDir(), "out.mp4"))
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
			if engine.Calls != 0 {
				t.Fatal("engine must not run when probing fails")
			}
		})
	}
}

func TestExecuteEngineFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.Root, "chess", "bad_2024.03.01.mp4"), "X")
	batch := planSingle(t, cfg)

	engine := testsupport.NewFakeEngine("bad_2024.03.01.mp4")
	exec := consolidate.New(cfg, logging.NewNop(), consolidate.WithEngine(engine), consolidate.WithProber(testsupport.NewFakeProber()))
	_, err := exec.Execute(context.Background(), batch, filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, ok := ffmpeg.AsEngineError(err); !ok {
		t.Fatalf("expected engine error in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_data") {
		t.Fatalf("expected reason in message, got %v", err)
	}
}

func TestExecuteKeepsGeometryWhenInputsMatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	chess := filepath.Join(cfg.Paths.Root, "chess")
	testsupport.WriteFile(t, filepath.Join(chess, "a_2024.03.01.mp4"), "A")
	testsupport.WriteFile(t, filepath.Join(chess, "b_2024.03.01.mp4"), "B")
	batch := planSingle(t, cfg)

	engine := testsupport.NewFakeEngine()
	exec := consolidate.New(cfg, logging.NewNop(), consolidate.WithEngine(engine), consolidate.WithProber(testsupport.NewFakeProber()))
	if _, err := exec.Execute(context.Background(), batch, filepath.Join(t.TempDir(), "out.mp4")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	spec, _ := engine.LastSpec()
	if spec.Encode.Width != 0 || spec.Encode.Height != 0 {
		t.Fatalf("matching inputs should keep source geometry, got %+v", spec.Encode)
	}
}
