package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipmerge/internal/config"
	"clipmerge/internal/history"
	"clipmerge/internal/lock"
)

type cliTestEnv struct {
	root       string
	stateDir   string
	configPath string
}

const stubEncoders = `Encoders:
 ------
 V....D libx264              libx264 H.264
 V....D libx265              libx265 H.265
 A....D aac                  AAC
`

func setupCLITestEnv(t *testing.T, ffprobeScript string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("CLIPMERGE_ROOT", "")

	root := filepath.Join(base, "highlights")
	stateDir := filepath.Join(base, "state")
	binDir := filepath.Join(base, "bin")
	for _, dir := range []string{root, binDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	ffmpeg := filepath.Join(binDir, "ffmpeg")
	writeExecutable(t, ffmpeg, "#!/bin/sh\ncat <<'OUT'\n"+stubEncoders+"OUT\n")
	ffprobe := filepath.Join(binDir, "ffprobe")
	if ffprobeScript == "" {
		ffprobeScript = "#!/bin/sh\nexit 0\n"
	}
	writeExecutable(t, ffprobe, ffprobeScript)

	configPath := filepath.Join(base, "clipmerge.toml")
	content := fmt.Sprintf(
		"[paths]\nroot = %q\nstate_dir = %q\n\n[merge]\nffmpeg_binary = %q\nffprobe_binary = %q\n\n[logging]\nfile = %q\n",
		root, stateDir, ffmpeg, ffprobe, filepath.Join(stateDir, "clipmerge.log"),
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{root: root, stateDir: stateDir, configPath: configPath}
}

func loadTestConfig(t *testing.T, env *cliTestEnv) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

func writeExecutable(t *testing.T, path, script string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.root)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestRootFlagOverridesConfig(t *testing.T) {
	env := setupCLITestEnv(t, "")
	other := t.TempDir()
	out, _, err := runCLI(t, []string{"--root", other, "config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Highlights root: "+other)
}

func TestRunRejectsExtraArguments(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, _, err := runCLI(t, []string{"one", "two"}, env.configPath); err == nil {
		t.Fatal("expected an error for two positional arguments")
	}
}

func TestRunLeavesKeylessFilesAlone(t *testing.T) {
	env := setupCLITestEnv(t, "")
	notes := filepath.Join(env.root, "chess", "notes.mp4")
	writeFile(t, notes, "N")

	if _, _, err := runCLI(t, nil, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	if data, err := os.ReadFile(notes); err != nil || string(data) != "N" {
		t.Fatalf("keyless file changed: %q (%v)", data, err)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No batches recorded")
}

func TestRunSucceedsWhenBatchFails(t *testing.T) {
	env := setupCLITestEnv(t, "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n")
	fragment := filepath.Join(env.root, "chess", "a_2024.03.01.mp4")
	writeFile(t, fragment, "A")

	if _, _, err := runCLI(t, nil, env.configPath); err != nil {
		t.Fatalf("a failed batch must not fail the run: %v", err)
	}
	if _, err := os.Stat(fragment); err != nil {
		t.Fatalf("fragment of failed batch must stay in place: %v", err)
	}

	out, _, err := runCLI(t, []string{"history", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "chess/2024.03.01")
	requireContains(t, out, "failed 1")
}

func TestRunFailsWhenLockHeld(t *testing.T) {
	env := setupCLITestEnv(t, "")
	cfg := loadTestConfig(t, env)
	held, err := lock.Acquire(context.Background(), cfg.LockPath(), time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	_, _, err = runCLI(t, nil, env.configPath)
	if err == nil {
		t.Fatal("expected lock failure")
	}
	requireContains(t, err.Error(), "already running")
}

func TestHistoryListsLedgerEntries(t *testing.T) {
	env := setupCLITestEnv(t, "")
	cfg := loadTestConfig(t, env)
	ledger, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	entry := &history.Batch{
		CycleID:      "c1",
		Category:     "chess",
		Key:          "2024.03.01",
		Mode:         "new",
		ArtifactPath: filepath.Join(env.root, "chess", "combined", "2024.03.01.mp4"),
		TempPath:     filepath.Join(env.root, "chess", "combined", ".2024.03.01.partial-1a2b3c4d.mp4"),
		Fragments: []history.Fragment{{
			Name:        "a_2024.03.01.mp4",
			SourcePath:  filepath.Join(env.root, "chess", "a_2024.03.01.mp4"),
			ArchivePath: filepath.Join(env.root, "chess", "processed", "a_2024.03.01.mp4"),
		}},
	}
	if err := ledger.Begin(ctx, entry); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := ledger.MarkCommitted(ctx, entry.ID); err != nil {
		t.Fatalf("MarkCommitted: %v", err)
	}
	if err := ledger.MarkArchived(ctx, entry.ID); err != nil {
		t.Fatalf("MarkArchived: %v", err)
	}
	_ = ledger.Close()

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "chess/2024.03.01")
	requireContains(t, out, "2024.03.01.mp4")
	requireContains(t, out, "archived 1")

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	requireContains(t, out, `"a_2024.03.01.mp4"`)
	requireContains(t, out, `"archived": 1`)

	if _, _, err := runCLI(t, []string{"history", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestDoctor(t *testing.T) {
	env := setupCLITestEnv(t, "")
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "Encoders")

	out, _, err = runCLI(t, []string{"doctor", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor --json: %v", err)
	}
	requireContains(t, out, `"name": "FFmpeg"`)
	requireContains(t, out, `"passed": true`)

	_, _, err = runCLI(t, []string{"--root", filepath.Join(t.TempDir(), "missing"), "doctor"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail for a missing root")
	}
}
