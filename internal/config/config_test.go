package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"clipmerge/internal/config"
)

func TestLoadDefaultConfigUsesEnvRootAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	root := filepath.Join(tempHome, "highlights")
	t.Setenv("CLIPMERGE_ROOT", root)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Paths.Root != root {
		t.Fatalf("unexpected root: got %q want %q", cfg.Paths.Root, root)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "clipmerge")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Logging.File != filepath.Join(wantState, "clipmerge.log") {
		t.Fatalf("unexpected log file: %q", cfg.Logging.File)
	}
	if !cfg.Merge.FadeEnabled || cfg.Merge.FadeSeconds != 0.5 {
		t.Fatalf("expected 0.5s fades by default, got enabled=%v seconds=%v", cfg.Merge.FadeEnabled, cfg.Merge.FadeSeconds)
	}
	if len(cfg.Fragments.Extensions) != 1 || cfg.Fragments.Extensions[0] != ".mp4" {
		t.Fatalf("unexpected fragment extensions: %v", cfg.Fragments.Extensions)
	}
	if cfg.ArtifactExt() != ".mp4" {
		t.Fatalf("unexpected artifact ext: %q", cfg.ArtifactExt())
	}
	if cfg.LockTimeout().Seconds() != 1 {
		t.Fatalf("unexpected lock timeout: %v", cfg.LockTimeout())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.StateDir); err != nil || !info.IsDir() {
		t.Fatalf("expected state dir to exist: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "clipmerge.toml")

	type payload struct {
		Paths struct {
			Root     string `toml:"root"`
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
		Fragments struct {
			Extensions []string `toml:"extensions"`
		} `toml:"fragments"`
		Compress struct {
			Enabled bool `toml:"enabled"`
		} `toml:"compress"`
	}
	custom := payload{}
	custom.Paths.Root = filepath.Join(tempDir, "root")
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Fragments.Extensions = []string{"MP4", ".mkv", "mp4", " "}
	custom.Compress.Enabled = true

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if got := strings.Join(cfg.Fragments.Extensions, ","); got != ".mp4,.mkv" {
		t.Fatalf("unexpected normalized extensions: %q", got)
	}
	if !cfg.IsFragmentExt(".MKV") {
		t.Fatal("expected extension matching to be case-insensitive")
	}
	if cfg.ArtifactExt() != ".mkv" {
		t.Fatalf("expected intermediate ext when compression enabled, got %q", cfg.ArtifactExt())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "clipmerge.toml")
	content := "[paths]\nroot = \"/tmp/x\"\nbogus = 1\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing root", func(c *config.Config) { c.Paths.Root = "" }, "paths.root is required"},
		{"same dirs", func(c *config.Config) { c.Fragments.ProcessedDir = c.Fragments.CombinedDir }, "must differ"},
		{"nested dir", func(c *config.Config) { c.Fragments.CombinedDir = "a/b" }, "plain directory"},
		{"hidden dir", func(c *config.Config) { c.Fragments.ProcessedDir = ".processed" }, "must not be hidden"},
		{"fade", func(c *config.Config) { c.Merge.FadeSeconds = 0 }, "merge.fade_seconds"},
		{"crf", func(c *config.Config) { c.Merge.CRF = 60 }, "merge.crf"},
		{"geometry", func(c *config.Config) { c.Merge.Width = 1920 }, "set together"},
		{"compress ext", func(c *config.Config) {
			c.Compress.Enabled = true
			c.Compress.IntermediateExt = c.Merge.OutputExt
		}, "compress.intermediate_ext"},
		{"lock", func(c *config.Config) { c.Lock.TimeoutSeconds = 0 }, "lock.timeout_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.Root = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadWithRootOverridesFile(t *testing.T) {
	t.Setenv("CLIPMERGE_ROOT", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "clipmerge.toml")
	if err := os.WriteFile(path, []byte("[paths]\nroot = \"/from/file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	root := t.TempDir()
	cfg, _, _, err := config.Load(path, config.WithRoot(root))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.Root != root {
		t.Fatalf("unexpected root: %q", cfg.Paths.Root)
	}

	cfg, _, _, err = config.Load(path, config.WithRoot("  "))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.Root != "/from/file" {
		t.Fatalf("blank override changed root to %q", cfg.Paths.Root)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "conf", "clipmerge.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Paths.Root != filepath.Join(tempHome, "Videos", "highlights") {
		t.Fatalf("unexpected sample root: %q", cfg.Paths.Root)
	}
}
