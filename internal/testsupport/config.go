package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"clipmerge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The highlights root is created; fades stay enabled as in production.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Root = filepath.Join(base, "highlights")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Logging.File = filepath.Join(base, "state", "clipmerge.log")
	cfgVal.Metrics.Bind = "127.0.0.1:0"
	if err := os.MkdirAll(cfgVal.Paths.Root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithCompression enables the post-merge compression pass.
func WithCompression() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Compress.Enabled = true
	}
}

// WithoutFades disables fade effects.
func WithoutFades() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Merge.FadeEnabled = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}
