package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the highlights root and the directory used for process state.
type Paths struct {
	Root     string `toml:"root"`
	StateDir string `toml:"state_dir"`
}

// Fragments describes how unmerged clips and their sibling areas are named.
type Fragments struct {
	Extensions         []string `toml:"extensions"`
	CombinedDir        string   `toml:"combined_dir"`
	ProcessedDir       string   `toml:"processed_dir"`
	ScopedArtifactName string   `toml:"scoped_artifact_name"`
	MinAgeSeconds      int      `toml:"min_age_seconds"`
}

// Merge contains the settings for a single consolidation invocation.
type Merge struct {
	FadeEnabled   bool    `toml:"fade_enabled"`
	FadeSeconds   float64 `toml:"fade_seconds"`
	StreamCopy    bool    `toml:"stream_copy"`
	VideoCodec    string  `toml:"video_codec"`
	AudioCodec    string  `toml:"audio_codec"`
	Preset        string  `toml:"preset"`
	CRF           int     `toml:"crf"`
	AudioBitrate  string  `toml:"audio_bitrate"`
	Width         int     `toml:"width"`
	Height        int     `toml:"height"`
	FPS           int     `toml:"fps"`
	OutputExt     string  `toml:"output_ext"`
	FFmpegBinary  string  `toml:"ffmpeg_binary"`
	FFprobeBinary string  `toml:"ffprobe_binary"`
}

// Compress configures the optional re-encode of intermediate artifacts into
// the distribution format.
type Compress struct {
	Enabled         bool   `toml:"enabled"`
	IntermediateExt string `toml:"intermediate_ext"`
	VideoCodec      string `toml:"video_codec"`
	AudioCodec      string `toml:"audio_codec"`
	Preset          string `toml:"preset"`
	CRF             int    `toml:"crf"`
	AudioBitrate    string `toml:"audio_bitrate"`
}

// Watch configures filesystem-triggered consolidation.
type Watch struct {
	Enabled       bool `toml:"enabled"`
	SettleSeconds int  `toml:"settle_seconds"`
}

// Lock configures single-instance enforcement.
type Lock struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format       string `toml:"format"`
	Level        string `toml:"level"`
	File         string `toml:"file"`
	MaxSizeMB    int    `toml:"max_size_mb"`
	MaxBackups   int    `toml:"max_backups"`
	MaxAgeDays   int    `toml:"max_age_days"`
	DisableColor bool   `toml:"disable_color"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for clipmerge.
//
// Configuration sections by subsystem:
//   - Paths: highlights root and state directory (lock, ledger, logs)
//   - Fragments: naming of fragments, combined/ and processed/ areas
//   - Merge: fades and encode settings for consolidation
//   - Compress: optional intermediate-to-final re-encode
//   - Watch: filesystem notification trigger
//   - Lock: single-instance timeout
//   - Logging: log format, level, and file rotation
//   - Metrics: Prometheus endpoint bind address
type Config struct {
	Paths     Paths     `toml:"paths"`
	Fragments Fragments `toml:"fragments"`
	Merge     Merge     `toml:"merge"`
	Compress  Compress  `toml:"compress"`
	Watch     Watch     `toml:"watch"`
	Lock      Lock      `toml:"lock"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// LoadOption adjusts a decoded configuration before it is normalized and validated.
type LoadOption func(*Config)

// WithRoot overrides paths.root, e.g. from a CLI flag. Blank values are ignored.
func WithRoot(root string) LoadOption {
	return func(c *Config) {
		if root = strings.TrimSpace(root); root != "" {
			c.Paths.Root = root
		}
	}
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string, opts ...LoadOption) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipmerge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory used for the lock, ledger, and logs.
// The highlights root is never created; it must already exist.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

// LockPath returns the location of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "clipmerge.lock")
}

// LedgerPath returns the location of the SQLite commit ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockTimeout returns the lock acquisition timeout.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutSeconds) * time.Second
}

// SettleDelay returns the quiet period applied before a watch-triggered cycle.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Watch.SettleSeconds) * time.Second
}

// MinFragmentAge returns how old a fragment must be before it is offered to a batch.
func (c *Config) MinFragmentAge() time.Duration {
	return time.Duration(c.Fragments.MinAgeSeconds) * time.Second
}

// ArtifactExt returns the extension consolidation writes. When compression is
// enabled this is the intermediate format; otherwise the final output format.
func (c *Config) ArtifactExt() string {
	if c.Compress.Enabled {
		return c.Compress.IntermediateExt
	}
	return c.Merge.OutputExt
}

// IsFragmentExt reports whether ext marks a finished fragment.
func (c *Config) IsFragmentExt(ext string) bool {
	for _, candidate := range c.Fragments.Extensions {
		if strings.EqualFold(candidate, ext) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
