package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFragments()
	c.normalizeMerge()
	c.normalizeCompress()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	c.Paths.Root = strings.TrimSpace(c.Paths.Root)
	if c.Paths.Root == "" {
		if value, ok := os.LookupEnv("CLIPMERGE_ROOT"); ok {
			c.Paths.Root = strings.TrimSpace(value)
		}
	}
	if c.Paths.Root, err = expandPath(c.Paths.Root); err != nil {
		return fmt.Errorf("paths.root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFragments() {
	exts := make([]string, 0, len(c.Fragments.Extensions))
	seen := make(map[string]struct{}, len(c.Fragments.Extensions))
	for _, ext := range c.Fragments.Extensions {
		normalized := normalizeExt(ext)
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = []string{defaultFragmentExt}
	}
	c.Fragments.Extensions = exts

	c.Fragments.CombinedDir = strings.TrimSpace(c.Fragments.CombinedDir)
	if c.Fragments.CombinedDir == "" {
		c.Fragments.CombinedDir = defaultCombinedDir
	}
	c.Fragments.ProcessedDir = strings.TrimSpace(c.Fragments.ProcessedDir)
	if c.Fragments.ProcessedDir == "" {
		c.Fragments.ProcessedDir = defaultProcessedDir
	}
	c.Fragments.ScopedArtifactName = strings.TrimSpace(c.Fragments.ScopedArtifactName)
	if c.Fragments.ScopedArtifactName == "" {
		c.Fragments.ScopedArtifactName = defaultScopedArtifactName
	}
	if c.Fragments.MinAgeSeconds < 0 {
		c.Fragments.MinAgeSeconds = 0
	}
}

func (c *Config) normalizeMerge() {
	c.Merge.VideoCodec = strings.TrimSpace(c.Merge.VideoCodec)
	if c.Merge.VideoCodec == "" {
		c.Merge.VideoCodec = defaultVideoCodec
	}
	c.Merge.AudioCodec = strings.TrimSpace(c.Merge.AudioCodec)
	if c.Merge.AudioCodec == "" {
		c.Merge.AudioCodec = defaultAudioCodec
	}
	c.Merge.Preset = strings.TrimSpace(c.Merge.Preset)
	c.Merge.AudioBitrate = strings.TrimSpace(c.Merge.AudioBitrate)
	c.Merge.OutputExt = normalizeExt(c.Merge.OutputExt)
	if c.Merge.OutputExt == "" {
		c.Merge.OutputExt = defaultOutputExt
	}
	c.Merge.FFmpegBinary = strings.TrimSpace(c.Merge.FFmpegBinary)
	if c.Merge.FFmpegBinary == "" {
		c.Merge.FFmpegBinary = defaultFFmpegBinary
	}
	c.Merge.FFprobeBinary = strings.TrimSpace(c.Merge.FFprobeBinary)
	if c.Merge.FFprobeBinary == "" {
		c.Merge.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeCompress() {
	c.Compress.IntermediateExt = normalizeExt(c.Compress.IntermediateExt)
	if c.Compress.IntermediateExt == "" {
		c.Compress.IntermediateExt = defaultIntermediateExt
	}
	c.Compress.VideoCodec = strings.TrimSpace(c.Compress.VideoCodec)
	if c.Compress.VideoCodec == "" {
		c.Compress.VideoCodec = defaultCompressCodec
	}
	c.Compress.AudioCodec = strings.TrimSpace(c.Compress.AudioCodec)
	if c.Compress.AudioCodec == "" {
		c.Compress.AudioCodec = defaultAudioCodec
	}
	c.Compress.Preset = strings.TrimSpace(c.Compress.Preset)
	c.Compress.AudioBitrate = strings.TrimSpace(c.Compress.AudioBitrate)
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.Paths.StateDir, "clipmerge.log")
	}
	var err error
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
